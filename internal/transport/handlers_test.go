package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/afengine/afengine/internal/focus"
)

type nullDeliverer struct{}

func (nullDeliverer) Deliver(h focus.Handle, payload any) bool { return true }

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	registry := focus.NewRegistry(nullDeliverer{})
	policy := loadTestPolicy(t)
	engine := focus.NewEngine(policy, registry, []focus.DisplayID{0, 1, 2}, nil, zerolog.Nop())
	hub := NewHub(zerolog.Nop(), func(focus.Bucket, focus.DisplayID, string) {})
	return NewHandlers(engine, hub, nil, false, zerolog.Nop())
}

func loadTestPolicy(t *testing.T) *focus.Table {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/policy.json"
	body := `{"requestType": [
		{"request": "MEDIA", "priority": 10, "incoming": [{"MEDIA": "mix"}]},
		{"request": "NAV", "priority": 20, "incoming": [{"MEDIA": "mix"}, {"NAV": "mix"}]}
	]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write policy fixture: %v", err)
	}
	table, err := focus.Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("load policy fixture: %v", err)
	}
	return table
}

func TestReleaseFocusUnknownDisplay(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest("POST", "/api/v1/focus/release?displayId=99&appId=app.a&streamType=x", nil)
	rec := httptest.NewRecorder()
	h.ReleaseFocus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorReply
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body.ErrorCode != focus.ErrInvalidDisplay {
		t.Errorf("errorCode = %d, want %d", body.ErrorCode, focus.ErrInvalidDisplay)
	}
}

func TestReleaseFocusUnregisteredApp(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest("POST", "/api/v1/focus/release?displayId=0&appId=ghost&streamType=x", nil)
	rec := httptest.NewRecorder()
	h.ReleaseFocus(rec, req)

	var body errorReply
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body.ReturnValue {
		t.Error("expected returnValue false for an unregistered app")
	}
	if body.ErrorCode != focus.ErrInternal {
		t.Errorf("errorCode = %d, want %d", body.ErrorCode, focus.ErrInternal)
	}
}

func TestReleaseFocusMissingRequiredField(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest("POST", "/api/v1/focus/release?displayId=0&streamType=x", nil)
	rec := httptest.NewRecorder()
	h.ReleaseFocus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorReply
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body.ErrorCode != focus.ErrInvalidSchema {
		t.Errorf("errorCode = %d, want %d", body.ErrorCode, focus.ErrInvalidSchema)
	}
}

func TestReleaseFocusSuccess(t *testing.T) {
	h := newTestHandlers(t)
	h.engine.RequestFocus(0, "app.a", "MEDIA", "music", focus.Handle(1))

	req := httptest.NewRequest("POST", "/api/v1/focus/release?displayId=0&appId=app.a&streamType=music", nil)
	rec := httptest.NewRecorder()
	h.ReleaseFocus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body simpleReply
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body.Result != focus.ResultSuccessfullyReleased {
		t.Errorf("result = %q, want SUCCESSFULLY_RELEASED", body.Result)
	}
}

func TestGetStatusSnapshot(t *testing.T) {
	h := newTestHandlers(t)
	h.engine.RequestFocus(0, "app.a", "MEDIA", "music", focus.Handle(1))

	req := httptest.NewRequest("GET", "/api/v1/focus/status?displayId=0", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	var body focus.StatusPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if !body.ReturnValue {
		t.Fatal("expected returnValue true")
	}
	if len(body.AudioFocusStatus) != 1 || len(body.AudioFocusStatus[0].ActiveRequests) != 1 {
		t.Fatalf("unexpected status payload: %+v", body)
	}
}

func TestGetStatusInvalidDisplayID(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest("GET", "/api/v1/focus/status?displayId=notanumber", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
