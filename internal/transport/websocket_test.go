package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afengine/afengine/internal/focus"
)

// dialWS opens a client WebSocket connection to path on a test server.
func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestRequestFocusWSCannotBeGrantedHasReturnValueTrue(t *testing.T) {
	registry := focus.NewRegistry(nullDeliverer{})
	policy := loadTestPolicy(t)
	engine := focus.NewEngine(policy, registry, []focus.DisplayID{0, 1, 2}, nil, zerolog.Nop())
	hub := NewHub(zerolog.Nop(), func(focus.Bucket, focus.DisplayID, string) {})
	handlers := NewHandlers(engine, hub, nil, false, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/request", handlers.RequestFocusWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	// In the test policy MEDIA's incoming matrix has no NAV entry, so a NAV
	// request while MEDIA is active is infeasible and must be denied.
	engine.RequestFocus(0, "app.holder", "MEDIA", "music", focus.Handle(999))

	conn := dialWS(t, server, "/request?appId=app.b&requestType=NAV&streamType=voice&subscribe=true&displayId=0")
	defer conn.Close()

	var reply struct {
		ReturnValue bool         `json:"returnValue"`
		Result      focus.Result `json:"result"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Result != focus.ResultCannotBeGranted {
		t.Fatalf("result = %v, want CANNOT_BE_GRANTED", reply.Result)
	}
	if !reply.ReturnValue {
		t.Fatal("returnValue must be true for CANNOT_BE_GRANTED: it is a successful arbitration that denied the request, not a protocol error")
	}
}

func TestRequestFocusWSUnknownRequestType(t *testing.T) {
	registry := focus.NewRegistry(nullDeliverer{})
	policy := loadTestPolicy(t)
	engine := focus.NewEngine(policy, registry, []focus.DisplayID{0, 1, 2}, nil, zerolog.Nop())
	hub := NewHub(zerolog.Nop(), func(focus.Bucket, focus.DisplayID, string) {})
	handlers := NewHandlers(engine, hub, nil, false, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/request", handlers.RequestFocusWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/request?appId=app.a&requestType=BOGUS&streamType=voice&subscribe=true&displayId=0")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
