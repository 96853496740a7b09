package transport

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/afengine/afengine/internal/focus"
)

// DisplayResolver resolves a session token to a display id. Implemented by
// internal/session.Resolver; kept as an interface here so transport does
// not import session directly when automotive mode is off.
type DisplayResolver interface {
	Resolve(token string) (focus.DisplayID, bool)
}

// Handlers implements the three public operations over HTTP/WebSocket.
type Handlers struct {
	engine     *focus.Engine
	hub        *Hub
	resolver   DisplayResolver
	automotive bool
	validate   *validator.Validate
	log        zerolog.Logger
}

// NewHandlers builds the request handlers. resolver may be nil when
// automotive is false (the display id is then taken directly from the
// request).
func NewHandlers(engine *focus.Engine, hub *Hub, resolver DisplayResolver, automotive bool, log zerolog.Logger) *Handlers {
	return &Handlers{
		engine:     engine,
		hub:        hub,
		resolver:   resolver,
		automotive: automotive,
		validate:   validator.New(),
		log:        log,
	}
}

func (h *Handlers) resolveDisplay(r *http.Request) (focus.DisplayID, bool) {
	q := r.URL.Query()
	if h.automotive {
		token := q.Get("sessionId")
		if token == "" {
			return 0, false
		}
		return h.resolver.Resolve(token)
	}
	raw := q.Get("displayId")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return focus.DisplayID(n), true
}

type requestFocusQuery struct {
	AppID       string `validate:"required"`
	RequestType string `validate:"required"`
	StreamType  string `validate:"required"`
	Subscribe   string
}

// RequestFocusWS serves GET /api/v1/focus/request/ws. The subscription
// must carry both the initial reply and every later push on one handle,
// so the operation is WebSocket-only (see SPEC_FULL.md §6.1).
func (h *Handlers) RequestFocusWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := requestFocusQuery{
		AppID:       q.Get("appId"),
		RequestType: q.Get("requestType"),
		StreamType:  q.Get("streamType"),
		Subscribe:   q.Get("subscribe"),
	}
	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidSchema, err.Error())
		return
	}
	if body.Subscribe != "true" {
		writeError(w, http.StatusBadRequest, focus.ErrInternal, "requestFocus requires subscribe=true")
		return
	}
	if !h.engine.KnownRequestType(body.RequestType) {
		writeError(w, http.StatusBadRequest, focus.ErrUnknownRequest, "unknown requestType")
		return
	}

	displayID, ok := h.resolveDisplay(r)
	if !ok {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidDisplay, "invalid or missing display")
		return
	}
	if !h.engine.ValidDisplay(displayID) {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidDisplay, "unknown display id")
		return
	}

	handle, err := h.hub.Upgrade(w, r, focus.BucketRequestFocus, displayID, body.AppID)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	result := h.engine.RequestFocus(displayID, body.AppID, body.RequestType, body.StreamType, handle)
	// CANNOT_BE_GRANTED is a successful arbitration that denied the
	// request, not a protocol error, so returnValue is true here too.
	h.hub.Deliver(handle, struct {
		ReturnValue bool         `json:"returnValue"`
		Result      focus.Result `json:"result"`
	}{ReturnValue: true, Result: result})

	if result != focus.ResultGranted {
		h.hub.CloseUnsubscribed(handle)
	}
}

type releaseFocusQuery struct {
	AppID      string `validate:"required"`
	StreamType string `validate:"required"`
}

// ReleaseFocus serves POST /api/v1/focus/release.
func (h *Handlers) ReleaseFocus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := releaseFocusQuery{AppID: q.Get("appId"), StreamType: q.Get("streamType")}
	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidSchema, err.Error())
		return
	}

	displayID, ok := h.resolveDisplay(r)
	if !ok {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidDisplay, "invalid or missing display")
		return
	}
	if !h.engine.ValidDisplay(displayID) {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidDisplay, "unknown display id")
		return
	}

	result := h.engine.ReleaseFocus(displayID, body.AppID)
	if result == "" {
		writeError(w, http.StatusOK, focus.ErrInternal, "Application not registered")
		return
	}
	writeResult(w, http.StatusOK, result)
}

// GetStatus serves GET /api/v1/focus/status (snapshot, no subscription).
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	displayID, ok := h.resolveDisplay(r)
	if !ok {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidDisplay, "invalid or missing display")
		return
	}
	if !h.engine.ValidDisplay(displayID) {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidDisplay, "unknown display id")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status(displayID))
}

// GetStatusWS serves GET /api/v1/focus/status/ws (snapshot plus every
// subsequent broadcast for that display).
func (h *Handlers) GetStatusWS(w http.ResponseWriter, r *http.Request) {
	displayID, ok := h.resolveDisplay(r)
	if !ok {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidDisplay, "invalid or missing display")
		return
	}
	if !h.engine.ValidDisplay(displayID) {
		writeError(w, http.StatusBadRequest, focus.ErrInvalidDisplay, "unknown display id")
		return
	}

	appID := r.URL.Query().Get("appId")
	handle, err := h.hub.Upgrade(w, r, focus.BucketGetStatus, displayID, appID)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.engine.Subscribe(focus.BucketGetStatus, handle, appID, displayID)
	h.hub.Deliver(handle, h.engine.Status(displayID))
}
