package transport

import (
	"encoding/json"
	"net/http"

	"github.com/afengine/afengine/internal/focus"
)

// errorReply is the wire shape for every rejected request, per the error
// taxonomy: returnValue is always false, errorCode/errorText explain why.
type errorReply struct {
	ReturnValue bool           `json:"returnValue"`
	ErrorCode   focus.ErrorCode `json:"errorCode"`
	ErrorText   string         `json:"errorText"`
}

// simpleReply is the wire shape for a synchronous, non-subscribing reply
// that carries only a result (releaseFocus).
type simpleReply struct {
	ReturnValue bool        `json:"returnValue"`
	Result      focus.Result `json:"result"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code focus.ErrorCode, text string) {
	writeJSON(w, status, errorReply{ReturnValue: false, ErrorCode: code, ErrorText: text})
}

func writeResult(w http.ResponseWriter, status int, result focus.Result) {
	writeJSON(w, status, simpleReply{ReturnValue: true, Result: result})
}
