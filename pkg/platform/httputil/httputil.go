// Package httputil centralizes JSON response writing so every handler emits
// the same success and error envelopes.
package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	gwerrors "storygate/pkg/gateway-errors"
	"storygate/pkg/requestcontext"
)

// ErrorEnvelope is the standard error body returned to clients.
type ErrorEnvelope struct {
	Success   bool              `json:"success"`
	ErrorCode string            `json:"errorCode"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Path      string            `json:"path"`
	Timestamp string            `json:"timestamp"`
	RequestID string            `json:"requestId"`
	Details   map[string]string `json:"details,omitempty"`
}

// WriteJSON writes v with the given status. Encoding failures are swallowed;
// by that point the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into the standard envelope. The taxonomy decides
// the status; non-gateway errors become GTW-500 with no internal text leaked.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	gw := gwerrors.AsError(err)

	path := gw.Path
	if path == "" && r != nil {
		path = r.URL.Path
	}
	requestID := gw.RequestID
	if requestID == "" && r != nil {
		requestID = requestcontext.RequestID(r.Context())
	}

	env := ErrorEnvelope{
		Success:   false,
		ErrorCode: string(gw.Code),
		Error:     string(gwerrors.CategoryOf(gw.Code)),
		Message:   gw.ClientMessage(),
		Path:      path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
		Details:   gw.Details,
	}
	WriteJSON(w, gw.Status(), env)
}
