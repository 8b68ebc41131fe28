package web

// errors.go turns handler errors into responses.
//
// The technical error is logged with the request ID; the client gets the
// user message from core.MapError, as JSON for API callers and as an HTML
// alert for HTMX or browser requests.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/rowbind/internal/core"
	"github.com/JonMunkholm/rowbind/internal/logging"
	"github.com/JonMunkholm/rowbind/internal/web/report"
)

var (
	errNoFile          = errors.New("no file provided")
	errImportsDisabled = errors.New("database not configured")
)

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user message with a status derived
// from the error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	status := statusFor(err, msg)

	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request error", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	} else {
		logger.Warn("request rejected", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	}

	if status == http.StatusServiceUnavailable && msg.Code == "UPL001" {
		w.Header().Set("Retry-After", "5")
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := report.ErrorAlert(msg).Render(r.Context(), w); err != nil {
			logger.Error("render error alert", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}); err != nil {
		logger.Error("json encode error", "error", err)
	}
}

// statusFor picks the HTTP status for an error and its user message.
func statusFor(err error, msg core.UserMessage) int {
	if msg.Code == "FILE001" {
		return http.StatusRequestEntityTooLarge
	}

	switch {
	case errors.Is(err, core.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyUploads), errors.Is(err, errImportsDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrNotImportable):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	}

	switch {
	case msg.Code == "DB001":
		return http.StatusConflict
	case msg.Code == "UPL002":
		return 499
	case strings.HasPrefix(msg.Code, "VAL"),
		strings.HasPrefix(msg.Code, "FILE"),
		strings.HasPrefix(msg.Code, "STR"):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// isHTMX reports whether the request came from HTMX.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsHTML reports whether the client asked for markup rather than JSON.
func wantsHTML(r *http.Request) bool {
	if isHTMX(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
