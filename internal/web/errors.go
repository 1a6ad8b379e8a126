package web

// errors.go turns handler errors into JSON responses.
//
// The technical error is logged with the request ID; the client gets the
// coded message from core.MapError. Validation failures also carry their
// individual problems so callers can fix the file.

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/JonMunkholm/ListingImport/internal/core"
	"github.com/JonMunkholm/ListingImport/internal/jobs"
	"github.com/JonMunkholm/ListingImport/internal/listing"
	"github.com/JonMunkholm/ListingImport/internal/logging"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	Action   string   `json:"action,omitempty"`
	Code     string   `json:"code"`
	Details  []string `json:"details,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var rateLimited = core.MapError(errors.New("rate limit exceeded"))

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, core.ErrMalformedContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, listing.ErrAccountNotFound), errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrStoreUnavailable), errors.Is(err, listing.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user-facing form. A zero status
// means "derive from err".
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request error", "path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", msg.Code)
	} else {
		logger.Warn("request rejected", "path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", msg.Code)
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var ve *core.ValidationError
	var re *requestError
	switch {
	case errors.As(err, &ve):
		resp.Details = ve.Errors
		resp.Warnings = ve.Warnings
	case errors.As(err, &re):
		resp.Details = []string{re.detail}
	}
	writeJSON(w, status, resp)
}

// respondErrorJSON writes a message with no underlying error.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// requestError is a malformed request. Its detail is safe to show.
type requestError struct {
	detail string
}

func (e *requestError) Error() string { return "invalid request: " + e.detail }

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	s.respondError(w, r, &requestError{detail: detail}, http.StatusBadRequest)
}

// clientIP returns the request's remote address without its port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
