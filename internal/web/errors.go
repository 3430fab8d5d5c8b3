package web

// errors.go turns handler errors into JSON responses.
//
// Validation errors are returned verbatim so clients can show exactly which
// columns were missing. Everything else is logged with full detail and the
// request ID, then replaced by the mapped user message from core.MapError.

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/JonMunkholm/equipstat/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// retryAfterBusy is sent with 503 when every upload slot is taken.
const retryAfterBusy = 5

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	switch {
	case core.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError responds with the status statusFor picks.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err, statusFor(err))
}

// respondError logs err server-side and writes the client-facing message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context())
	if statusCode >= http.StatusInternalServerError {
		log.Error("request error",
			"path", r.URL.Path,
			"method", r.Method,
			"status", statusCode,
			"error", err.Error(),
			"code", userMsg.Code,
		)
	} else {
		log.Info("request rejected",
			"path", r.URL.Path,
			"status", statusCode,
			"error", err.Error(),
			"code", userMsg.Code,
		)
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	if core.IsValidationError(err) {
		resp.Error = err.Error()
		resp.Message = err.Error()
	}

	if errors.Is(err, core.ErrTooManyUploads) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterBusy))
	}
	writeJSON(w, statusCode, resp)
}
