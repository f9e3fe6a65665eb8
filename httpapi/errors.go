package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/thatique/sendcore/internal/verr"
)

// errorResponse is the body of every non-2xx response:
// { "error": string }.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a verr.ErrorCode to its HTTP status.
func statusFor(code verr.ErrorCode) int {
	switch code {
	case verr.NotFound:
		return http.StatusNotFound
	case verr.Unauthenticated:
		return http.StatusUnauthorized
	case verr.PermissionDenied:
		return http.StatusUnauthorized
	case verr.InvalidArgument, verr.FileTooLarge:
		return http.StatusBadRequest
	case verr.Gone:
		return http.StatusGone
	case verr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body with the status code
// dictated by its verr.ErrorCode. Internal/Unknown errors are logged
// with their full detail; the client only ever sees a generic message
// for those, never internal error text.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := verr.Code(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.log.Errorw("request failed", "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
