package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request id attached by
// withRequestID, or "" if none is present (e.g. in a unit test that
// calls a handler directly).
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID assigns every request a unique id, echoed back on the
// X-Request-Id response header and available to handlers and the
// request logger via RequestIDFromContext. Client-supplied
// X-Request-Id values are honored so a request can be traced across a
// proxy that already assigned one.
func withRequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}
