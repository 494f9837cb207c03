package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WithAdminKey guards the management API with a static bearer key. An
// empty configured key disables the whole admin surface.
func WithAdminKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				http.NotFound(w, r)
				return
			}
			got := r.Header.Get("Authorization")
			got = strings.TrimPrefix(got, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
