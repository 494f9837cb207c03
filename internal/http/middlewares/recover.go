package middlewares

import (
	"net/http"
	"runtime/debug"

	"github.com/authplane/authplane/internal/observability/logger"
)

// WithRecover turns handler panics into 500s instead of dropped connections.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Any("panic", rec),
						logger.String("stack", string(debug.Stack())),
					)
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal_error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
