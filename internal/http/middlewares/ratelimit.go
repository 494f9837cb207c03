package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/authplane/authplane/internal/observability/logger"
	"github.com/authplane/authplane/internal/rate"
	"github.com/authplane/authplane/internal/tenant"
)

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithRateLimit throttles by tenant plus client IP. A limiter failure
// (e.g. redis down) fails open; slow issuance beats no issuance.
func WithRateLimit(l rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := tenant.FromContext(r.Context()) + ":" + clientIP(r)
			res, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds())))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
