package httpx

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	tokenIssuedTotal  *prometheus.CounterVec
	tokenRejectsTotal *prometheus.CounterVec
)

// RegisterMetrics initializes the HTTP and issuance metrics and returns
// the /metrics handler.
func RegisterMetrics(registry prometheus.Registerer) (http.Handler, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "In-flight requests by method and path",
		}, []string{"method", "path"})

		tokenIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_tokens_issued_total",
			Help: "Tokens issued by grant type",
		}, []string{"tenant", "grant_type"})

		tokenRejectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_token_rejects_total",
			Help: "Token requests rejected by error code",
		}, []string{"tenant", "error"})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			tokenIssuedTotal, tokenRejectsTotal,
		} {
			if err := registry.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					metricsErr = err
					return
				}
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}
	return promhttp.Handler(), nil
}

// ObserveTokenIssued counts a successful issuance.
func ObserveTokenIssued(tenantID, grantType string) {
	if tokenIssuedTotal != nil {
		tokenIssuedTotal.WithLabelValues(tenantID, grantType).Inc()
	}
}

// ObserveTokenReject counts a rejected token request.
func ObserveTokenReject(tenantID, errCode string) {
	if tokenRejectsTotal != nil {
		tokenRejectsTotal.WithLabelValues(tenantID, errCode).Inc()
	}
}

type metricsRecorder struct {
	http.ResponseWriter
	status int
}

func (m *metricsRecorder) WriteHeader(code int) {
	if m.status == 0 {
		m.status = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *metricsRecorder) Write(b []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	return m.ResponseWriter.Write(b)
}

// WithMetrics instruments requests with counters, latency and inflight.
func WithMetrics(next http.Handler) http.Handler {
	if next == nil {
		return nil
	}
	if httpRequestsTotal == nil || httpRequestDuration == nil || httpInflight == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path

		httpInflight.WithLabelValues(r.Method, path).Inc()
		defer httpInflight.WithLabelValues(r.Method, path).Dec()

		rec := &metricsRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
