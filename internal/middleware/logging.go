package middleware

import (
	"net/http"
	"time"

	"orderline-be/internal/auth"
	"orderline-be/internal/logger"
	"orderline-be/internal/metrics"

	"go.uber.org/zap"
)

const unmatchedRoute = "unmatched"

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.written = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// AccessLog writes one structured line per request and records it in m.
// Routes are labelled by the mux pattern so metric cardinality stays bounded.
func AccessLog(mux *http.ServeMux, m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			route := unmatchedRoute
			if _, pattern := mux.Handler(r); pattern != "" {
				route = pattern
			}
			m.ObserveHTTP(r.Method, route, rec.statusCode, elapsed)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", rec.statusCode),
				zap.Duration("duration", elapsed),
				zap.String("remote_ip", r.RemoteAddr),
			}
			if p, ok := auth.PrincipalFrom(r.Context()); ok {
				fields = append(fields, zap.String("user_id", p.UserID))
			}
			logger.FromCtx(r.Context()).Info("http request", fields...)
		})
	}
}
