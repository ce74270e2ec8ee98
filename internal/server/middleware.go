package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"qr-access-control/internal/httpapi"
	"qr-access-control/internal/logging"
)

const instrumentationName = "qr-access-control/server"

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func wrap(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w}
}

// RequestLogger logs one line per request with method, route, status, duration and client IP.
func RequestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	logger = logging.OrNop(logger).Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := wrap(w)
			next.ServeHTTP(rec, r)
			status := rec.code()
			fields := []zap.Field{
				logging.Method(r.Method),
				logging.Path(routeTemplate(r)),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				logging.RemoteIP(ClientIP(r)),
			}
			if status >= http.StatusInternalServerError {
				logger.Warn("request failed", fields...)
				return
			}
			logger.Debug("request", fields...)
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(logger *zap.Logger) mux.MiddlewareFunc {
	logger = logging.OrNop(logger).Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := wrap(w)
			defer func() {
				if p := recover(); p != nil {
					logger.Error("handler panic", zap.Any("panic", p), logging.Method(r.Method), logging.Path(r.URL.Path))
					if rec.status == 0 {
						httpapi.WriteError(rec, http.StatusInternalServerError, "internal error")
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// CORS answers preflight requests and sets Access-Control headers for allowed origins.
func CORS(allowed []string) mux.MiddlewareFunc {
	anyOrigin := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			anyOrigin = true
		}
		set[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || (!anyOrigin && !set[origin]) {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			if anyOrigin {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the client IP from X-Forwarded-For, X-Real-IP or the remote address, or "unknown".
func ClientIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// routeTemplate keeps path parameters (ticket ids) out of logs and metric labels.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type requestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newRequestMetrics(mp metric.MeterProvider) (*requestMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	requests, err := meter.Int64Counter("http.server.requests", metric.WithDescription("HTTP requests by route and status"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http.server.duration", metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &requestMetrics{requests: requests, duration: duration}, nil
}

func (m *requestMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := wrap(w)
		next.ServeHTTP(rec, r)
		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", routeTemplate(r)),
			attribute.Int("status", rec.code()),
		)
		m.requests.Add(r.Context(), 1, attrs)
		m.duration.Record(r.Context(), float64(time.Since(start).Microseconds())/1000, attrs)
	})
}
