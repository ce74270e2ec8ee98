// Package server assembles the HTTP router: route registration and the middleware chain.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	audithandler "qr-access-control/internal/audit/handler"
	auditrepo "qr-access-control/internal/audit/repository"
	checkpointhandler "qr-access-control/internal/checkpoint/handler"
	"qr-access-control/internal/httpapi"
	"qr-access-control/internal/logging"
	sessionhandler "qr-access-control/internal/session/handler"
	staffhandler "qr-access-control/internal/staff/handler"
)

// Deps holds the services behind each route group. A nil dependency leaves its routes unregistered.
type Deps struct {
	// Scanner serves POST /validate/scan and POST /zones/checkpoint/scan.
	Scanner checkpointhandler.Scanner
	// Sessions serves the session issuance routes.
	Sessions sessionhandler.SessionIssuer
	// Staff serves POST /api/staff/login.
	Staff staffhandler.Authenticator
	// Attempts serves GET /api/tickets/{id}/attempts.
	Attempts auditrepo.Repository
	// AllowedOrigins lists CORS origins; "*" allows any. Empty disables CORS headers.
	AllowedOrigins []string
	// MeterProvider records request metrics; nil uses the global provider.
	MeterProvider metric.MeterProvider
	Logger        *zap.Logger
}

// NewRouter registers every configured route group. Recovery and CORS wrap the whole router so
// preflight and unmatched requests see them; metrics and request logging run on matched routes.
func NewRouter(deps Deps) (http.Handler, error) {
	logger := logging.OrNop(deps.Logger)
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpapi.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpapi.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	metrics, err := newRequestMetrics(deps.MeterProvider)
	if err != nil {
		return nil, err
	}
	r.Use(metrics.middleware, RequestLogger(logger))

	if deps.Scanner != nil {
		checkpointhandler.NewServer(deps.Scanner).Register(r)
	}
	if deps.Sessions != nil {
		sessionhandler.NewServer(deps.Sessions, logger).Register(r)
	}
	if deps.Staff != nil {
		staffhandler.NewServer(deps.Staff, logger).Register(r)
	}
	if deps.Attempts != nil {
		audithandler.NewServer(deps.Attempts, logger).Register(r)
	}
	return Recover(logger)(CORS(deps.AllowedOrigins)(r)), nil
}

// NewHTTPServer wraps handler with the listener timeouts used by cmd/server.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
