// Package httptransport assembles the HTTP server and its middleware chain.
package httptransport

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	muxprom "gitlab.com/msvechla/mux-prometheus/pkg/middleware"

	"example.com/wellness/internal/auth"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

var (
	instrumentationOnce sync.Once
	instrumentation     mux.MiddlewareFunc
)

// routeInstrumentation records request counts and latencies per route
// template. The collectors are registered once per process.
func routeInstrumentation() mux.MiddlewareFunc {
	instrumentationOnce.Do(func() {
		instrumentation = muxprom.NewCustomInstrumentation(true, "wellness", "http", prometheus.DefBuckets, nil, prometheus.DefaultRegisterer).Middleware
	})
	return instrumentation
}

// RouterConfig selects the middleware wrapped around the routes.
type RouterConfig struct {
	// Auth enables bearer-token validation when non-nil.
	Auth *auth.Config
	// AccessLog receives combined-format request logs when non-nil.
	AccessLog io.Writer
	// AllowedOrigins enables CORS for the listed origins.
	AllowedOrigins []string
}

// Registrar adds routes to a router.
type Registrar interface {
	RegisterRoutes(*mux.Router)
}

// NewHandler builds the router with /metrics and every registrar's routes,
// then wraps it in auth, compression, CORS, access logging and panic
// recovery, innermost first.
func NewHandler(cfg RouterConfig, registrars ...Registrar) http.Handler {
	rtr := mux.NewRouter()
	rtr.Use(routeInstrumentation())
	rtr.Path("/metrics").Handler(promhttp.Handler())
	for _, reg := range registrars {
		reg.RegisterRoutes(rtr)
	}

	var h http.Handler = rtr
	if cfg.Auth != nil {
		h = auth.NewMiddleware(*cfg.Auth, auth.PublicPaths).Wrap(h)
	}
	h = handlers.CompressHandler(h)
	if len(cfg.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowCredentials(),
		)(h)
	}
	if cfg.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(cfg.AccessLog, h)
	}
	return handlers.RecoveryHandler()(h)
}
