// Package http provides the HTTP surface of the gate: routing, admission
// filtering, the management API and the catalog proxy.
package http

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/metrics"
)

// RouteTable records, per registered route, whether it skips admission.
// Routes are keyed by "METHOD pattern"; "*" stands for any method.
type RouteTable struct {
	mu     sync.RWMutex
	exempt map[string]bool
}

// NewRouteTable creates an empty table.
func NewRouteTable() *RouteTable {
	return &RouteTable{exempt: make(map[string]bool)}
}

// RouteKey builds the table key for a route.
func RouteKey(method, pattern string) string {
	if method == "" {
		method = "*"
	}
	return strings.ToUpper(method) + " " + pattern
}

func (t *RouteTable) set(route string, exempt bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exempt[route] = exempt
}

// IsExempt reports whether route skips admission. Unknown routes are filtered.
func (t *RouteTable) IsExempt(route string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.exempt[route]
}

// Routes returns a copy of the table.
func (t *RouteTable) Routes() map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]bool, len(t.exempt))
	for k, v := range t.exempt {
		out[k] = v
	}
	return out
}

// RouteWrapper wraps the handler registered for route.
type RouteWrapper func(route string, next http.Handler) http.Handler

// Registrar registers routes on a chi router, recording each route's
// admission exemption in a RouteTable.
type Registrar struct {
	mux         chi.Router
	table       *RouteTable
	wrap        RouteWrapper
	prefix      string
	exempt      bool
	middlewares []func(http.Handler) http.Handler
}

// NewRegistrar creates a root registrar. Routes registered on it are
// admission-filtered unless placed in an exempt group. wrap may be nil.
func NewRegistrar(mux chi.Router, table *RouteTable, wrap RouteWrapper) *Registrar {
	return &Registrar{mux: mux, table: table, wrap: wrap}
}

// Group registers routes under prefix with the given exemption.
func (g *Registrar) Group(prefix string, exempt bool, fn func(g *Registrar)) {
	sub := *g
	sub.prefix = g.prefix + prefix
	sub.exempt = exempt
	sub.middlewares = append([]func(http.Handler) http.Handler{}, g.middlewares...)
	fn(&sub)
}

// With returns a registrar that applies mws to the routes it registers.
func (g *Registrar) With(mws ...func(http.Handler) http.Handler) *Registrar {
	sub := *g
	sub.middlewares = append(append([]func(http.Handler) http.Handler{}, g.middlewares...), mws...)
	return &sub
}

// Handle registers h for method and pattern. An empty method matches all.
func (g *Registrar) Handle(method, pattern string, h http.Handler) {
	full := g.prefix + pattern
	route := RouteKey(method, full)
	g.table.set(route, g.exempt)

	for i := len(g.middlewares) - 1; i >= 0; i-- {
		h = g.middlewares[i](h)
	}
	if g.wrap != nil {
		h = g.wrap(route, h)
	}

	if method == "" {
		g.mux.Handle(full, h)
		return
	}
	g.mux.Method(method, full, h)
}

// HandleFunc registers a handler function.
func (g *Registrar) HandleFunc(method, pattern string, h http.HandlerFunc) {
	g.Handle(method, pattern, h)
}

// RouterConfig holds the handlers mounted by NewRouter.
type RouterConfig struct {
	Admission   *AdmissionMiddleware
	Management  *APIHandler
	Auth        func(http.Handler) http.Handler // bearer auth for the management API
	Catalog     http.Handler
	Health      *HealthHandler
	Metrics     *metrics.Collector
	MetricsPath string
	Docs        bool
	Timeout     time.Duration
}

// NewRouter builds the gate's router and the route table it registered.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) (chi.Router, *RouteTable) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	if cfg.Timeout > 0 {
		r.Use(middleware.Timeout(cfg.Timeout))
	}
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	table := NewRouteTable()
	var wrap RouteWrapper
	if cfg.Admission != nil {
		cfg.Admission.table = table
		wrap = cfg.Admission.Wrap
	}
	reg := NewRegistrar(r, table, wrap)

	reg.Group("", true, func(g *Registrar) {
		if cfg.Health != nil {
			g.HandleFunc(http.MethodGet, "/health", cfg.Health.Liveness)
			g.HandleFunc(http.MethodGet, "/health/ready", cfg.Health.Readiness)
		}
		g.HandleFunc(http.MethodGet, "/version", Version)

		if cfg.Metrics != nil {
			path := cfg.MetricsPath
			if path == "" {
				path = "/metrics"
			}
			g.Handle(http.MethodGet, path, promhttp.Handler())
		}

		if cfg.Docs {
			g.Handle(http.MethodGet, "/swagger/*", DocsHandler())
		}
	})

	if cfg.Management != nil {
		reg.Group("/api", true, func(g *Registrar) {
			if cfg.Auth != nil {
				g = g.With(cfg.Auth)
			}
			cfg.Management.Register(g)
		})
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = CatalogUnavailable()
	}
	reg.Handle("", "/api/v1/*", catalog)

	return r, table
}

// NewMetricsMiddleware records request counts and durations by route pattern.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := metrics.StatusClass(ww.Status())

			m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// NewLoggingMiddleware logs each request at Debug.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
