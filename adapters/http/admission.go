package http

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/metrics"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/admission"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
)

// Admitter decides whether a keyed request may proceed.
type Admitter interface {
	Admit(ctx context.Context, req admission.Request) (admission.Result, error)
}

// AdmissionMiddleware filters non-exempt routes by API key.
type AdmissionMiddleware struct {
	service Admitter
	table   *RouteTable
	header  string
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewAdmissionMiddleware creates the filter. An empty header means
// admission.DefaultHeader; m may be nil.
func NewAdmissionMiddleware(service Admitter, header string, m *metrics.Collector, logger zerolog.Logger) *AdmissionMiddleware {
	if header == "" {
		header = admission.DefaultHeader
	}
	return &AdmissionMiddleware{
		service: service,
		table:   NewRouteTable(),
		header:  header,
		metrics: m,
		logger:  logger.With().Str("component", "admission").Logger(),
	}
}

// Wrap returns next guarded for route. The exemption is looked up in the
// route table on every request.
func (m *AdmissionMiddleware) Wrap(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.table.IsExempt(route) {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.service.Admit(r.Context(), admission.Request{
			Tokens: r.Header.Values(m.header),
			Origin: key.Origin{
				Origin:   r.Header.Get("Origin"),
				Referer:  r.Referer(),
				RemoteIP: remoteIP(r),
			},
		})
		if err != nil {
			m.logger.Error().
				Err(err).
				Str("route", route).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("admission check failed")
			if m.metrics != nil {
				m.metrics.AdmissionErrors.Inc()
			}
			writeText(w, http.StatusInternalServerError, "internal error")
			return
		}

		if m.metrics != nil {
			m.metrics.AdmissionDecision(result.Outcome())
		}

		if !result.Allowed {
			m.logger.Debug().
				Str("route", route).
				Str("outcome", result.Outcome()).
				Str("key_id", result.Key.ID).
				Msg("request rejected")
			writeText(w, result.Rejection.Status, result.Rejection.Message)
			return
		}

		next.ServeHTTP(w, r.WithContext(withKey(r.Context(), result.Key)))
	})
}

// Header returns the API key header name.
func (m *AdmissionMiddleware) Header() string {
	return m.header
}

type keyCtx struct{}

func withKey(ctx context.Context, k key.Key) context.Context {
	return context.WithValue(ctx, keyCtx{}, k)
}

// KeyFromContext returns the key admitted for the request.
func KeyFromContext(ctx context.Context) (key.Key, bool) {
	k, ok := ctx.Value(keyCtx{}).(key.Key)
	return k, ok
}

// remoteIP returns the client address. RealIP has already applied
// X-Forwarded-For and X-Real-IP.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
