package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/metrics"
)

// CatalogConfig configures the catalog reverse proxy.
type CatalogConfig struct {
	UpstreamURL string
	Timeout     time.Duration
	KeyHeader   string // stripped before forwarding
}

// CatalogProxy forwards admitted requests to the catalog service.
type CatalogProxy struct {
	proxy     *httputil.ReverseProxy
	client    *http.Client
	target    *url.URL
	keyHeader string
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

// NewCatalogProxy creates the proxy. m may be nil.
func NewCatalogProxy(cfg CatalogConfig, m *metrics.Collector, logger zerolog.Logger) (*CatalogProxy, error) {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("catalog url %q must be absolute", cfg.UpstreamURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	p := &CatalogProxy{
		client:    &http.Client{Transport: transport, Timeout: 5 * time.Second},
		target:    target,
		keyHeader: cfg.KeyHeader,
		metrics:   m,
		logger:    logger.With().Str("component", "catalog").Logger(),
	}
	p.proxy = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      transport,
		ModifyResponse: p.observe,
		ErrorHandler:   p.handleError,
	}
	return p, nil
}

func (p *CatalogProxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.target)
	pr.SetXForwarded()
	if p.keyHeader != "" {
		pr.Out.Header.Del(p.keyHeader)
	}
	if k, ok := KeyFromContext(pr.In.Context()); ok {
		pr.Out.Header.Set("X-Biblioteca-Account", k.AccountID)
		pr.Out.Header.Set("X-Biblioteca-Tier", string(k.Tier))
	}
	pr.Out = pr.Out.WithContext(context.WithValue(pr.Out.Context(), startCtx{}, time.Now()))
}

type startCtx struct{}

func (p *CatalogProxy) observe(resp *http.Response) error {
	if p.metrics == nil {
		return nil
	}
	if start, ok := resp.Request.Context().Value(startCtx{}).(time.Time); ok {
		p.metrics.UpstreamDuration.
			WithLabelValues(resp.Request.Method, metrics.StatusClass(resp.StatusCode)).
			Observe(time.Since(start).Seconds())
	}
	return nil
}

func (p *CatalogProxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := "connection"
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		kind = "timeout"
		status = http.StatusGatewayTimeout
	}
	if p.metrics != nil {
		p.metrics.UpstreamErrors.WithLabelValues(kind).Inc()
	}
	p.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("catalog request failed")
	writeError(w, status, "catalog_error", "catalog service unavailable")
}

// ServeHTTP forwards the request.
func (p *CatalogProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

// HealthCheck verifies the catalog is reachable.
func (p *CatalogProxy) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.target.String(), nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	// Any response (even 404) means the catalog is reachable
	return nil
}

// CatalogUnavailable answers catalog routes when no upstream is configured.
func CatalogUnavailable() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable", "catalog upstream is not configured")
	})
}
