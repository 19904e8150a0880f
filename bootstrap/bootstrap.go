// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file (or BIBLIOTECA_* environment
// variables) held in a config.Holder so reloadable fields take effect
// without a restart.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/auth"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/clock"
	apihttp "github.com/AndresRodriguez-98/BibliotecaApi/adapters/http"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/idgen"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/lock"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/metrics"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/postgres"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/random"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/sqlite"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/sqlstore"
	"github.com/AndresRodriguez-98/BibliotecaApi/app"
	"github.com/AndresRodriguez-98/BibliotecaApi/config"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// App represents the running application.
type App struct {
	Logger  zerolog.Logger
	Config  *config.Holder
	DB      *sqlstore.DB
	Metrics *metrics.Collector

	// Services
	Keys         *app.KeyService
	Restrictions *app.RestrictionService
	Accounts     *app.AccountService
	Usage        *app.UsageRecorder
	Admission    *app.AdmissionService
	Invoices     *app.InvoiceGenerator
	Delinquency  *app.DelinquencyEvaluator
	Tokens       *auth.TokenService

	// Server side, built only with Options.Server
	HTTPServer *http.Server
	Router     chi.Router
	Routes     *apihttp.RouteTable
	Scheduler  *app.BillingScheduler

	locker ports.KeyLocker
	clock  ports.Clock
	idGen  ports.IDGenerator
}

// Options customizes New.
type Options struct {
	// Server builds the HTTP server, the key locker and the billing
	// scheduler. CLI commands leave it false.
	Server bool

	// Registerer receives the Prometheus collectors. Nil means the default
	// registerer.
	Registerer prometheus.Registerer

	// Clock overrides the wall clock.
	Clock ports.Clock

	// LogOutput overrides os.Stdout.
	LogOutput io.Writer
}

// New creates and initializes the application from the held config.
func New(holder *config.Holder, opts Options) (*App, error) {
	cfg := holder.Get()

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := SetupLogger(cfg.Logging, out)

	a := &App{
		Logger: logger,
		Config: holder,
		clock:  opts.Clock,
		idGen:  idgen.UUID{},
	}
	if a.clock == nil {
		a.clock = clock.Real{}
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a.Metrics = metrics.NewWithRegistry(reg)

	if err := a.initDatabase(cfg.Database); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if err := a.initServices(cfg); err != nil {
		a.DB.Close()
		return nil, err
	}

	if opts.Server {
		if err := a.initServer(cfg); err != nil {
			a.DB.Close()
			return nil, fmt.Errorf("init http server: %w", err)
		}
	}

	holder.OnChange(a.applyConfig)
	holder.OnError(func(error) { a.Metrics.ConfigReloadErrors.Inc() })

	return a, nil
}

func (a *App) initDatabase(cfg config.DatabaseConfig) error {
	var (
		db      *sqlstore.DB
		err     error
		migrate func(*sqlstore.DB) error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = postgres.Open(cfg.DSN)
		migrate = postgres.Migrate
	default:
		db, err = sqlite.Open(cfg.DSN)
		migrate = sqlite.Migrate
	}
	if err != nil {
		return err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Logger.Info().Str("driver", cfg.Driver).Msg("database initialized")
	return nil
}

func (a *App) initServices(cfg *config.Config) error {
	keyStore := sqlstore.NewKeyStore(a.DB)
	restrictionStore := sqlstore.NewRestrictionStore(a.DB)
	accountStore := sqlstore.NewAccountStore(a.DB)
	billingStore := sqlstore.NewBillingStore(a.DB)

	a.Keys = app.NewKeyService(app.KeyDeps{
		Keys:     keyStore,
		Accounts: accountStore,
		Random:   random.Real{},
		IDGen:    a.idGen,
		Clock:    a.clock,
	}, a.Logger)
	a.Restrictions = app.NewRestrictionService(keyStore, restrictionStore, a.idGen, a.Logger)
	a.Accounts = app.NewAccountService(accountStore, sqlstore.NewInvoiceStore(a.DB))
	a.Usage = app.NewUsageRecorder(sqlstore.NewUsageStore(a.DB), a.clock, a.idGen)
	a.Invoices = app.NewInvoiceGenerator(billingStore, a.clock, a.idGen, a.Metrics, app.InvoiceConfig{
		Rate:    cfg.Billing.RateDecimal(),
		DueDays: cfg.Billing.DueDays,
	}, a.Logger)
	a.Delinquency = app.NewDelinquencyEvaluator(billingStore, a.clock, a.Metrics, a.Logger)

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, a.clock)
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}
	a.Tokens = tokens
	return nil
}

func (a *App) initServer(cfg *config.Config) error {
	locker, err := newLocker(cfg)
	if err != nil {
		return err
	}
	a.locker = locker
	a.Logger.Info().Str("serialize", cfg.Admission.Serialize).Msg("free-tier quota serialization")

	a.Admission = app.NewAdmissionService(app.AdmissionDeps{
		Keys:         sqlstore.NewKeyStore(a.DB),
		Restrictions: sqlstore.NewRestrictionStore(a.DB),
		Usage:        a.Usage,
		Settings:     a.Config,
		Locker:       locker,
	}, a.Logger)

	checks := map[string]apihttp.HealthChecker{
		"database": apihttp.HealthCheckFunc(func(ctx context.Context) error {
			return a.DB.PingContext(ctx)
		}),
	}

	var catalog http.Handler
	if cfg.Catalog.UpstreamURL != "" {
		proxy, err := apihttp.NewCatalogProxy(apihttp.CatalogConfig{
			UpstreamURL: cfg.Catalog.UpstreamURL,
			Timeout:     cfg.Catalog.Timeout,
			KeyHeader:   cfg.Admission.Header,
		}, a.Metrics, a.Logger)
		if err != nil {
			return err
		}
		catalog = proxy
		checks["catalog"] = proxy
	} else {
		a.Logger.Warn().Msg("no catalog upstream configured, catalog routes answer 503")
	}

	var metricsCollector *metrics.Collector
	if cfg.Metrics.IsEnabled() {
		metricsCollector = a.Metrics
	}

	a.Router, a.Routes = apihttp.NewRouter(apihttp.RouterConfig{
		Admission: apihttp.NewAdmissionMiddleware(a.Admission, cfg.Admission.Header, a.Metrics, a.Logger),
		Management: apihttp.NewAPIHandler(apihttp.APIDeps{
			Keys:         a.Keys,
			Restrictions: a.Restrictions,
			Accounts:     a.Accounts,
			Delinquency:  a.Delinquency,
			Logger:       a.Logger,
		}),
		Auth:        apihttp.BearerAuth(a.Tokens, a.Logger),
		Catalog:     catalog,
		Health:      apihttp.NewHealthHandler(checks),
		Metrics:     metricsCollector,
		MetricsPath: cfg.Metrics.Path,
		Docs:        true,
		Timeout:     cfg.Server.WriteTimeout,
	}, a.Logger)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Billing.SchedulerEnabled() {
		a.Scheduler = app.NewBillingScheduler(a.Invoices, a.Delinquency, a.Metrics, cfg.Billing.Interval, a.Logger)
	}
	return nil
}

func newLocker(cfg *config.Config) (ports.KeyLocker, error) {
	switch cfg.Admission.Serialize {
	case config.SerializeLocal:
		return lock.NewLocal(0), nil
	case config.SerializeRedis:
		l, err := lock.NewRedis(lock.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
			Wait:     cfg.Redis.LockWait,
		}, uuid.NewString)
		if err != nil {
			return nil, fmt.Errorf("init redis lock: %w", err)
		}
		return l, nil
	default:
		return lock.None{}, nil
	}
}

// applyConfig reacts to a successful reload. The quota is read from the
// holder on every request, so only logging needs updating here.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Metrics.ConfigReloaded(a.clock.Now())
}

// Run starts the HTTP server and the billing scheduler and blocks until
// SIGINT or SIGTERM.
func (a *App) Run() error {
	if a.HTTPServer == nil {
		return fmt.Errorf("run: app was built without a server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if c, ok := a.locker.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("lock close error")
		}
	}

	if a.Config != nil {
		a.Config.Stop()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the process logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
