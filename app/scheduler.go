package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// DefaultBillingInterval is how often the billing jobs run.
const DefaultBillingInterval = 24 * time.Hour

// Job names reported to the observer.
const (
	JobInvoices    = "invoices"
	JobDelinquency = "delinquency"
)

// BillingScheduler runs the invoice generator and then the delinquency
// evaluator once at start and then on every interval.
type BillingScheduler struct {
	generator *InvoiceGenerator
	evaluator *DelinquencyEvaluator
	observer  ports.BillingObserver
	interval  time.Duration
	logger    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBillingScheduler creates a scheduler. A non-positive interval means
// DefaultBillingInterval.
func NewBillingScheduler(generator *InvoiceGenerator, evaluator *DelinquencyEvaluator, observer ports.BillingObserver, interval time.Duration, logger zerolog.Logger) *BillingScheduler {
	if interval <= 0 {
		interval = DefaultBillingInterval
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &BillingScheduler{
		generator: generator,
		evaluator: evaluator,
		observer:  observer,
		interval:  interval,
		logger:    logger.With().Str("service", "billing_scheduler").Logger(),
	}
}

// Start launches the loop. It returns immediately; calling it twice is a no-op.
func (s *BillingScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().Dur("interval", s.interval).Msg("billing scheduler started")
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *BillingScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("billing scheduler stopped")
}

func (s *BillingScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_ = s.Tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs both jobs once. Jobs are detached from ctx cancellation so
// shutdown never interrupts a billing transaction. The evaluator runs even
// when the generator fails.
func (s *BillingScheduler) Tick(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	jobCtx := context.WithoutCancel(ctx)

	var errs []error
	if _, err := s.generator.Run(jobCtx); err != nil {
		s.fail(JobInvoices, err)
		errs = append(errs, err)
	}
	if _, err := s.evaluator.Evaluate(jobCtx); err != nil {
		s.fail(JobDelinquency, err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *BillingScheduler) fail(job string, err error) {
	s.observer.JobFailed(job)
	s.logger.Error().Err(err).Str("job", job).Msg("billing job failed; retrying next interval")
}
