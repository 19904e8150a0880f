package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// InvoiceGenerator bills paid-tier usage of the previous calendar month.
type InvoiceGenerator struct {
	billing  ports.BillingStore
	clock    ports.Clock
	idGen    ports.IDGenerator
	observer ports.BillingObserver
	rate     decimal.Decimal
	dueDays  int
	logger   zerolog.Logger
}

// InvoiceConfig configures pricing for the generator.
type InvoiceConfig struct {
	Rate    decimal.Decimal // per admitted paid request; zero means billing.DefaultRate
	DueDays int             // zero means billing.DefaultDueDays
}

// NewInvoiceGenerator creates a new invoice generator.
func NewInvoiceGenerator(store ports.BillingStore, clock ports.Clock, idGen ports.IDGenerator, observer ports.BillingObserver, cfg InvoiceConfig, logger zerolog.Logger) *InvoiceGenerator {
	if cfg.Rate.IsZero() {
		cfg.Rate = billing.DefaultRate
	}
	if cfg.DueDays <= 0 {
		cfg.DueDays = billing.DefaultDueDays
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &InvoiceGenerator{
		billing:  store,
		clock:    clock,
		idGen:    idGen,
		observer: observer,
		rate:     cfg.Rate,
		dueDays:  cfg.DueDays,
		logger:   logger.With().Str("service", "invoices").Logger(),
	}
}

// Run emits invoices for the month before now. A period is emitted at most
// once; later runs for it report Skipped and write nothing.
func (g *InvoiceGenerator) Run(ctx context.Context) (billing.RunResult, error) {
	now := g.clock.Now().UTC()
	result := billing.RunResult{
		Period: billing.PreviousPeriod(now),
		Total:  decimal.Zero,
	}
	p := result.Period

	err := g.billing.Transaction(ctx, func(tx ports.BillingTx) error {
		emitted, err := tx.EmitPeriod(ctx, p, now)
		if err != nil {
			return fmt.Errorf("emit period marker: %w", err)
		}
		if !emitted {
			result.Skipped = true
			return nil
		}

		counts, err := tx.PaidUsageByAccount(ctx, p.Start(), p.End())
		if err != nil {
			return fmt.Errorf("aggregate usage: %w", err)
		}

		for _, c := range counts {
			inv, ok := billing.NewInvoice(g.idGen.New(), c.AccountID, p, c.Count, g.rate, now, g.dueDays)
			if !ok {
				continue
			}
			if err := tx.CreateInvoice(ctx, inv); err != nil {
				return fmt.Errorf("create invoice for %s: %w", c.AccountID, err)
			}
			result.Invoices = append(result.Invoices, inv)
			result.Total = result.Total.Add(inv.Amount)
		}
		return nil
	})
	if err != nil {
		return billing.RunResult{Period: p}, err
	}

	if result.Skipped {
		g.logger.Debug().Str("period", p.String()).Msg("period already invoiced")
	} else {
		g.logger.Info().
			Str("period", p.String()).
			Int("invoices", len(result.Invoices)).
			Str("total", result.Total.StringFixed(2)).
			Msg("invoices emitted")
	}
	g.observer.InvoiceRun(result)
	return result, nil
}
