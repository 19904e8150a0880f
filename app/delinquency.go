package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// DelinquencyEvaluator owns the accounts' delinquent flag.
type DelinquencyEvaluator struct {
	billing  ports.BillingStore
	clock    ports.Clock
	observer ports.BillingObserver
	logger   zerolog.Logger
}

// NewDelinquencyEvaluator creates a new delinquency evaluator.
func NewDelinquencyEvaluator(store ports.BillingStore, clock ports.Clock, observer ports.BillingObserver, logger zerolog.Logger) *DelinquencyEvaluator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &DelinquencyEvaluator{
		billing:  store,
		clock:    clock,
		observer: observer,
		logger:   logger.With().Str("service", "delinquency").Logger(),
	}
}

// Evaluate flags every account holding an unpaid invoice due before today
// (UTC). It returns the flagged account IDs.
func (e *DelinquencyEvaluator) Evaluate(ctx context.Context) ([]string, error) {
	today := billing.Today(e.clock.Now())

	var flagged []string
	err := e.billing.Transaction(ctx, func(tx ports.BillingTx) error {
		ids, err := tx.OverdueAccounts(ctx, today)
		if err != nil {
			return fmt.Errorf("list overdue accounts: %w", err)
		}
		for _, id := range ids {
			if err := tx.SetDelinquent(ctx, id, true); err != nil {
				return fmt.Errorf("flag %s: %w", id, err)
			}
		}
		flagged = ids
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(flagged) > 0 {
		e.logger.Info().Strs("accounts", flagged).Msg("accounts flagged delinquent")
	}
	e.observer.DelinquencyRun(len(flagged))
	return flagged, nil
}

// MarkPaid settles an invoice and clears the account's delinquent flag when
// no overdue invoice remains. Paying a paid invoice is a successful no-op.
func (e *DelinquencyEvaluator) MarkPaid(ctx context.Context, invoiceID string) (billing.PaymentResult, error) {
	now := e.clock.Now().UTC()
	today := billing.Today(now)

	var result billing.PaymentResult
	err := e.billing.Transaction(ctx, func(tx ports.BillingTx) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Paid {
			result = billing.PaymentResult{Invoice: inv, AlreadySettled: true}
			return nil
		}

		if err := tx.SetInvoicePaid(ctx, inv.ID, now); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		inv.Paid = true
		inv.PaidAt = &now
		result = billing.PaymentResult{Invoice: inv}

		remaining, err := tx.CountOverdue(ctx, inv.AccountID, today)
		if err != nil {
			return fmt.Errorf("count overdue: %w", err)
		}
		if remaining == 0 {
			if err := tx.SetDelinquent(ctx, inv.AccountID, false); err != nil {
				return fmt.Errorf("clear delinquency: %w", err)
			}
			result.DelinquencyCleared = true
		}
		return nil
	})
	if err != nil {
		return billing.PaymentResult{}, err
	}

	e.logger.Info().
		Str("invoice_id", invoiceID).
		Str("account_id", result.Invoice.AccountID).
		Bool("already_settled", result.AlreadySettled).
		Bool("delinquency_cleared", result.DelinquencyCleared).
		Msg("invoice payment processed")
	e.observer.Payment(result)
	return result, nil
}
