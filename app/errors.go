// Package app provides application services that orchestrate domain logic.
package app

import (
	"errors"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

var (
	// ErrForbidden is returned when an account acts on a resource it does not own.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

// owns reports whether accountID may act on a resource owned by owner.
// An empty accountID is operator access (CLI) and owns everything.
func owns(accountID, owner string) bool {
	return accountID == "" || accountID == owner
}

type nopObserver struct{}

func (nopObserver) InvoiceRun(billing.RunResult) {}
func (nopObserver) DelinquencyRun(int) {}
func (nopObserver) Payment(billing.PaymentResult) {}
func (nopObserver) JobFailed(string) {}

var _ ports.BillingObserver = nopObserver{}
