package app

import (
	"context"
	"errors"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/account"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// AccountService serves read-only account and invoice views.
type AccountService struct {
	accounts ports.AccountStore
	invoices ports.InvoiceStore
}

// NewAccountService creates a new account service.
func NewAccountService(accounts ports.AccountStore, invoices ports.InvoiceStore) *AccountService {
	return &AccountService{accounts: accounts, invoices: invoices}
}

// View returns the account. An account that never created a key is
// reported as a fresh, non-delinquent account.
func (s *AccountService) View(ctx context.Context, accountID string) (account.Account, error) {
	a, err := s.accounts.Get(ctx, accountID)
	if errors.Is(err, ports.ErrNotFound) {
		return account.Account{ID: accountID}, nil
	}
	return a, err
}

// List returns all known accounts.
func (s *AccountService) List(ctx context.Context) ([]account.Account, error) {
	return s.accounts.List(ctx)
}

// Invoices returns the account's invoices, newest period first.
func (s *AccountService) Invoices(ctx context.Context, accountID string) ([]billing.Invoice, error) {
	return s.invoices.ListByAccount(ctx, accountID)
}

// Invoice returns one invoice owned by accountID.
func (s *AccountService) Invoice(ctx context.Context, accountID, invoiceID string) (billing.Invoice, error) {
	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return billing.Invoice{}, err
	}
	if !owns(accountID, inv.AccountID) {
		return billing.Invoice{}, ErrForbidden
	}
	return inv, nil
}

// EmittedPeriods lists every billed period, oldest first.
func (s *AccountService) EmittedPeriods(ctx context.Context) ([]billing.Period, error) {
	return s.invoices.ListEmittedPeriods(ctx)
}
