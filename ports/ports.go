// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/account"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
)

// Store errors shared by all adapters.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("already exists")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Random abstracts randomness for testability.
type Random interface {
	// Bytes generates n random bytes.
	Bytes(n int) ([]byte, error)
	// String generates a random string of n characters.
	String(n int) (string, error)
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// KeyLocker serializes work on a single API key.
// Lock blocks until the lock is held or ctx ends.
type KeyLocker interface {
	Lock(ctx context.Context, keyID string) (unlock func(), err error)
}

// AdmissionSettings exposes hot-reloadable admission settings.
// Implementations must return the current value on every call.
type AdmissionSettings interface {
	FreeDailyQuota() int
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// KeyStore persists API keys.
// It performs no authorization; callers verify ownership first.
type KeyStore interface {
	// Create stores a new key.
	Create(ctx context.Context, k key.Key) error

	// Get retrieves a key by ID.
	Get(ctx context.Context, id string) (key.Key, error)

	// GetByToken retrieves a key by its secret token.
	GetByToken(ctx context.Context, token string) (key.Key, error)

	// ListByAccount returns all keys owned by an account.
	ListByAccount(ctx context.Context, accountID string) ([]key.Key, error)

	// List returns every key.
	List(ctx context.Context) ([]key.Key, error)

	// UpdateToken replaces a key's token in place.
	UpdateToken(ctx context.Context, id, token string) error

	// SetActive sets a key's active flag.
	SetActive(ctx context.Context, id string, active bool) error

	// Delete permanently removes a key.
	Delete(ctx context.Context, id string) error
}

// UsageStore persists usage events.
type UsageStore interface {
	// Record appends one usage event.
	Record(ctx context.Context, e usage.Event) error

	// CountSince counts a key's events with timestamp >= since.
	CountSince(ctx context.Context, keyID string, since time.Time) (int64, error)

	// ListByKey returns a key's events in [start, end), oldest first.
	ListByKey(ctx context.Context, keyID string, start, end time.Time) ([]usage.Event, error)
}

// RestrictionStore persists per-key domain and IP restrictions.
type RestrictionStore interface {
	ForKey(ctx context.Context, keyID string) (key.Restrictions, error)

	CreateDomain(ctx context.Context, r key.DomainRestriction) error
	GetDomain(ctx context.Context, id string) (key.DomainRestriction, error)
	UpdateDomain(ctx context.Context, id, domain string) error
	DeleteDomain(ctx context.Context, id string) error

	CreateIP(ctx context.Context, r key.IPRestriction) error
	GetIP(ctx context.Context, id string) (key.IPRestriction, error)
	DeleteIP(ctx context.Context, id string) error
}

// AccountStore persists the account view.
type AccountStore interface {
	// Ensure creates the account if it does not exist.
	Ensure(ctx context.Context, id string, at time.Time) error

	// Get retrieves an account by ID.
	Get(ctx context.Context, id string) (account.Account, error)

	// List returns all accounts.
	List(ctx context.Context) ([]account.Account, error)
}

// InvoiceStore provides read access to invoices and emitted periods.
type InvoiceStore interface {
	Get(ctx context.Context, id string) (billing.Invoice, error)
	ListByAccount(ctx context.Context, accountID string) ([]billing.Invoice, error)
	ListEmittedPeriods(ctx context.Context) ([]billing.Period, error)
}

// BillingTx is the set of operations available inside a billing transaction.
type BillingTx interface {
	// EmitPeriod inserts the emitted-period marker. It returns false,
	// without error, when the period was already emitted.
	EmitPeriod(ctx context.Context, p billing.Period, at time.Time) (bool, error)

	// PaidUsageByAccount counts paid-tier events per account in [start, end).
	PaidUsageByAccount(ctx context.Context, start, end time.Time) ([]usage.AccountCount, error)

	// CreateInvoice stores a new invoice.
	CreateInvoice(ctx context.Context, inv billing.Invoice) error

	// GetInvoice retrieves an invoice by ID.
	GetInvoice(ctx context.Context, id string) (billing.Invoice, error)

	// SetInvoicePaid marks an invoice paid.
	SetInvoicePaid(ctx context.Context, id string, at time.Time) error

	// OverdueAccounts lists accounts with an unpaid invoice due before cutoff.
	OverdueAccounts(ctx context.Context, cutoff time.Time) ([]string, error)

	// CountOverdue counts an account's unpaid invoices due before cutoff.
	CountOverdue(ctx context.Context, accountID string, cutoff time.Time) (int64, error)

	// SetDelinquent writes an account's delinquent flag.
	SetDelinquent(ctx context.Context, accountID string, delinquent bool) error
}

// BillingStore runs billing work atomically.
// If fn returns an error, nothing it wrote is persisted.
type BillingStore interface {
	Transaction(ctx context.Context, fn func(tx BillingTx) error) error
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// BillingObserver receives billing job outcomes.
type BillingObserver interface {
	InvoiceRun(result billing.RunResult)
	DelinquencyRun(flagged int)
	Payment(result billing.PaymentResult)
	JobFailed(job string)
}
