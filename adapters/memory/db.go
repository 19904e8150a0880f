// Package memory provides in-memory implementations of the storage ports
// for tests and single-process development runs.
package memory

import (
	"sync"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/account"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
)

// DB holds all in-memory state. Stores created from the same DB see each
// other's writes, and billing transactions are atomic across all of them.
type DB struct {
	mu sync.RWMutex

	keys     map[string]key.Key // by ID
	tokens   map[string]string  // token -> key ID
	events   map[string][]usage.Event
	domains  map[string]key.DomainRestriction
	ips      map[string]key.IPRestriction
	accounts map[string]account.Account
	invoices map[string]billing.Invoice
	periods  map[billing.Period]time.Time
}

// NewDB creates an empty in-memory database.
func NewDB() *DB {
	return &DB{
		keys:     make(map[string]key.Key),
		tokens:   make(map[string]string),
		events:   make(map[string][]usage.Event),
		domains:  make(map[string]key.DomainRestriction),
		ips:      make(map[string]key.IPRestriction),
		accounts: make(map[string]account.Account),
		invoices: make(map[string]billing.Invoice),
		periods:  make(map[billing.Period]time.Time),
	}
}

// Clear removes all state (for testing).
func (db *DB) Clear() {
	fresh := NewDB()

	db.mu.Lock()
	defer db.mu.Unlock()
	db.keys = fresh.keys
	db.tokens = fresh.tokens
	db.events = fresh.events
	db.domains = fresh.domains
	db.ips = fresh.ips
	db.accounts = fresh.accounts
	db.invoices = fresh.invoices
	db.periods = fresh.periods
}
