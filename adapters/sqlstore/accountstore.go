package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/account"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// AccountStore implements ports.AccountStore.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates a new SQL account store.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// Ensure creates the account if it does not exist.
func (s *AccountStore) Ensure(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.conn().exec(ctx, `
		INSERT INTO accounts (id, delinquent, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, false, at.UTC())
	return err
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, id string) (account.Account, error) {
	row := s.db.conn().queryRow(ctx, `
		SELECT id, delinquent, created_at FROM accounts WHERE id = ?
	`, id)
	return scanAccount(row)
}

// List returns all accounts.
func (s *AccountStore) List(ctx context.Context) ([]account.Account, error) {
	rows, err := s.db.conn().query(ctx, `
		SELECT id, delinquent, created_at FROM accounts ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(sc scanner) (account.Account, error) {
	var a account.Account
	err := sc.Scan(&a.ID, &a.Delinquent, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, ports.ErrNotFound
	}
	if err != nil {
		return account.Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// Ensure interface compliance.
var _ ports.AccountStore = (*AccountStore)(nil)
