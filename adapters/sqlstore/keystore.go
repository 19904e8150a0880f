package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// KeyStore implements ports.KeyStore.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new SQL key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

const keyColumns = `id, account_id, token, tier, active, created_at`

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	_, err := s.db.conn().exec(ctx, `
		INSERT INTO api_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, k.ID, k.AccountID, k.Token, string(k.Tier), k.Active, k.CreatedAt.UTC())
	if isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Get retrieves a key by ID.
func (s *KeyStore) Get(ctx context.Context, id string) (key.Key, error) {
	row := s.db.conn().queryRow(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		WHERE id = ?
	`, id)
	return scanKey(row)
}

// GetByToken retrieves a key by its token.
func (s *KeyStore) GetByToken(ctx context.Context, token string) (key.Key, error) {
	row := s.db.conn().queryRow(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		WHERE token = ?
	`, token)
	return scanKey(row)
}

// ListByAccount returns all keys owned by an account.
func (s *KeyStore) ListByAccount(ctx context.Context, accountID string) ([]key.Key, error) {
	return s.list(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		WHERE account_id = ?
		ORDER BY created_at, id
	`, accountID)
}

// List returns every key.
func (s *KeyStore) List(ctx context.Context) ([]key.Key, error) {
	return s.list(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		ORDER BY account_id, created_at, id
	`)
}

func (s *KeyStore) list(ctx context.Context, query string, args ...any) ([]key.Key, error) {
	rows, err := s.db.conn().query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []key.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// UpdateToken replaces a key's token in place.
func (s *KeyStore) UpdateToken(ctx context.Context, id, token string) error {
	result, err := s.db.conn().exec(ctx, `UPDATE api_keys SET token = ? WHERE id = ?`, token, id)
	if isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// SetActive sets a key's active flag.
func (s *KeyStore) SetActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.conn().exec(ctx, `UPDATE api_keys SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// Delete permanently removes a key. Its usage events are kept.
func (s *KeyStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.conn().exec(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanKey(sc scanner) (key.Key, error) {
	var k key.Key
	var tier string

	err := sc.Scan(&k.ID, &k.AccountID, &k.Token, &tier, &k.Active, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return key.Key{}, ports.ErrNotFound
	}
	if err != nil {
		return key.Key{}, err
	}

	k.Tier = key.Tier(tier)
	k.CreatedAt = k.CreatedAt.UTC()
	return k, nil
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
