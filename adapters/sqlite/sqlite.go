// Package sqlite opens SQLite databases for the SQL stores.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open creates a new SQLite database connection.
func Open(path string) (*sqlstore.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return sqlstore.New(db, sqlstore.SQLite), nil
}

// Migrate runs all pending SQLite migrations.
func Migrate(db *sqlstore.DB) error {
	return db.Migrate(migrationsFS, "migrations")
}
