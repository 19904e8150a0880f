// Package postgres opens PostgreSQL databases for the SQL stores.
package postgres

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*sqlstore.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return sqlstore.New(db, sqlstore.Postgres), nil
}

// Migrate runs all pending PostgreSQL migrations.
func Migrate(db *sqlstore.DB) error {
	return db.Migrate(migrationsFS, "migrations")
}
