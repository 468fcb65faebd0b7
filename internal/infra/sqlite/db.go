// Package sqlite is the embedded persistence layer.
// It stores schemaless documents for the engines and credentials for the
// identity service in a single SQLite file.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/splitpal/splitpal/internal/domain"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the storage directory.
const FileName = "splitpal.db"

// DB wraps the SQLite handle and the subscription hub.
type DB struct {
	db   *sql.DB
	hub  *hub
	done chan struct{}
}

// Open opens (or creates) the database in dir and applies all migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection serializes writers; every batch is one SQL transaction.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB, hub: newHub(), done: make(chan struct{})}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close stops all subscriptions and closes the database.
func (db *DB) Close() error {
	select {
	case <-db.done:
	default:
		close(db.done)
	}
	return db.db.Close()
}

// Migrations returns every schema statement, in order.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return append(DocumentMigrations(), CredentialMigrations()...)
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// unavailable classifies a driver error as a backend failure.
// Domain errors pass through untouched.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}
