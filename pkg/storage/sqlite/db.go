// Package sqlite provides the SQLite-backed storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Register the pure-Go sqlite driver.
	_ "modernc.org/sqlite"
)

// DB wraps the underlying SQLite connection pool.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file at path and applies
// all pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn between concurrent goroutines.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// DB returns the underlying sql.DB.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}
