// Package database wraps *sql.DB with the connection-opening and
// migration-running conventions used throughout Gruxi's persisted
// configuration store.
//
// Grounded on the teacher's internal/database package (the DB wrapper
// type itself was not retrieved in the example pack's filtered copy, but
// every repository file — e.g. internal/repository/auth.go — assumes a
// *sql.DB-embedding DB type with a lib/pq driver, which this file
// restores).
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB embeds the standard library handle so repository code can call
// query/exec methods directly on it, matching the teacher's repository
// layer (internal/repository/*.go use `db *sql.DB` fields passed this
// way).
type DB struct {
	*sql.DB
}

// Connect opens a Postgres connection pool at dsn and verifies
// connectivity.
func Connect(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return &DB{DB: sqlDB}, nil
}
