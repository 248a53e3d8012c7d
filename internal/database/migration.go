package database

import (
	"embed"
	"fmt"
	"log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies the schema in migrations/001_init.sql exactly
// once, tracked via a schema_migrations table, matching the teacher's
// idempotent migration idiom (internal/database/migration.go originally),
// trimmed of the TimescaleDB/log-partitioning steps that don't apply to
// Gruxi's configuration schema.
func (db *DB) RunMigrations() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var exists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = '001_init')`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if exists {
		log.Println("schema already initialized")
		return nil
	}

	content, err := migrationFS.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("failed to read 001_init.sql: %w", err)
	}

	log.Println("running initial schema migration (001_init.sql)")
	if _, err := db.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to apply schema migration: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_migrations (version) VALUES ('001_init')`); err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}
	log.Println("initial schema migration completed")
	return nil
}
