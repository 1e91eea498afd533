package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// CreateSchema creates the database schema if it doesn't exist.
func CreateSchema(db *sql.DB) error {
	if err := createSchemaVersionTable(db); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	if err := createSubmissionsTable(db); err != nil {
		return fmt.Errorf("creating submissions table: %w", err)
	}

	if err := createLeavesTable(db); err != nil {
		return fmt.Errorf("creating leaves table: %w", err)
	}

	if err := createFailuresTable(db); err != nil {
		return fmt.Errorf("creating failures table: %w", err)
	}

	return nil
}

// schemaVersion reads the stored version.
func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	return version, err
}

func createSchemaVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if err != nil {
		return err
	}

	if count == 0 {
		_, err = db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion)
		return err
	}

	version, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if version != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", version, SchemaVersion)
	}
	return nil
}

func createSubmissionsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS submissions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			started TEXT,
			finished TEXT
		)
	`)
	return err
}

func createLeavesTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leaves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			submission_id TEXT NOT NULL REFERENCES submissions(id),
			member TEXT NOT NULL,
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			size INTEGER NOT NULL,
			blob_id TEXT NOT NULL,
			UNIQUE(submission_id, member)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_leaves_blob_id ON leaves(blob_id)
	`)
	return err
}

func createFailuresTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			submission_id TEXT NOT NULL REFERENCES submissions(id),
			op TEXT NOT NULL,
			path TEXT NOT NULL,
			message TEXT NOT NULL,
			UNIQUE(submission_id, op, path, message)
		)
	`)
	return err
}
