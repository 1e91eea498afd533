package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// MergeConfig configures the merge operation.
type MergeConfig struct {
	// SourcePaths are the manifest files to merge from.
	SourcePaths []string
	// DestPath is the destination manifest file.
	DestPath string
}

// MergeStats tracks merge operation statistics.
type MergeStats struct {
	SubmissionsMerged int
	LeavesMerged      int
	FailuresMerged    int
	SourcesProcessed  int
}

// Merge combines multiple manifests into one.
// Deduplication is handled via INSERT OR IGNORE on the unique keys.
func Merge(cfg MergeConfig) (*MergeStats, error) {
	if len(cfg.SourcePaths) == 0 {
		return nil, fmt.Errorf("no source manifests specified")
	}
	if cfg.DestPath == "" {
		return nil, fmt.Errorf("destination path is required")
	}

	destDB, err := sql.Open(driverName, cfg.DestPath)
	if err != nil {
		return nil, fmt.Errorf("opening destination manifest: %w", err)
	}
	defer destDB.Close()

	if err := CreateSchema(destDB); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	stats := &MergeStats{}
	for _, sourcePath := range cfg.SourcePaths {
		sourceStats, err := mergeFrom(destDB, sourcePath)
		if err != nil {
			return stats, fmt.Errorf("merging from %s: %w", sourcePath, err)
		}
		stats.SubmissionsMerged += sourceStats.SubmissionsMerged
		stats.LeavesMerged += sourceStats.LeavesMerged
		stats.FailuresMerged += sourceStats.FailuresMerged
		stats.SourcesProcessed++
	}

	return stats, nil
}

// mergeFrom copies rows from one source manifest in a single transaction.
func mergeFrom(destDB *sql.DB, sourcePath string) (*MergeStats, error) {
	sourceDB, err := sql.Open(driverName, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("opening source manifest: %w", err)
	}
	defer sourceDB.Close()

	version, err := schemaVersion(sourceDB)
	if err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if version != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d (want %d)", version, SchemaVersion)
	}

	tx, err := destDB.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stats := &MergeStats{}

	if stats.SubmissionsMerged, err = copyRows(tx, sourceDB,
		"SELECT id, source, started, finished FROM submissions ORDER BY seq",
		"INSERT OR IGNORE INTO submissions (id, source, started, finished) VALUES (?, ?, ?, ?)",
		4,
	); err != nil {
		return nil, fmt.Errorf("merging submissions: %w", err)
	}

	if stats.LeavesMerged, err = copyRows(tx, sourceDB,
		"SELECT submission_id, member, path, kind, size, blob_id FROM leaves ORDER BY id",
		"INSERT OR IGNORE INTO leaves (submission_id, member, path, kind, size, blob_id) VALUES (?, ?, ?, ?, ?, ?)",
		6,
	); err != nil {
		return nil, fmt.Errorf("merging leaves: %w", err)
	}

	if stats.FailuresMerged, err = copyRows(tx, sourceDB,
		"SELECT submission_id, op, path, message FROM failures ORDER BY id",
		"INSERT OR IGNORE INTO failures (submission_id, op, path, message) VALUES (?, ?, ?, ?)",
		4,
	); err != nil {
		return nil, fmt.Errorf("merging failures: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return stats, nil
}

// copyRows runs query on the source and feeds each row of n columns to
// insert, returning how many rows were actually inserted.
func copyRows(tx *sql.Tx, sourceDB *sql.DB, query, insert string, n int) (int, error) {
	rows, err := sourceDB.Query(query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	stmt, err := tx.Prepare(insert)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return count, err
		}
		result, err := stmt.Exec(values...)
		if err != nil {
			return count, err
		}
		affected, _ := result.RowsAffected()
		if affected > 0 {
			count++
		}
	}
	return count, rows.Err()
}
