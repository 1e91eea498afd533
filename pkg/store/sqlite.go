package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/akernet/logbuddy/pkg/types"
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-based store.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database lives in a single connection.
	db.SetMaxOpenConns(1)

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// AddSubmission stores a submission record.
func (s *SQLiteStore) AddSubmission(sub Submission) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO submissions (id, source, started, finished)
		VALUES (?, ?, ?, ?)
	`,
		sub.ID,
		sub.Source,
		formatTime(sub.Started),
		formatTime(sub.Finished),
	)
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	return nil
}

// AddLeaf stores a leaf under a submission.
func (s *SQLiteStore) AddLeaf(submission string, l types.Leaf) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO leaves (submission_id, member, path, kind, size, blob_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		submission,
		l.Member,
		l.Path,
		l.Kind.String(),
		l.Size,
		l.BlobID,
	)
	if err != nil {
		return fmt.Errorf("inserting leaf: %w", err)
	}
	return nil
}

// AddFailure stores a branch failure under a submission.
func (s *SQLiteStore) AddFailure(submission string, f types.Failure) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO failures (submission_id, op, path, message)
		VALUES (?, ?, ?, ?)
	`,
		submission,
		string(f.Op),
		f.Path,
		f.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting failure: %w", err)
	}
	return nil
}

// GetSubmissions retrieves all submissions in insertion order.
func (s *SQLiteStore) GetSubmissions() ([]Submission, error) {
	rows, err := s.db.Query(`
		SELECT id, source, started, finished
		FROM submissions
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var sub Submission
		var started, finished sql.NullString

		if err := rows.Scan(&sub.ID, &sub.Source, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		if sub.Started, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parsing started time: %w", err)
		}
		if sub.Finished, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parsing finished time: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating submissions: %w", err)
	}

	return subs, nil
}

// GetLeaves retrieves a submission's leaves in insertion order.
func (s *SQLiteStore) GetLeaves(submission string) ([]types.Leaf, error) {
	rows, err := s.db.Query(`
		SELECT member, path, kind, size, blob_id
		FROM leaves
		WHERE submission_id = ?
		ORDER BY id
	`, submission)
	if err != nil {
		return nil, fmt.Errorf("querying leaves: %w", err)
	}
	defer rows.Close()

	var leaves []types.Leaf
	for rows.Next() {
		var l types.Leaf
		var kind string

		if err := rows.Scan(&l.Member, &l.Path, &kind, &l.Size, &l.BlobID); err != nil {
			return nil, fmt.Errorf("scanning leaf: %w", err)
		}
		if l.Kind, err = types.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("parsing leaf kind: %w", err)
		}
		leaves = append(leaves, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaves: %w", err)
	}

	return leaves, nil
}

// GetFailures retrieves a submission's failures in insertion order.
func (s *SQLiteStore) GetFailures(submission string) ([]types.Failure, error) {
	rows, err := s.db.Query(`
		SELECT op, path, message
		FROM failures
		WHERE submission_id = ?
		ORDER BY id
	`, submission)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var failures []types.Failure
	for rows.Next() {
		var f types.Failure
		var op string

		if err := rows.Scan(&op, &f.Path, &f.Message); err != nil {
			return nil, fmt.Errorf("scanning failure: %w", err)
		}
		f.Op = types.Op(op)
		failures = append(failures, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failures: %w", err)
	}

	return failures, nil
}

// LeafExists checks if any submission produced content with this blob ID.
func (s *SQLiteStore) LeafExists(id types.BlobID) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM leaves WHERE blob_id = ?", id.Hex()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking leaf existence: %w", err)
	}
	return count > 0, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s.String)
}
