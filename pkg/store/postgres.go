package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akernet/logbuddy/pkg/types"
)

// pgSchema mirrors the SQLite schema in PostgreSQL dialect.
var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		started TIMESTAMPTZ,
		finished TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS leaves (
		id BIGSERIAL PRIMARY KEY,
		submission_id TEXT NOT NULL REFERENCES submissions(id),
		member TEXT NOT NULL,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		size BIGINT NOT NULL,
		blob_id TEXT NOT NULL,
		UNIQUE(submission_id, member)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leaves_blob_id ON leaves(blob_id)`,
	`CREATE TABLE IF NOT EXISTS failures (
		id BIGSERIAL PRIMARY KEY,
		submission_id TEXT NOT NULL REFERENCES submissions(id),
		op TEXT NOT NULL,
		path TEXT NOT NULL,
		message TEXT NOT NULL,
		UNIQUE(submission_id, op, path, message)
	)`,
}

// IsPostgresURL reports whether path is a PostgreSQL connection string.
func IsPostgresURL(path string) bool {
	return strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://")
}

// PostgresStore implements Store on a shared PostgreSQL database, so
// several machines can record into one manifest.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgres connects to connString and creates the schema.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &PostgresStore{pool: pool, timeout: 30 * time.Second}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err := s.pool.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", SchemaVersion)
		return err
	}

	var version int
	if err := s.pool.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return err
	}
	if version != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", version, SchemaVersion)
	}
	return nil
}

func (s *PostgresStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// AddSubmission stores a submission record.
func (s *PostgresStore) AddSubmission(sub Submission) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (id, source, started, finished)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, sub.ID, sub.Source, nullTime(sub.Started), nullTime(sub.Finished))
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	return nil
}

// AddLeaf stores a leaf under a submission.
func (s *PostgresStore) AddLeaf(submission string, l types.Leaf) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO leaves (submission_id, member, path, kind, size, blob_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`, submission, l.Member, l.Path, l.Kind.String(), l.Size, l.BlobID.Hex())
	if err != nil {
		return fmt.Errorf("inserting leaf: %w", err)
	}
	return nil
}

// AddFailure stores a branch failure under a submission.
func (s *PostgresStore) AddFailure(submission string, f types.Failure) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO failures (submission_id, op, path, message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, submission, string(f.Op), f.Path, f.Message)
	if err != nil {
		return fmt.Errorf("inserting failure: %w", err)
	}
	return nil
}

// GetSubmissions retrieves all submissions in insertion order.
func (s *PostgresStore) GetSubmissions() ([]Submission, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, source, started, finished
		FROM submissions
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}

	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Submission, error) {
		var sub Submission
		var started, finished *time.Time
		if err := row.Scan(&sub.ID, &sub.Source, &started, &finished); err != nil {
			return sub, err
		}
		if started != nil {
			sub.Started = started.UTC()
		}
		if finished != nil {
			sub.Finished = finished.UTC()
		}
		return sub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning submissions: %w", err)
	}
	return subs, nil
}

// GetLeaves retrieves a submission's leaves in insertion order.
func (s *PostgresStore) GetLeaves(submission string) ([]types.Leaf, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT member, path, kind, size, blob_id
		FROM leaves
		WHERE submission_id = $1
		ORDER BY id
	`, submission)
	if err != nil {
		return nil, fmt.Errorf("querying leaves: %w", err)
	}

	leaves, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Leaf, error) {
		var l types.Leaf
		var kind, blob string
		if err := row.Scan(&l.Member, &l.Path, &kind, &l.Size, &blob); err != nil {
			return l, err
		}
		var err error
		if l.Kind, err = types.ParseKind(kind); err != nil {
			return l, err
		}
		if l.BlobID, err = types.ParseBlobID(blob); err != nil {
			return l, err
		}
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning leaves: %w", err)
	}
	return leaves, nil
}

// GetFailures retrieves a submission's failures in insertion order.
func (s *PostgresStore) GetFailures(submission string) ([]types.Failure, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT op, path, message
		FROM failures
		WHERE submission_id = $1
		ORDER BY id
	`, submission)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}

	failures, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Failure, error) {
		var f types.Failure
		var op string
		if err := row.Scan(&op, &f.Path, &f.Message); err != nil {
			return f, err
		}
		f.Op = types.Op(op)
		return f, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning failures: %w", err)
	}
	return failures, nil
}

// LeafExists checks if any submission produced content with this blob ID.
func (s *PostgresStore) LeafExists(id types.BlobID) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM leaves WHERE blob_id = $1)", id.Hex()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking leaf existence: %w", err)
	}
	return exists, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
