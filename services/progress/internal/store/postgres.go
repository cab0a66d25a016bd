package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/lems/internal/progression"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS progress_blobs (
  key        TEXT PRIMARY KEY,
  blob       BYTEA NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`

// Postgres keeps one row per storage key. Blobs are stored as opaque bytes so
// that a damaged value round-trips unchanged and is handled by the tracker.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the blob table when it is missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create progress_blobs: %w", err)
	}
	return nil
}

func (s *Postgres) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(ctx, `SELECT blob FROM progress_blobs WHERE key=$1`, key).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, progression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres load %s: %w", key, err)
	}
	return blob, nil
}

func (s *Postgres) Save(ctx context.Context, key string, blob []byte) error {
	q := `
INSERT INTO progress_blobs (key, blob, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(ctx, q, key, blob, time.Now().UTC()); err != nil {
		return fmt.Errorf("postgres save %s: %w", key, err)
	}
	return nil
}

func (s *Postgres) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT key FROM progress_blobs WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	return keys, nil
}
