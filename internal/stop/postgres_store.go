package stop

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBlobStore is a BlobStore backed by a kv_store table.
type PostgresBlobStore struct {
	pool *pgxpool.Pool
}

// NewPostgresBlobStore creates a PostgreSQL blob store.
func NewPostgresBlobStore(pool *pgxpool.Pool) *PostgresBlobStore {
	return &PostgresBlobStore{pool: pool}
}

// EnsureSchema creates the kv_store table if it does not exist.
func (s *PostgresBlobStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS kv_store (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := s.pool.Exec(ctx, query)
	return err
}

// Get reads a key.
func (s *PostgresBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM kv_store WHERE key = $1`

	var value []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}

	return value, nil
}

// Set upserts a key.
func (s *PostgresBlobStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	_, err := s.pool.Exec(ctx, query, key, value)
	return err
}

// Ping checks the database connection.
func (s *PostgresBlobStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ BlobStore = (*PostgresBlobStore)(nil)
