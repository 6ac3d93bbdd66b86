package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS receipt_cache (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore implements the Store interface on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and makes sure the cache table exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "receipt-extractor"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Get retrieves an entry by key
func (p *PostgresStore) Get(ctx context.Context, key string) (Entry, error) {
	var (
		payload   []byte
		expiresAt time.Time
	)
	err := p.pool.QueryRow(ctx,
		`SELECT payload, expires_at FROM receipt_cache WHERE key = $1`, key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("querying cache entry: %w", err)
	}
	return Entry{Key: key, Payload: payload, ExpiresAt: expiresAt}, nil
}

// Upsert saves an entry, overwriting any previous value for the key
func (p *PostgresStore) Upsert(ctx context.Context, key string, payload []byte, expiresAt time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO receipt_cache (key, payload, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		key, string(payload), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("upserting cache entry: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
