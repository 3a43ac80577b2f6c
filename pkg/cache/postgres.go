package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Postgres is a shared cross-process cache over the cache_entries table.
// Writes are plain upserts, so concurrent refreshes resolve to the last
// writer. Expired rows count as misses and are lazily overwritten by the
// next Set.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

func (p *Postgres) GetKey(ctx context.Context, key string) (string, time.Duration, bool, error) {
	var value string
	var expiresAt time.Time

	err := p.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = $1`,
		key,
	).Scan(&value, &expiresAt)
	if err == pgx.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if time.Now().After(expiresAt) {
		p.logger.Debug("Cache entry expired", zap.String("key", key))
		return "", 0, false, nil
	}

	return value, time.Until(expiresAt), true, nil
}

func (p *Postgres) SetKey(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO cache_entries (key, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = $2, expires_at = $3`,
		key, value, time.Now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}
