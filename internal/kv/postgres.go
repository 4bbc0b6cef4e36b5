package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hashavatar/hashavatar/internal/platform/db"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at TIMESTAMPTZ
)`

const postgresUpsert = `INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

// Postgres stores entries in the kv_entries table.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres ensures the schema exists and returns the store. Close closes
// the pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("kv/postgres: migrate: %w", err)
	}
	return &Postgres{pool: pool, now: time.Now}, nil
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM kv_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, p.now().UTC(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv/postgres: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store.
func (p *Postgres) Set(ctx context.Context, key, value string) error {
	return p.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL implements Store.
func (p *Postgres) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if _, err := p.pool.Exec(ctx, postgresUpsert, key, value, expiresAt(p.now(), ttl)); err != nil {
		return fmt.Errorf("kv/postgres: set %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv/postgres: delete %s: %w", key, err)
	}
	return nil
}

// SetMany implements Store inside one transaction.
func (p *Postgres) SetMany(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := p.now()
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		for _, e := range entries {
			if _, err := tx.Exec(ctx, postgresUpsert, e.Key, e.Value, expiresAt(now, e.TTL)); err != nil {
				return fmt.Errorf("kv/postgres: set %s: %w", e.Key, err)
			}
		}
		return nil
	})
}

// Purge removes expired rows.
func (p *Postgres) Purge(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("kv/postgres: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

var _ Store = (*Postgres)(nil)
