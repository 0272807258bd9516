package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores entries in a snapshots table, one row per key. Used
// when several clinic workstations share one database; the version
// column is what turns last-write-wins into a detected conflict.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres ensures the snapshots table exists on the given pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		doc JSONB NOT NULL,
		version BIGINT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Load(ctx context.Context, key string) (Entry, error) {
	var doc []byte
	var version uint64
	err := p.pool.QueryRow(ctx,
		`SELECT doc, version FROM snapshots WHERE key = $1`, key).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load %s: %w", key, err)
	}
	return Entry{Doc: json.RawMessage(doc), Version: version}, nil
}

func (p *Postgres) Save(ctx context.Context, key string, doc json.RawMessage, expected uint64) (uint64, error) {
	next := expected + 1
	if expected == 0 {
		tag, err := p.pool.Exec(ctx, `INSERT INTO snapshots (key, doc, version)
			VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
			key, []byte(doc), next)
		if err != nil {
			return 0, fmt.Errorf("create %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return 0, ErrConflict
		}
		return next, nil
	}
	tag, err := p.pool.Exec(ctx, `UPDATE snapshots SET doc = $2, version = $3
		WHERE key = $1 AND version = $4`,
		key, []byte(doc), next, expected)
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrConflict
	}
	return next, nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM snapshots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close releases the pool. The pool is owned by the caller that built
// it, so Close here is what main defers.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
