package txstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists records in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS mint_transactions (
    tx_hash TEXT PRIMARY KEY,
    trader TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    token_id TEXT NOT NULL DEFAULT '',
    block_number BIGINT NOT NULL DEFAULT 0,
    explorer_url TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects using dsn and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, hash string) (*Record, error) {
	key := Key(hash)
	row := p.pool.QueryRow(ctx, `
SELECT tx_hash, trader, status, token_id, block_number, explorer_url, error, created_at, expires_at
FROM mint_transactions
WHERE tx_hash = $1
`, key)

	var (
		rec   Record
		block int64
	)
	if err := row.Scan(&rec.Hash, &rec.Trader, &rec.Status, &rec.TokenID, &block, &rec.ExplorerURL, &rec.Error, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.BlockNumber = uint64(block)

	if time.Now().After(rec.ExpiresAt) {
		go p.deleteKey(context.Background(), key)
		return nil, nil
	}
	return &rec, nil
}

func (p *PostgresStore) Save(ctx context.Context, record Record) error {
	key := Key(record.Hash)
	if key == "" {
		return errors.New("record hash is empty")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO mint_transactions (tx_hash, trader, status, token_id, block_number, explorer_url, error, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tx_hash) DO UPDATE
SET trader = EXCLUDED.trader,
    status = EXCLUDED.status,
    token_id = EXCLUDED.token_id,
    block_number = EXCLUDED.block_number,
    explorer_url = EXCLUDED.explorer_url,
    error = EXCLUDED.error,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at
`, key, record.Trader, record.Status, record.TokenID, int64(record.BlockNumber), record.ExplorerURL, record.Error, record.CreatedAt, record.ExpiresAt)
	return err
}

func (p *PostgresStore) deleteKey(ctx context.Context, key string) {
	_, _ = p.pool.Exec(ctx, `DELETE FROM mint_transactions WHERE tx_hash = $1`, key)
}
