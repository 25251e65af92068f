package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists entries in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS claim_journal (
    id UUID PRIMARY KEY,
    account TEXT NOT NULL,
    quantity BIGINT NOT NULL,
    status TEXT NOT NULL,
    error_kind TEXT NOT NULL DEFAULT '',
    tx_hash TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS claim_journal_account_idx ON claim_journal (lower(account), started_at DESC);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
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

const selectColumns = `id, account, quantity, status, error_kind, tx_hash, started_at, finished_at`

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM claim_journal WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func (p *PostgresStore) Save(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		return ErrMissingID
	}
	var finished interface{}
	if !entry.FinishedAt.IsZero() {
		finished = entry.FinishedAt
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO claim_journal (id, account, quantity, status, error_kind, tx_hash, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    error_kind = EXCLUDED.error_kind,
    tx_hash = EXCLUDED.tx_hash,
    finished_at = EXCLUDED.finished_at
`, entry.ID, entry.Account, int64(entry.Quantity), string(entry.Status), entry.ErrorKind, entry.TxHash, entry.StartedAt, finished)
	return err
}

func (p *PostgresStore) List(ctx context.Context, account string) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
SELECT `+selectColumns+`
FROM claim_journal
WHERE $1 = '' OR lower(account) = lower($1)
ORDER BY started_at DESC
`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		entry    Entry
		quantity int64
		status   string
		finished *time.Time
	)
	if err := row.Scan(&entry.ID, &entry.Account, &quantity, &status, &entry.ErrorKind, &entry.TxHash, &entry.StartedAt, &finished); err != nil {
		return nil, err
	}
	entry.Quantity = uint64(quantity)
	entry.Status = Status(status)
	if finished != nil {
		entry.FinishedAt = *finished
	}
	return &entry, nil
}
