package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/credit-limiter/internal/audit"
)

const decisionSchema = `
	CREATE TABLE IF NOT EXISTS credit_decisions (
		id             UUID        PRIMARY KEY,
		key            TEXT        NOT NULL,
		window_seconds BIGINT      NOT NULL,
		credit_limit   BIGINT      NOT NULL,
		granted        BOOLEAN     NOT NULL,
		remaining      BIGINT      NOT NULL,
		attempts       INTEGER     NOT NULL,
		mode           TEXT        NOT NULL,
		decided_at     TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS credit_decisions_key_idx ON credit_decisions (key, decided_at);
`

// Postgres persists decisions to the credit_decisions table.
// Redelivered events are ignored by ID.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL decision store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the decisions table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, decisionSchema)

	return err
}

func (p *Postgres) SaveDecision(ctx context.Context, d *audit.Decision) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO credit_decisions
			(id, key, window_seconds, credit_limit, granted, remaining, attempts, mode, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.Key, d.WindowSeconds, d.Limit, d.Granted, d.Remaining, d.Attempts, d.Mode, d.DecidedAt)

	return err
}

// CountByKey returns how many decisions were stored for key.
func (p *Postgres) CountByKey(ctx context.Context, key string) (int64, error) {
	var count int64

	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM credit_decisions WHERE key = $1`, key).Scan(&count)

	return count, err
}

// Since returns the decisions for key made at or after t, oldest first.
func (p *Postgres) Since(ctx context.Context, key string, t time.Time) ([]*audit.Decision, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, key, window_seconds, credit_limit, granted, remaining, attempts, mode, decided_at
		FROM credit_decisions
		WHERE key = $1 AND decided_at >= $2
		ORDER BY decided_at
	`, key, t)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}

	decisions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*audit.Decision, error) {
		var d audit.Decision

		err := row.Scan(&d.ID, &d.Key, &d.WindowSeconds, &d.Limit, &d.Granted,
			&d.Remaining, &d.Attempts, &d.Mode, &d.DecidedAt)
		d.DecidedAt = d.DecidedAt.UTC()

		return &d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan decisions: %w", err)
	}

	return decisions, nil
}

// Compile-time checks.
var (
	_ audit.Store  = (*Postgres)(nil)
	_ audit.Reader = (*Postgres)(nil)
)
