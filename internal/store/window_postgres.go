package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/credit-limiter/internal/ratelimit"
)

const windowSchema = `
	CREATE TABLE IF NOT EXISTS credit_entries (
		key       TEXT   NOT NULL,
		member    TEXT   NOT NULL,
		ts_micros BIGINT NOT NULL,
		PRIMARY KEY (key, member)
	);
	CREATE INDEX IF NOT EXISTS credit_entries_key_ts_idx ON credit_entries (key, ts_micros);
	CREATE TABLE IF NOT EXISTS credit_windows (
		key               TEXT   PRIMARY KEY,
		expires_at_micros BIGINT NOT NULL
	);
`

// PostgresWindowStore is a PostgreSQL implementation of ratelimit.Store for
// deployments without a scripting store. Each admission runs in one transaction
// serialized per key by a transaction-scoped advisory lock.
type PostgresWindowStore struct {
	pool   *pgxpool.Pool
	prefix string
}

// NewPostgresWindowStore creates a new PostgreSQL-backed window store.
func NewPostgresWindowStore(pool *pgxpool.Pool, prefix string) *PostgresWindowStore {
	return &PostgresWindowStore{pool: pool, prefix: prefix}
}

// EnsureSchema creates the window tables if they do not exist.
func (p *PostgresWindowStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, windowSchema)

	return err
}

func (p *PostgresWindowStore) Admit(
	ctx context.Context, key string, entry ratelimit.Entry, spec ratelimit.WindowSpec,
) (int64, error) {
	key = p.prefix + key

	var count int64

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return err
		}

		// an idle window is gone even if the sweeper has not run yet
		if _, err := tx.Exec(ctx, `
			DELETE FROM credit_entries WHERE key = $1 AND EXISTS (
				SELECT 1 FROM credit_windows WHERE key = $1 AND expires_at_micros <= $2
			)`, key, entry.TimestampMicros,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM credit_entries WHERE key = $1 AND ts_micros <= $2`,
			key, spec.ClearBefore(entry.TimestampMicros),
		); err != nil {
			return err
		}

		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM credit_entries WHERE key = $1`, key,
		).Scan(&count); err != nil {
			return err
		}

		if count < spec.Limit {
			if _, err := tx.Exec(ctx, `
				INSERT INTO credit_entries (key, member, ts_micros)
				VALUES ($1, $2, $3)
				ON CONFLICT (key, member) DO NOTHING
			`, key, entry.Member, entry.TimestampMicros); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO credit_windows (key, expires_at_micros)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE
			SET expires_at_micros = EXCLUDED.expires_at_micros
		`, key, spec.ExpiresAt(entry.TimestampMicros))

		return err
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Sweep removes windows idle past their expiry along with their entries.
// It returns the number of windows removed.
func (p *PostgresWindowStore) Sweep(ctx context.Context, nowMicros int64) (int64, error) {
	var removed int64

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM credit_entries e
			USING credit_windows w
			WHERE e.key = w.key AND w.expires_at_micros <= $1
		`, nowMicros); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM credit_windows WHERE expires_at_micros <= $1`, nowMicros)
		if err != nil {
			return err
		}

		removed = tag.RowsAffected()

		return nil
	})

	return removed, err
}

// Ping checks database connectivity.
func (p *PostgresWindowStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Compile-time check.
var _ ratelimit.Store = (*PostgresWindowStore)(nil)
