package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/serroba/credit-limiter/internal/audit"
	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS credit_decisions (
		id             TEXT    PRIMARY KEY,
		key            TEXT    NOT NULL,
		window_seconds INTEGER NOT NULL,
		credit_limit   INTEGER NOT NULL,
		granted        INTEGER NOT NULL,
		remaining      INTEGER NOT NULL,
		attempts       INTEGER NOT NULL,
		mode           TEXT    NOT NULL,
		decided_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS credit_decisions_key_idx ON credit_decisions (key, decided_at);
`

// SQLite persists decisions to a local database file, for single-instance
// consumers without PostgreSQL. decided_at holds Unix microseconds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path in WAL mode.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)

	return NewSQLite(db), nil
}

// NewSQLite wraps an already opened database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// EnsureSchema creates the decisions table if it does not exist.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)

	return err
}

func (s *SQLite) SaveDecision(ctx context.Context, d *audit.Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_decisions
			(id, key, window_seconds, credit_limit, granted, remaining, attempts, mode, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.Key, d.WindowSeconds, d.Limit, d.Granted, d.Remaining, d.Attempts, d.Mode, d.DecidedAt.UnixMicro())
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}

	return nil
}

// CountByKey returns how many decisions were stored for key.
func (s *SQLite) CountByKey(ctx context.Context, key string) (int64, error) {
	var count int64

	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM credit_decisions WHERE key = ?`, key).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}

	return count, nil
}

// Since returns the decisions for key made at or after t, oldest first.
func (s *SQLite) Since(ctx context.Context, key string, t time.Time) ([]*audit.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, window_seconds, credit_limit, granted, remaining, attempts, mode, decided_at
		FROM credit_decisions
		WHERE key = ? AND decided_at >= ?
		ORDER BY decided_at
	`, key, t.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*audit.Decision

	for rows.Next() {
		var (
			d         audit.Decision
			decidedAt int64
		)

		if err := rows.Scan(&d.ID, &d.Key, &d.WindowSeconds, &d.Limit, &d.Granted,
			&d.Remaining, &d.Attempts, &d.Mode, &decidedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}

		d.DecidedAt = time.UnixMicro(decidedAt).UTC()
		out = append(out, &d)
	}

	return out, rows.Err()
}

// Shutdown closes the database.
func (s *SQLite) Shutdown() error {
	return s.db.Close()
}

// Compile-time checks.
var (
	_ audit.Store  = (*SQLite)(nil)
	_ audit.Reader = (*SQLite)(nil)
)
