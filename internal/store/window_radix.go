package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/mediocregopher/radix/v4"
	"github.com/serroba/credit-limiter/internal/ratelimit"
)

var radixAdmitScript = radix.NewEvalScript(ratelimit.AdmitScript)

// RadixWindowStore runs the same admission script as RedisWindowStore through
// a radix client.
type RadixWindowStore struct {
	client radix.Client
	prefix string
}

// NewRadixWindowStore creates a new radix-backed window store.
func NewRadixWindowStore(client radix.Client, prefix string) *RadixWindowStore {
	return &RadixWindowStore{
		client: client,
		prefix: prefix,
	}
}

// RadixConfig describes the radix connection. A nil TLS dials plain TCP.
type RadixConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      *tls.Config
}

// Dialer returns the radix dialer for c.
func (c RadixConfig) Dialer() radix.Dialer {
	d := radix.Dialer{AuthPass: c.Password}

	if c.DB != 0 {
		d.SelectDB = strconv.Itoa(c.DB)
	}

	if c.TLS != nil {
		d.NetDialer = &tls.Dialer{Config: c.TLS}
	}

	return d
}

// NewRadixPool dials a radix connection pool.
func NewRadixPool(ctx context.Context, cfg RadixConfig) (radix.Client, error) {
	pool := radix.PoolConfig{Dialer: cfg.Dialer()}

	client, err := pool.New(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create radix pool: %w", err)
	}

	return client, nil
}

func (r *RadixWindowStore) Admit(
	ctx context.Context, key string, entry ratelimit.Entry, spec ratelimit.WindowSpec,
) (int64, error) {
	args := []string{
		strconv.FormatInt(entry.TimestampMicros, 10),
		strconv.FormatInt(spec.ClearBefore(entry.TimestampMicros), 10),
		strconv.FormatInt(spec.Limit, 10),
		strconv.FormatInt(spec.WindowSeconds, 10),
		entry.Member,
	}

	var count int64
	if err := r.client.Do(ctx, radixAdmitScript.Cmd(&count, []string{r.prefix + key}, args...)); err != nil {
		return 0, err
	}

	return count, nil
}

// Ping checks connectivity.
func (r *RadixWindowStore) Ping(ctx context.Context) error {
	return r.client.Do(ctx, radix.Cmd(nil, "PING"))
}

// Shutdown closes the radix pool.
func (r *RadixWindowStore) Shutdown() error {
	return r.client.Close()
}

// Compile-time check.
var _ ratelimit.Store = (*RadixWindowStore)(nil)
