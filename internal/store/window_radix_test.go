package store_test

import (
	"context"
	"crypto/tls"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"github.com/serroba/credit-limiter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRadixWindowStore_Admit(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := store.NewRadixPool(ctx, store.RadixConfig{Addr: mr.Addr()})
	require.NoError(t, err)

	s := store.NewRadixWindowStore(client, "radix:")
	t.Cleanup(func() { _ = s.Shutdown() })

	require.NoError(t, s.Ping(ctx))

	spec := ratelimit.WindowSpec{WindowSeconds: 1, Limit: 2}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC).UnixMicro()

	counts := make([]int64, 0, 3)

	for i := range 3 {
		count, err := s.Admit(ctx, "test_key", entryAt(now+int64(i), "m"+strconv.Itoa(i)), spec)
		require.NoError(t, err)

		counts = append(counts, count)
	}

	assert.Equal(t, []int64{0, 1, 2}, counts)

	members, err := mr.ZMembers("radix:test_key")
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, time.Second, mr.TTL("radix:test_key"))
}

func TestRadixConfig_Dialer(t *testing.T) {
	t.Run("plain connection on the default database", func(t *testing.T) {
		d := store.RadixConfig{Addr: "localhost:6379", Password: "secret"}.Dialer()

		assert.Equal(t, "secret", d.AuthPass)
		assert.Empty(t, d.SelectDB)
		assert.Nil(t, d.NetDialer)
	})

	t.Run("tls and database selection", func(t *testing.T) {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true} //nolint:gosec // test config

		d := store.RadixConfig{Addr: "localhost:6379", DB: 3, TLS: tlsCfg}.Dialer()

		assert.Equal(t, "3", d.SelectDB)

		tlsDialer, ok := d.NetDialer.(*tls.Dialer)
		require.True(t, ok, "expected a TLS dialer")
		assert.Same(t, tlsCfg, tlsDialer.Config)
	})
}
