package store_test

import (
	"context"
	"testing"

	"github.com/serroba/credit-limiter/internal/ratelimit"
	"github.com/serroba/credit-limiter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const second = int64(1_000_000)

func entryAt(micros int64, member string) ratelimit.Entry {
	return ratelimit.Entry{TimestampMicros: micros, Member: member}
}

func TestWindowMemoryStore(t *testing.T) {
	spec := ratelimit.WindowSpec{WindowSeconds: 1, Limit: 3}

	t.Run("returns count observed before insert", func(t *testing.T) {
		s := store.NewWindowMemoryStore()

		for i, member := range []string{"a", "b", "c"} {
			count, err := s.Admit(context.Background(), "key1", entryAt(10*second+int64(i), member), spec)

			require.NoError(t, err)
			assert.Equal(t, int64(i), count)
		}
	})

	t.Run("does not insert when full", func(t *testing.T) {
		s := store.NewWindowMemoryStore()

		for i, member := range []string{"a", "b", "c", "d", "e"} {
			_, _ = s.Admit(context.Background(), "key1", entryAt(10*second+int64(i), member), spec)
		}

		assert.Equal(t, 3, s.Len("key1"))
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		s := store.NewWindowMemoryStore()

		_, _ = s.Admit(context.Background(), "key1", entryAt(10*second, "a"), spec)
		_, _ = s.Admit(context.Background(), "key1", entryAt(10*second+1, "b"), spec)

		count, err := s.Admit(context.Background(), "key2", entryAt(10*second+2, "c"), spec)

		require.NoError(t, err)
		assert.Equal(t, int64(0), count, "key2 should have its own window")
	})

	t.Run("prunes entries at or before clear-before", func(t *testing.T) {
		s := store.NewWindowMemoryStore()
		wide := ratelimit.WindowSpec{WindowSeconds: 2, Limit: 10}

		_, _ = s.Admit(context.Background(), "key1", entryAt(10*second, "a"), wide)
		_, _ = s.Admit(context.Background(), "key1", entryAt(11*second, "b"), wide)

		count, err := s.Admit(context.Background(), "key1", entryAt(12*second, "c"), wide)

		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "entry at exactly now-window should be pruned")
		assert.Equal(t, 2, s.Len("key1"))
	})

	t.Run("last window sets the expiry even when shorter", func(t *testing.T) {
		s := store.NewWindowMemoryStore()
		long := ratelimit.WindowSpec{WindowSeconds: 100, Limit: 1}
		short := ratelimit.WindowSpec{WindowSeconds: 1, Limit: 5}

		count, err := s.Admit(context.Background(), "k", entryAt(10*second, "a"), long)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		count, err = s.Admit(context.Background(), "k", entryAt(10*second+second/2, "b"), short)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		// idle for longer than the short window: the whole key is gone
		count, err = s.Admit(context.Background(), "k", entryAt(12*second, "c"), long)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
		assert.Equal(t, 1, s.Len("k"))
	})

	t.Run("keeps entries ordered when timestamps arrive out of order", func(t *testing.T) {
		s := store.NewWindowMemoryStore()
		wide := ratelimit.WindowSpec{WindowSeconds: 5, Limit: 10}

		_, _ = s.Admit(context.Background(), "key1", entryAt(13*second, "late"), wide)
		_, _ = s.Admit(context.Background(), "key1", entryAt(11*second, "early"), wide)

		count, err := s.Admit(context.Background(), "key1", entryAt(17*second, "now"), wide)

		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "only the early entry falls out")
	})

	t.Run("duplicate member is stored once", func(t *testing.T) {
		s := store.NewWindowMemoryStore()

		_, _ = s.Admit(context.Background(), "key1", entryAt(10*second, "same"), spec)
		_, _ = s.Admit(context.Background(), "key1", entryAt(10*second, "same"), spec)

		assert.Equal(t, 1, s.Len("key1"))
	})

	t.Run("sweep drops idle windows", func(t *testing.T) {
		s := store.NewWindowMemoryStore()

		_, _ = s.Admit(context.Background(), "idle", entryAt(10*second, "a"), spec)
		_, _ = s.Admit(context.Background(), "busy", entryAt(12*second, "b"), spec)

		removed, err := s.Sweep(context.Background(), 11*second)

		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Zero(t, s.Len("idle"))
		assert.Equal(t, 1, s.Len("busy"))
	})
}
