package store

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/credit-limiter/internal/ratelimit"
)

// DefaultKeyPrefix namespaces window keys in shared stores.
const DefaultKeyPrefix = "credits:"

var admitScript = redis.NewScript(ratelimit.AdmitScript)

// RedisWindowStore is a Redis implementation of ratelimit.Store. The admission
// sequence runs as a Lua script, so concurrent callers never interleave on a key.
type RedisWindowStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisWindowStore creates a new Redis-backed window store. Any go-redis
// client works: single node, cluster or ring.
func NewRedisWindowStore(client redis.Scripter, prefix string) *RedisWindowStore {
	return &RedisWindowStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisWindowStore) Admit(
	ctx context.Context, key string, entry ratelimit.Entry, spec ratelimit.WindowSpec,
) (int64, error) {
	return admitScript.Run(ctx, r.client, []string{r.prefix + key}, scriptArgs(entry, spec)...).Int64()
}

func scriptArgs(entry ratelimit.Entry, spec ratelimit.WindowSpec) []any {
	return []any{
		strconv.FormatInt(entry.TimestampMicros, 10),
		strconv.FormatInt(spec.ClearBefore(entry.TimestampMicros), 10),
		strconv.FormatInt(spec.Limit, 10),
		strconv.FormatInt(spec.WindowSeconds, 10),
		entry.Member,
	}
}

// Compile-time check.
var _ ratelimit.Store = (*RedisWindowStore)(nil)
