package store

import (
	"context"
	"sort"
	"sync"

	"github.com/serroba/credit-limiter/internal/ratelimit"
)

// WindowMemoryStore is an in-memory implementation of ratelimit.Store.
// The mutex stands in for the store-side atomicity a shared store provides,
// so it only coordinates callers within one process.
type WindowMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	entries         []ratelimit.Entry // ascending by TimestampMicros
	members         map[string]struct{}
	expiresAtMicros int64
}

// NewWindowMemoryStore creates a new in-memory window store.
func NewWindowMemoryStore() *WindowMemoryStore {
	return &WindowMemoryStore{
		windows: make(map[string]*memoryWindow),
	}
}

func (s *WindowMemoryStore) Admit(
	_ context.Context, key string, entry ratelimit.Entry, spec ratelimit.WindowSpec,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := entry.TimestampMicros

	w, ok := s.windows[key]
	if !ok || w.expiresAtMicros <= now {
		w = &memoryWindow{members: make(map[string]struct{})}
		s.windows[key] = w
	}

	w.prune(spec.ClearBefore(now))

	count := int64(len(w.entries))
	if count < spec.Limit {
		w.insert(entry)
	}

	w.expiresAtMicros = spec.ExpiresAt(now)

	return count, nil
}

// Len returns the number of live entries for key, mainly for tests.
func (s *WindowMemoryStore) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.windows[key]; ok {
		return len(w.entries)
	}

	return 0
}

// Sweep drops windows whose expiry is at or before nowMicros.
func (s *WindowMemoryStore) Sweep(_ context.Context, nowMicros int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64

	for key, w := range s.windows {
		if w.expiresAtMicros <= nowMicros {
			delete(s.windows, key)
			removed++
		}
	}

	return removed, nil
}

func (w *memoryWindow) prune(clearBefore int64) {
	idx := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].TimestampMicros > clearBefore
	})

	for _, e := range w.entries[:idx] {
		delete(w.members, e.Member)
	}

	w.entries = append(w.entries[:0], w.entries[idx:]...)
}

func (w *memoryWindow) insert(entry ratelimit.Entry) {
	if _, dup := w.members[entry.Member]; dup {
		return
	}

	w.members[entry.Member] = struct{}{}

	idx := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].TimestampMicros > entry.TimestampMicros
	})

	w.entries = append(w.entries, ratelimit.Entry{})
	copy(w.entries[idx+1:], w.entries[idx:])
	w.entries[idx] = entry
}

// Compile-time check.
var _ ratelimit.Store = (*WindowMemoryStore)(nil)
