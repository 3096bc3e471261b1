package shape

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSnapshotTTL bounds how long an aggregate query handle stays valid.
const DefaultSnapshotTTL = 2 * time.Minute

// Snapshot is the stable handle minted for an aggregate query. It records the
// query parameters (never the results) so a caller can re-run the same logical
// query after the upstream pagination tokens have been consumed.
type Snapshot struct {
	Token     string         `json:"token"`
	Domain    string         `json:"domain"`
	Query     map[string]any `json:"query"`
	CreatedAt time.Time      `json:"createdAt"`
}

type snapshotEntry struct {
	snap      Snapshot
	expiresAt time.Time
}

// SnapshotStats is the diagnostics view of the store.
type SnapshotStats struct {
	Entries int           `json:"entries"`
	Minted  int64         `json:"minted"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	Swept   int64         `json:"swept"`
	TTL     time.Duration `json:"ttl"`
}

// SnapshotStore is a process-local, token-keyed store with TTL expiry. It is
// constructed once at startup and passed to the dispatchers; there are no
// package-level globals. Safe for concurrent use.
type SnapshotStore struct {
	mu      sync.Mutex
	entries map[string]snapshotEntry
	ttl     time.Duration
	now     func() time.Time

	minted int64
	hits   int64
	misses int64
	swept  int64
}

// SnapshotStoreOption configures a SnapshotStore.
type SnapshotStoreOption func(*SnapshotStore)

// WithClock injects the time source. Used by tests to drive expiry.
func WithClock(now func() time.Time) SnapshotStoreOption {
	return func(s *SnapshotStore) { s.now = now }
}

// NewSnapshotStore creates a store with the given TTL (DefaultSnapshotTTL
// when ttl <= 0).
func NewSnapshotStore(ttl time.Duration, opts ...SnapshotStoreOption) *SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	s := &SnapshotStore{
		entries: make(map[string]snapshotEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint creates and stores a new snapshot for the given domain and query
// parameters, returning the opaque token.
func (s *SnapshotStore) Mint(domain string, query map[string]any) Snapshot {
	now := s.now()
	snap := Snapshot{
		Token:     uuid.NewString(),
		Domain:    domain,
		Query:     query,
		CreatedAt: now,
	}

	s.mu.Lock()
	s.entries[snap.Token] = snapshotEntry{snap: snap, expiresAt: now.Add(s.ttl)}
	s.minted++
	s.mu.Unlock()

	return snap
}

// Get looks up a snapshot by token. Expired entries are deleted on read and
// reported as misses; insertion and expiry of a single token never race
// because both happen under the same lock.
func (s *SnapshotStore) Get(token string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		s.misses++
		return Snapshot{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, token)
		s.swept++
		s.misses++
		return Snapshot{}, false
	}
	s.hits++
	return entry.snap, true
}

// Flush removes all entries and returns how many were dropped.
func (s *SnapshotStore) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]snapshotEntry)
	return n
}

// Diagnostics returns the current stats.
func (s *SnapshotStore) Diagnostics() SnapshotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SnapshotStats{
		Entries: len(s.entries),
		Minted:  s.minted,
		Hits:    s.hits,
		Misses:  s.misses,
		Swept:   s.swept,
		TTL:     s.ttl,
	}
}

// sweep removes expired entries. Returns the number removed.
func (s *SnapshotStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for token, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, token)
			removed++
		}
	}
	s.swept += int64(removed)
	return removed
}

// Run drives the background expiry sweep until ctx is cancelled. Expiry is
// also enforced lazily on Get, so the sweep only bounds memory.
func (s *SnapshotStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}
