// Package idempotency deduplicates action-endpoint mutations keyed by the
// caller-supplied X-Idempotency-Key header.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldline/workspace-bff/model"
)

// DefaultTTL bounds how long a completed action result answers replays.
const DefaultTTL = 10 * time.Minute

// Store provides deduplication for mutating action endpoints.
// The key format is "idem:{userId}:{action}:{key}".
type Store interface {
	// Check looks up a previous result by key. If the key exists and the
	// input hash matches, it returns the cached result. If the key exists
	// but the hash differs, it returns a 409 conflict error.
	Check(ctx context.Context, key string, inputHash string) (result map[string]any, found bool, err error)

	// Store saves an action result keyed by the idempotency key with a TTL.
	Store(ctx context.Context, key string, inputHash string, result map[string]any, ttl time.Duration) error
}

// entry is the stored value for an idempotency key.
type entry struct {
	InputHash string         `json:"input_hash"`
	Result    map[string]any `json:"result"`
}

func replayConflict(key string) *model.APIError {
	return &model.APIError{
		StatusCode: 409,
		Code:       model.CodeIdempotencyReplay,
		Message:    fmt.Sprintf("idempotency key %q already used with different input", key),
	}
}

// HashInput produces the input fingerprint compared on replay.
func HashInput(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FormatKey builds the standard idempotency key.
func FormatKey(userID, action, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", userID, action, key)
}

// --- MemoryStore ---

// MemoryStore is an in-memory Store with TTL support. Suitable for testing
// and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	data      entry
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
	}
}

// Check looks up a cached result. Returns a conflict error if the input hash differs.
func (s *MemoryStore) Check(_ context.Context, key string, inputHash string) (map[string]any, bool, error) {
	s.mu.RLock()
	e, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	if e.data.InputHash != inputHash {
		return nil, true, replayConflict(key)
	}

	return e.data.Result, true, nil
}

// Store saves a result with TTL.
func (s *MemoryStore) Store(_ context.Context, key string, inputHash string, result map[string]any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memEntry{
		data:      entry{InputHash: inputHash, Result: result},
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisStore ---

// RedisStore is a Redis-backed Store with TTL.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a new Redis-backed idempotency store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Check looks up a cached result in Redis. Returns a conflict error if the input hash differs.
func (s *RedisStore) Check(ctx context.Context, key string, inputHash string) (map[string]any, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("unmarshal idempotency entry %q: %w", key, err)
	}

	if e.InputHash != inputHash {
		return nil, true, replayConflict(key)
	}

	return e.Result, true, nil
}

// Store saves a result in Redis with TTL.
func (s *RedisStore) Store(ctx context.Context, key string, inputHash string, result map[string]any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(entry{InputHash: inputHash, Result: result})
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
