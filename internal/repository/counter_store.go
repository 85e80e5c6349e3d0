package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore holds the singleton dashboard aggregate. Increment is a commutative
// merge so concurrent writers never lose updates.
type CounterStore interface {
	// Increment applies deltas once per token. An empty token always applies.
	// The boolean reports whether the deltas were applied by this call.
	Increment(ctx context.Context, token string, deltas map[string]int64) (bool, error)
	// Get returns only the fields present in the aggregate.
	Get(ctx context.Context) (map[string]int64, error)
	Overwrite(ctx context.Context, values map[string]int64) error
}

// KEYS[1] aggregate hash, KEYS[2] token key; ARGV[1] token ttl ms, then field/delta pairs.
var incrementOnce = redis.NewScript(`
if KEYS[2] ~= "" then
  if not redis.call("SET", KEYS[2], "1", "NX", "PX", ARGV[1]) then
    return 0
  end
end
for i = 2, #ARGV, 2 do
  redis.call("HINCRBY", KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

type redisCounterStore struct {
	client   *redis.Client
	key      string
	tokenTTL time.Duration
}

// NewRedisCounterStore keeps the aggregate in a Redis hash at key.
func NewRedisCounterStore(client *redis.Client, key string) CounterStore {
	return &redisCounterStore{client: client, key: key, tokenTTL: 7 * 24 * time.Hour}
}

func (s *redisCounterStore) Increment(ctx context.Context, token string, deltas map[string]int64) (bool, error) {
	fields := make([]string, 0, len(deltas))
	for field, delta := range deltas {
		if delta != 0 {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return false, nil
	}
	sort.Strings(fields)

	args := make([]any, 0, 1+2*len(fields))
	args = append(args, s.tokenTTL.Milliseconds())
	for _, field := range fields {
		args = append(args, field, deltas[field])
	}
	tokenKey := ""
	if token != "" {
		tokenKey = s.key + ":applied:" + token
	}
	applied, err := incrementOnce.Run(ctx, s.client, []string{s.key, tokenKey}, args...).Int()
	if err != nil {
		return false, err
	}
	return applied == 1, nil
}

func (s *redisCounterStore) Get(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	values := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", field, err)
		}
		values[field] = n
	}
	return values, nil
}

func (s *redisCounterStore) Overwrite(ctx context.Context, values map[string]int64) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, 0, len(values)*2)
	for field, v := range values {
		args = append(args, field, v)
	}
	return s.client.HSet(ctx, s.key, args...).Err()
}

// MemoryCounterStore is a process-local CounterStore.
type MemoryCounterStore struct {
	mu      sync.Mutex
	values  map[string]int64
	applied map[string]struct{}
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{values: make(map[string]int64), applied: make(map[string]struct{})}
}

func (s *MemoryCounterStore) Increment(_ context.Context, token string, deltas map[string]int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonZero := false
	for _, delta := range deltas {
		if delta != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return false, nil
	}
	if token != "" {
		if _, seen := s.applied[token]; seen {
			return false, nil
		}
		s.applied[token] = struct{}{}
	}
	for field, delta := range deltas {
		if delta != 0 {
			s.values[field] += delta
		}
	}
	return true, nil
}

func (s *MemoryCounterStore) Get(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryCounterStore) Overwrite(_ context.Context, values map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}
