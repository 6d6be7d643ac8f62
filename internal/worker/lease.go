package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/assetflow/handover-service/internal/clock"
)

// ReleaseFunc gives a held lease back before its TTL runs out.
type ReleaseFunc func(ctx context.Context) error

// Lease keeps replicas from running the same sweep tick at once. It is an
// optimization only; the repository compare-and-set keeps sweeps correct
// without it.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error)
}

func noopRelease(context.Context) error { return nil }

// LocalLease serializes sweeps inside one process.
type LocalLease struct {
	mu    sync.Mutex
	clock clock.Clock
	held  map[string]time.Time
}

// NewLocalLease returns an in-process lease. A nil clock uses wall time.
func NewLocalLease(clk clock.Clock) *LocalLease {
	if clk == nil {
		clk = clock.System()
	}
	return &LocalLease{clock: clk, held: make(map[string]time.Time)}
}

func (l *LocalLease) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return noopRelease, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}

// releaseScript deletes the key only while it still holds our owner value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease coordinates sweeps across replicas with SET NX PX.
type RedisLease struct {
	client *redis.Client
	prefix string
}

// NewRedisLease creates a lease backed by client. Keys are namespaced by prefix.
func NewRedisLease(client *redis.Client, prefix string) *RedisLease {
	return &RedisLease{client: client, prefix: prefix}
}

func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	fullKey := l.prefix + key
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil {
		return noopRelease, false, err
	}
	if !ok {
		return noopRelease, false, nil
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{fullKey}, owner).Err()
	}, true, nil
}
