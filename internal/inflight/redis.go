package inflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"streamswarm/internal/domain"
)

const (
	defaultKeyPrefix = "streamswarm:inflight:"
	defaultLockTTL   = 2 * time.Hour
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard holds per-video locks in Redis so that several service
// replicas never process the same id at once. A lock expires after ttl in
// case its holder dies mid-run.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[domain.VideoID]string
}

func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisGuard{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
		tokens: make(map[domain.VideoID]string),
	}
}

func (g *RedisGuard) key(id domain.VideoID) string {
	return g.prefix + string(id)
}

func (g *RedisGuard) TryAcquire(ctx context.Context, id domain.VideoID) (bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key(id), token, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inflight acquire %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	g.mu.Lock()
	g.tokens[id] = token
	g.mu.Unlock()
	return true, nil
}

func (g *RedisGuard) Release(ctx context.Context, id domain.VideoID) error {
	g.mu.Lock()
	token, ok := g.tokens[id]
	delete(g.tokens, id)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, g.client, []string{g.key(id)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("inflight release %s: %w", id, err)
	}
	return nil
}
