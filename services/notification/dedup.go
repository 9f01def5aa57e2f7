package notification

import (
	"context"
	"sync"
	"time"

	"parley/utils"

	"github.com/go-redis/redis/v8"
)

// Deduper remembers inbound message ids so a reply is routed at most once,
// even if the mailbox hands it back again.
type Deduper interface {
	// FirstSeen records id and reports whether it was new.
	FirstSeen(ctx context.Context, id string) (bool, error)
}

type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: utils.DedupTTL}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	return d.client.SetNX(ctx, utils.DedupKeyPrefix+id, time.Now().Unix(), d.ttl).Result()
}

type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false, nil
	}
	d.seen[id] = struct{}{}
	return true, nil
}
