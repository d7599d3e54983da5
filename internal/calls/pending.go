package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crm-dialer/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// MemoryPending is an in-process PendingStore for tests and single-instance runs.
type MemoryPending struct {
	mu     sync.Mutex
	parked map[string][]Delivery
}

func NewMemoryPending() *MemoryPending { return &MemoryPending{parked: map[string][]Delivery{}} }

func (p *MemoryPending) Park(ctx context.Context, key string, d Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parked[key] = append(p.parked[key], d)
	return nil
}

func (p *MemoryPending) Drain(ctx context.Context, key string) ([]Delivery, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.parked[key]
	delete(p.parked, key)
	return out, nil
}

// RedisPending parks deliveries as JSON in a per-key Redis list that expires after TTL.
// Shared by every API instance, so a link handled by one instance replays what
// another one parked.
type RedisPending struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisPending(rdb *redis.Client, ttl time.Duration) *RedisPending {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisPending{rdb: rdb, ttl: ttl, prefix: "calls:pending:"}
}

func (p *RedisPending) Park(ctx context.Context, key string, d Delivery) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return utils.PushWithTTL(ctx, p.rdb, p.prefix+key, string(raw), p.ttl)
}

func (p *RedisPending) Drain(ctx context.Context, key string) ([]Delivery, error) {
	items, err := utils.DrainList(ctx, p.rdb, p.prefix+key)
	if err != nil {
		return nil, err
	}
	// The list is already gone; a corrupt entry must not take the others with it.
	out := make([]Delivery, 0, len(items))
	var bad int
	for _, it := range items {
		var d Delivery
		if err := json.Unmarshal([]byte(it), &d); err != nil {
			bad++
			continue
		}
		out = append(out, d)
	}
	if bad > 0 {
		return out, fmt.Errorf("calls: %d parked deliveries could not be decoded", bad)
	}
	return out, nil
}

// RedisDeduper remembers delivery keys for TTL.
type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, prefix: "calls:delivery:"}
}

func (d *RedisDeduper) FirstDelivery(ctx context.Context, key string) (bool, error) {
	return utils.ClaimOnce(ctx, d.rdb, d.prefix+key, d.ttl)
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return utils.Forget(ctx, d.rdb, d.prefix+key)
}
