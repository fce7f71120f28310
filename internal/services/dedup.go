package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carpool/pkg/cache"
)

const webhookDedupPrefix = "webhook:event:"

// Deduplicator remembers processed webhook event ids for a limited time.
type Deduplicator interface {
	// Claim reports true the first time a key is seen within the window.
	Claim(ctx context.Context, key string) (bool, error)
	// Forget drops a claim so a redelivery is processed again.
	Forget(ctx context.Context, key string) error
}

type cacheDeduplicator struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewCacheDeduplicator claims keys with SETNX so every instance sharing the
// redis sees the same claims.
func NewCacheDeduplicator(c cache.Cache, ttl time.Duration) Deduplicator {
	return &cacheDeduplicator{cache: c, ttl: ttl}
}

func (d *cacheDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	claimed, err := d.cache.SetNX(ctx, webhookDedupPrefix+key, time.Now().Unix(), d.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	return claimed, nil
}

func (d *cacheDeduplicator) Forget(ctx context.Context, key string) error {
	return d.cache.Delete(ctx, webhookDedupPrefix+key)
}

type memoryDeduplicator struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    Clock
	claims map[string]time.Time
}

// NewMemoryDeduplicator is the single-process fallback used without redis.
func NewMemoryDeduplicator(ttl time.Duration, clock Clock) Deduplicator {
	return &memoryDeduplicator{
		ttl:    ttl,
		now:    clockOrDefault(clock),
		claims: make(map[string]time.Time),
	}
}

func (d *memoryDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, expires := range d.claims {
		if !now.Before(expires) {
			delete(d.claims, k)
		}
	}
	if _, seen := d.claims[key]; seen {
		return false, nil
	}
	d.claims[key] = now.Add(d.ttl)
	return true, nil
}

func (d *memoryDeduplicator) Forget(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, key)
	return nil
}
