package cache

import (
	"context"
	"sync"
	"time"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

// MemoryIdempotencyStore keeps claimed keys in process memory.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	s.keys[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

type MemoryPricingCache struct {
	mu      sync.RWMutex
	cfg     *models.PricingConfig
	expires time.Time
	now     func() time.Time
}

func NewMemoryPricingCache() *MemoryPricingCache {
	return &MemoryPricingCache{now: time.Now}
}

func (c *MemoryPricingCache) Get(_ context.Context) (models.PricingConfig, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cfg == nil || !c.now().Before(c.expires) {
		return models.PricingConfig{}, false, nil
	}
	return *c.cfg, true, nil
}

func (c *MemoryPricingCache) Put(_ context.Context, cfg models.PricingConfig, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = &cfg
	c.expires = c.now().Add(ttl)
	return nil
}

func (c *MemoryPricingCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = nil
	return nil
}
