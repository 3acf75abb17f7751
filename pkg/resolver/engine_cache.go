package resolver

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sigmanight/basiliskllm/pkg/providers"
)

// constructionInterval is comfortably above any real rate of new-account
// additions; it exists only to collapse a startup burst of GetEngine
// calls into sequential constructions rather than a stampede.
const constructionInterval = 20 * time.Millisecond

// EngineCache caches one providers.Engine per account ID, constructed
// lazily on first use (spec §4.8: "cache engine instances by account.id;
// get_engine(account) is lazy and idempotent"), grounded in
// original_source's AccountModelService.get_engine. Reads are lock-free
// via sync.Map; inserts take cacheMu, matching spec §5's "engine cache is
// read-mostly, protected by a single lock on insert".
type EngineCache struct {
	cache   sync.Map // account ID -> providers.Engine
	cacheMu sync.Mutex
	// constructionLimiter throttles how often a brand new engine can be
	// constructed, so a burst of concurrent GetEngine calls for a
	// newly-added account collapses into one construction instead of
	// racing N redundant client constructions before the first insert
	// lands in cache.
	constructionLimiter *rate.Limiter
}

// NewEngineCache returns an empty cache. The construction limiter allows
// one engine construction immediately and then one every 20ms, comfortably
// above any real account-addition rate.
func NewEngineCache() *EngineCache {
	return &EngineCache{
		constructionLimiter: rate.NewLimiter(rate.Every(constructionInterval), 1),
	}
}

// GetEngine returns the cached engine for account, constructing it via
// construct if this is the first call for that account ID.
func (c *EngineCache) GetEngine(ctx context.Context, accountID string, construct func() (providers.Engine, error)) (providers.Engine, error) {
	if cached, ok := c.cache.Load(accountID); ok {
		return cached.(providers.Engine), nil
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	// Another goroutine may have constructed it while we waited for the lock.
	if cached, ok := c.cache.Load(accountID); ok {
		return cached.(providers.Engine), nil
	}

	if err := c.constructionLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	engine, err := construct()
	if err != nil {
		return nil, err
	}
	c.cache.Store(accountID, engine)
	return engine, nil
}

// Invalidate drops the cached engine for an account, e.g. after its
// credentials change.
func (c *EngineCache) Invalidate(accountID string) {
	c.cache.Delete(accountID)
}
