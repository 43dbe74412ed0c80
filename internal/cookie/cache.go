package cookie

import (
	"context"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Source is anything that can answer a login check.
type Source interface {
	Check(ctx context.Context, platform string) Result
}

// CachedChecker memoizes results per platform for ttl.
type CachedChecker struct {
	inner Source
	cache *ttlcache.Cache[string, Result]
}

// NewCached wraps inner. A non-positive ttl returns a pass-through wrapper.
func NewCached(inner Source, ttl time.Duration) *CachedChecker {
	c := &CachedChecker{inner: inner}
	if ttl > 0 {
		c.cache = ttlcache.New[string, Result](
			ttlcache.WithTTL[string, Result](ttl),
			ttlcache.WithDisableTouchOnHit[string, Result](),
		)
		go c.cache.Start()
	}
	return c
}

func (c *CachedChecker) Check(ctx context.Context, platform string) Result {
	platform = strings.ToLower(platform)
	if c.cache == nil {
		return c.inner.Check(ctx, platform)
	}
	if item := c.cache.Get(platform); item != nil {
		return item.Value()
	}
	res := c.inner.Check(ctx, platform)
	c.cache.Set(platform, res, ttlcache.DefaultTTL)
	return res
}

// Invalidate drops a cached result. The crawler calls it when a run ends,
// since the run may have refreshed or expired the profile's cookies.
func (c *CachedChecker) Invalidate(platform string) {
	if c.cache != nil {
		c.cache.Delete(strings.ToLower(platform))
	}
}

// Close stops the expiry loop.
func (c *CachedChecker) Close() {
	if c.cache != nil {
		c.cache.Stop()
	}
}
