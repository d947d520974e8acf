package settings

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/stackbill/stackbill/internal/types"
)

const (
	defaultExpiration = 5 * time.Minute
	cleanupInterval   = 10 * time.Minute
)

// CachedProvider decorates a Provider with an in-process cache. Settings
// change rarely and are read on every pricing and scheduling pass.
type CachedProvider struct {
	inner Provider
	cache *gocache.Cache
}

// NewCachedProvider wraps the given provider with caching
func NewCachedProvider(inner Provider) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: gocache.New(defaultExpiration, cleanupInterval),
	}
}

func (p *CachedProvider) Get(ctx context.Context, clientID, key string) (string, error) {
	cacheKey := fmt.Sprintf("%s:%s:%s", types.GetCompanyID(ctx), clientID, key)
	if v, found := p.cache.Get(cacheKey); found {
		return v.(string), nil
	}

	v, err := p.inner.Get(ctx, clientID, key)
	if err != nil {
		return "", err
	}

	p.cache.Set(cacheKey, v, gocache.DefaultExpiration)
	return v, nil
}

// Flush clears the cache, used after settings writes
func (p *CachedProvider) Flush() {
	p.cache.Flush()
}
