package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/metrics"
)

// LicenseCache holds recent license snapshots for the validation endpoint.
// It is an optimization only; every mutation path invalidates its key.
type LicenseCache struct {
	lru *expirable.LRU[string, *license.License]
}

func NewLicenseCache(size int, ttl time.Duration) *LicenseCache {
	if size <= 0 {
		size = 10000
	}
	return &LicenseCache{lru: expirable.NewLRU[string, *license.License](size, nil, ttl)}
}

func (c *LicenseCache) Get(key string) (*license.License, bool) {
	lic, ok := c.lru.Get(key)
	metrics.RecordCacheLookup(ok)
	if !ok {
		return nil, false
	}
	return lic.Clone(), true
}

func (c *LicenseCache) Add(lic *license.License) {
	c.lru.Add(lic.LicenseKey, lic.Clone())
}

func (c *LicenseCache) Invalidate(key string) {
	c.lru.Remove(key)
}

func (c *LicenseCache) Len() int {
	return c.lru.Len()
}
