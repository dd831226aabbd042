package routeopt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/geo"
)

// Cache is the route cache (spec §4.4): key = (start rounded to 4
// decimals, sorted order IDs), TTL 5 min, LRU-bounded at 1000 entries.
// Built directly on core.MemoryStore — the same TTL+LRU primitive the
// teacher's pkg/routing/cache.go implements for its own route cache,
// generalized here from a string-keyed NL-route cache to this module's
// domain.Route.
type Cache struct {
	store *core.MemoryStore
	ttl   time.Duration
}

const defaultCacheTTL = 5 * time.Minute
const defaultCacheMaxEntries = 1000

func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	return &Cache{store: core.NewBoundedMemoryStore(maxEntries), ttl: ttl}
}

// Key builds the cache key for a start location and a set of orders.
func Key(start domain.LatLng, orders []*domain.Order) string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	sort.Strings(ids)
	return fmt.Sprintf("%.4f,%.4f|%v", geo.Round4(start.Lat), geo.Round4(start.Lng), ids)
}

func (c *Cache) Get(ctx context.Context, key string) (*domain.Route, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}
	var route domain.Route
	if err := json.Unmarshal([]byte(raw), &route); err != nil {
		return nil, false
	}
	route.Quality = domain.QualityCached
	return &route, true
}

func (c *Cache) Put(ctx context.Context, key string, route *domain.Route) {
	data, err := json.Marshal(route)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, key, string(data), c.ttl)
}

func (c *Cache) Len() int { return c.store.Len() }
