package consortium

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// DefaultDataTTL is how long consortium data of a tenant is reused.
const DefaultDataTTL = 5 * time.Minute

// Data describes the consortium a tenant belongs to.
type Data struct {
	CentralTenantID string
	ConsortiumID    string
	MemberTenants   []string
}

// IsCentral reports whether tenant is the central tenant of the consortium.
func (d Data) IsCentral(tenant string) bool {
	return d.CentralTenantID == tenant
}

// DataLoader loads the consortium data of the tenant of rc. It reports false for tenants outside any consortium.
type DataLoader interface {
	LoadData(ctx context.Context, rc inventory.RequestContext) (Data, bool, error)
}

type cachedData struct {
	data   Data
	member bool
}

// DataCache remembers the consortium data per tenant, including that a tenant belongs to no consortium.
// Failed loads are not remembered. Concurrent lookups of one tenant share a single load.
type DataCache struct {
	loader DataLoader
	cache  *gocache.Cache
	loads  singleflight.Group
}

// NewDataCache creates a DataCache keeping entries for ttl.
func NewDataCache(loader DataLoader, ttl time.Duration) *DataCache {
	return &DataCache{
		loader: loader,
		cache:  gocache.New(ttl, 2*ttl),
	}
}

// Get returns the consortium data of the tenant of rc.
func (c *DataCache) Get(ctx context.Context, rc inventory.RequestContext) (Data, bool, error) {
	if entry, ok := c.cache.Get(rc.Tenant); ok {
		cached := entry.(cachedData)
		return cached.data, cached.member, nil
	}

	loaded, err, _ := c.loads.Do(rc.Tenant, func() (any, error) {
		data, member, err := c.loader.LoadData(ctx, rc)
		if err != nil {
			return nil, err
		}

		entry := cachedData{data: data, member: member}
		c.cache.SetDefault(rc.Tenant, entry)

		return entry, nil
	})
	if err != nil {
		return Data{}, false, err
	}

	cached := loaded.(cachedData)

	return cached.data, cached.member, nil
}

// Invalidate drops the entry of a tenant.
func (c *DataCache) Invalidate(tenant string) {
	c.cache.Delete(tenant)
}
