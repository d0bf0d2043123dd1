package consortium

import (
	"context"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/postgresengine"
)

// Sharer makes Instances of the central tenant available in member tenants.
type Sharer struct {
	cache  *DataCache
	client *Client
}

// NewSharer creates a Sharer.
func NewSharer(cache *DataCache, client *Client) *Sharer {
	return &Sharer{cache: cache, client: client}
}

// ShareInstance asks the central tenant to share an Instance into the tenant of rc.
// It reports false when the tenant belongs to no consortium.
func (s *Sharer) ShareInstance(ctx context.Context, rc inventory.RequestContext, instanceID string) (bool, error) {
	data, member, err := s.cache.Get(ctx, rc)
	if err != nil || !member {
		return false, err
	}

	central := rc
	central.Tenant = data.CentralTenantID

	_, err = s.client.Share(ctx, central, data.ConsortiumID, SharingInstance{
		InstanceIdentifier: instanceID,
		SourceTenantID:     data.CentralTenantID,
		TargetTenantID:     rc.Tenant,
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// Compile-time check to ensure Sharer implements the postgresengine.InstanceSharer interface.
var _ postgresengine.InstanceSharer = (*Sharer)(nil)

var (
	_ DataLoader   = (*Client)(nil)
	_ TenantLookup = (*Client)(nil)
	_ ShadowStore  = (*postgresengine.Engine)(nil)
)
