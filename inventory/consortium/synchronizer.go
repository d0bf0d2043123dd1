package consortium

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// DefaultParallelism is the number of shadow copies updated at the same time.
const DefaultParallelism = 10

var (
	// ErrInvalidParallelism is returned when a parallelism below one is configured.
	ErrInvalidParallelism = errors.New("parallelism must be at least 1")

	// ErrNilCollaborator is returned when a required collaborator of the Synchronizer is nil.
	ErrNilCollaborator = errors.New("data cache, client and shadow store must not be nil")

	// ErrShadowUpdatesFailed is returned when the shadow copy of at least one tenant was not updated.
	ErrShadowUpdatesFailed = errors.New("updating shadow instances failed")
)

// ShadowStore reads and writes Instances of any tenant.
type ShadowStore interface {
	GetInstance(ctx context.Context, rc inventory.RequestContext, id string) (*inventory.Instance, error)
	UpdateInstance(ctx context.Context, rc inventory.RequestContext, instance *inventory.Instance) error
}

// TenantLookup finds the tenants holding a shadow copy of an Instance of the central tenant.
type TenantLookup interface {
	ShadowTenants(ctx context.Context, rc inventory.RequestContext, data Data, instanceID string) ([]string, error)
}

// Report is the outcome of one propagation.
type Report struct {
	Updated []string
	Failed  map[string]error
}

// Err returns nil when every shadow copy was updated, and otherwise ErrShadowUpdatesFailed
// joined with the failure of each tenant, ordered by tenant.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}

	tenants := make([]string, 0, len(r.Failed))
	for tenant := range r.Failed {
		tenants = append(tenants, tenant)
	}
	slices.Sort(tenants)

	errs := []error{ErrShadowUpdatesFailed}
	for _, tenant := range tenants {
		errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, r.Failed[tenant]))
	}

	return errors.Join(errs...)
}

// Synchronizer propagates updates of central Instances to the shadow copies of the member tenants.
type Synchronizer struct {
	cache            *DataCache
	lookup           TenantLookup
	store            ShadowStore
	parallelism      int
	logger           inventory.Logger
	contextualLogger inventory.ContextualLogger
	metricsCollector inventory.MetricsCollector
}

// SynchronizerOption defines a functional option for configuring the Synchronizer.
type SynchronizerOption func(*Synchronizer) error

// WithParallelism sets how many shadow copies are updated at the same time.
func WithParallelism(parallelism int) SynchronizerOption {
	return func(s *Synchronizer) error {
		if parallelism < 1 {
			return ErrInvalidParallelism
		}

		s.parallelism = parallelism

		return nil
	}
}

// WithLogger sets the logger of the Synchronizer.
func WithLogger(logger inventory.Logger) SynchronizerOption {
	return func(s *Synchronizer) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the context-aware logger of the Synchronizer.
func WithContextualLogger(logger inventory.ContextualLogger) SynchronizerOption {
	return func(s *Synchronizer) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector of the Synchronizer.
func WithMetrics(collector inventory.MetricsCollector) SynchronizerOption {
	return func(s *Synchronizer) error {
		s.metricsCollector = collector
		return nil
	}
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(cache *DataCache, lookup TenantLookup, store ShadowStore, options ...SynchronizerOption) (*Synchronizer, error) {
	if cache == nil || lookup == nil || store == nil {
		return nil, ErrNilCollaborator
	}

	s := &Synchronizer{
		cache:       cache,
		lookup:      lookup,
		store:       store,
		parallelism: DefaultParallelism,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Handle propagates an Instance UPDATE event. Other events are ignored.
// The event fails when any tenant failed, so it is delivered again; tenants updated before
// are written again with their current version.
func (s *Synchronizer) Handle(ctx context.Context, event inventory.DomainEvent) error {
	report, err := s.Synchronize(ctx, event)
	if err == nil {
		err = report.Err()
	}

	if err != nil {
		s.logWarnContext(ctx, logMsgSyncFailed, err, logAttrTenant, event.Tenant, logAttrInstanceID, event.Key)
	}

	return err
}

// Synchronize propagates an UPDATE event of an Instance of the central tenant to every shadow copy.
// Each shadow copy is re-read and written with its current version. Tenants are processed in chunks
// of the configured parallelism; one tenant failing never stops the others.
func (s *Synchronizer) Synchronize(ctx context.Context, event inventory.DomainEvent) (Report, error) {
	report := Report{Failed: map[string]error{}}

	if event.Type != inventory.EventTypeUpdate || event.Entity != inventory.EntityInstance {
		return report, nil
	}

	rc, _ := inventory.RequestFromContext(ctx)
	rc.Tenant = event.Tenant

	data, member, err := s.cache.Get(ctx, rc)
	if err != nil || !member || !data.IsCentral(event.Tenant) {
		return report, err
	}

	var central inventory.Instance
	if err := event.DecodeNew(&central); err != nil {
		return report, err
	}

	if !strings.HasPrefix(central.Source, inventory.ConsortiumSourcePrefix) {
		central.Source = inventory.ConsortiumSourcePrefix + central.Source
	}

	tenants, err := s.lookup.ShadowTenants(ctx, rc, data, event.Key)
	if err != nil {
		return report, err
	}

	s.logInfoContext(ctx, logMsgSyncStarted, logAttrInstanceID, event.Key, logAttrTenantCount, len(tenants))

	for start := 0; start < len(tenants); start += s.parallelism {
		chunk := tenants[start:min(start+s.parallelism, len(tenants))]
		errs := make([]error, len(chunk))

		group, groupCtx := errgroup.WithContext(ctx)
		for i, tenant := range chunk {
			group.Go(func() error {
				shadowRC := rc
				shadowRC.Tenant = tenant
				errs[i] = s.updateShadow(groupCtx, shadowRC, central)

				return nil
			})
		}
		_ = group.Wait()

		for i, tenant := range chunk {
			if errs[i] != nil {
				report.Failed[tenant] = errs[i]
				s.logWarnContext(ctx, logMsgShadowFailed, errs[i], logAttrTenant, tenant, logAttrInstanceID, event.Key)
				s.incrementCounter(metricShadowsFailed)

				continue
			}

			report.Updated = append(report.Updated, tenant)
			s.logInfoContext(ctx, logMsgShadowUpdated, logAttrTenant, tenant, logAttrInstanceID, event.Key)
			s.incrementCounter(metricShadowsUpdated)
		}
	}

	return report, nil
}

func (s *Synchronizer) updateShadow(ctx context.Context, rc inventory.RequestContext, central inventory.Instance) error {
	current, err := s.store.GetInstance(ctx, rc, central.ID)
	if err != nil {
		return err
	}

	shadow := central
	shadow.Version = current.Version

	return s.store.UpdateInstance(ctx, rc, &shadow)
}
