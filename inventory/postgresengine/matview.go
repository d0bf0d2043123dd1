package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	gocache "github.com/patrickmn/go-cache"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const (
	logActionMatView     = "materialized view"
	colViewName          = "view_name"
	colLastRefresh       = "last_refresh"
	colIsRefreshing      = "is_refreshing"
	colRefreshStartedAt  = "refresh_started_at"
	colRefreshInstanceID = "refresh_instance_id"
)

const (
	// DefaultMatViewCacheTTL is how long a ShouldUseView answer is reused unless configured otherwise.
	DefaultMatViewCacheTTL = 5 * time.Minute

	// DefaultMatViewLockTimeout is the age after which a refresh lease may be taken over.
	DefaultMatViewLockTimeout = 5 * time.Minute
)

// ErrInvalidViewName is returned when a view name is no plain lower case identifier.
var ErrInvalidViewName = errors.New("view name must consist of lower case letters, digits and underscores")

// MatViewManager decides whether a materialized view is fresh enough to be queried and keeps it refreshed.
//
// Refreshing is guarded by a lease in the mat_view_metadata table: a single conditional update marks the
// view as refreshing, so at most one refresher runs per view and tenant. A lease older than the lock
// timeout may be taken over.
type MatViewManager struct {
	engine          *Engine
	view            string
	refreshInterval time.Duration
	cacheTTL        time.Duration
	lockTimeout     time.Duration

	cache     *gocache.Cache
	refreshes sync.WaitGroup
}

// MatViewOption configures a MatViewManager.
type MatViewOption func(*MatViewManager)

// WithMatViewCacheTTL sets how long a ShouldUseView answer is reused. A TTL of zero disables the cache.
func WithMatViewCacheTTL(ttl time.Duration) MatViewOption {
	return func(m *MatViewManager) {
		m.cacheTTL = ttl
	}
}

// WithMatViewLockTimeout sets the age after which a refresh lease may be taken over.
func WithMatViewLockTimeout(timeout time.Duration) MatViewOption {
	return func(m *MatViewManager) {
		m.lockTimeout = timeout
	}
}

// NewMatViewManager creates the manager of one materialized view.
// The view counts as stale once its last refresh is older than refreshInterval.
func (e *Engine) NewMatViewManager(view string, refreshInterval time.Duration, options ...MatViewOption) (*MatViewManager, error) {
	if !tenantPattern.MatchString(view) {
		return nil, ErrInvalidViewName
	}

	m := &MatViewManager{
		engine:          e,
		view:            view,
		refreshInterval: refreshInterval,
		cacheTTL:        DefaultMatViewCacheTTL,
		lockTimeout:     DefaultMatViewLockTimeout,
	}

	for _, option := range options {
		option(m)
	}

	m.cache = gocache.New(m.cacheTTL, 2*m.cacheTTL)

	return m, nil
}

// ShouldUseView reports whether the view is fresh and not being refreshed.
// A stale view that nobody refreshes triggers a refresh in the background.
// Failures answer false and are not cached.
func (m *MatViewManager) ShouldUseView(ctx context.Context, rc inventory.RequestContext) bool {
	tenant := m.engine.tenantOf(rc)

	if useView, ok := m.cached(tenant); ok {
		return useView
	}

	var useView bool

	err := m.engine.read(ctx, rc, "should_use_view", func(ctx context.Context, s *scope) error {
		sqlQuery, err := toSQL(builder().From(s.table(tableMatViewMetadata)).
			Select(
				goqu.L("("+colLastRefresh+" IS NULL OR "+colLastRefresh+" < NOW() - ?::interval)::text",
					intervalLiteral(m.refreshInterval)),
				goqu.L(colIsRefreshing+"::text"),
			).
			Where(goqu.C(colViewName).Eq(m.view)))
		if err != nil {
			return err
		}

		rows, err := s.scanStrings(ctx, sqlQuery, logActionMatView, 2)
		if err != nil {
			return err
		}

		if len(rows) == 0 {
			useView = false
			return nil
		}

		needsRefresh := *rows[0][0] == "true"
		isRefreshing := *rows[0][1] == "true"

		if needsRefresh && !isRefreshing {
			m.refreshInBackground(ctx, s.rc)
		}

		useView = !needsRefresh && !isRefreshing

		return nil
	})
	if err != nil {
		m.engine.logErrorContext(ctx, logMsgViewStatusFailed, err, logAttrTenant, tenant, logAttrView, m.view)
		return false
	}

	m.store(tenant, useView)

	return useView
}

// TryRefresh refreshes the view when it can acquire the refresh lease and reports whether it did.
// On success the lease is released with a new last_refresh stamp and the cached answer is dropped,
// on failure the lease is released without stamping.
func (m *MatViewManager) TryRefresh(ctx context.Context, rc inventory.RequestContext) (bool, error) {
	leaseID := newID()
	refreshed := false

	err := m.engine.read(ctx, rc, "refresh_view", func(ctx context.Context, s *scope) error {
		acquired, err := m.acquireLease(ctx, s, leaseID)
		if err != nil {
			m.engine.logErrorContext(ctx, logMsgRefreshLeaseFailed, err, logAttrTenant, s.rc.Tenant, logAttrView, m.view)
			return err
		}

		if !acquired {
			return nil
		}

		refreshErr := s.exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+s.qualifiedName(m.view), logActionMatView)
		if refreshErr != nil {
			m.engine.logErrorContext(ctx, logMsgRefreshFailed, refreshErr, logAttrTenant, s.rc.Tenant, logAttrView, m.view)
		}

		if releaseErr := m.releaseLease(ctx, s, leaseID, refreshErr == nil); releaseErr != nil {
			m.engine.logWarnContext(ctx, logMsgRefreshReleaseFailed, releaseErr, logAttrTenant, s.rc.Tenant, logAttrView, m.view)
			return errors.Join(refreshErr, releaseErr)
		}

		if refreshErr != nil {
			return refreshErr
		}

		refreshed = true
		m.InvalidateCache(s.rc.Tenant)
		m.engine.logOperation(ctx, logMsgViewRefreshed, logAttrTenant, s.rc.Tenant, logAttrView, m.view)

		return nil
	})

	return refreshed, err
}

// InvalidateCache drops the cached answer of a tenant.
func (m *MatViewManager) InvalidateCache(tenant string) {
	m.cache.Delete(tenant)
}

// Wait blocks until the background refreshes started so far have finished.
func (m *MatViewManager) Wait() {
	m.refreshes.Wait()
}

func (m *MatViewManager) refreshInBackground(ctx context.Context, rc inventory.RequestContext) {
	m.refreshes.Add(1)

	go func() {
		defer m.refreshes.Done()

		// errors are logged by TryRefresh
		_, _ = m.TryRefresh(context.WithoutCancel(ctx), rc)
	}()
}

func (m *MatViewManager) acquireLease(ctx context.Context, s *scope, leaseID string) (bool, error) {
	sqlQuery, err := toSQL(builder().Update(s.table(tableMatViewMetadata)).
		Set(goqu.Record{
			colIsRefreshing:      true,
			colRefreshStartedAt:  goqu.L("NOW()"),
			colRefreshInstanceID: goqu.L(castUUID, leaseID),
		}).
		Where(
			goqu.C(colViewName).Eq(m.view),
			goqu.Or(
				goqu.C(colIsRefreshing).IsFalse(),
				goqu.C(colRefreshStartedAt).Lt(goqu.L("NOW() - ?::interval", intervalLiteral(m.lockTimeout))),
			),
		))
	if err != nil {
		return false, err
	}

	affected, err := s.execAffected(ctx, sqlQuery, logActionMatView)

	return affected > 0, err
}

func (m *MatViewManager) releaseLease(ctx context.Context, s *scope, leaseID string, stamp bool) error {
	values := goqu.Record{colIsRefreshing: false}
	if stamp {
		values[colLastRefresh] = goqu.L("NOW()")
		values[colRefreshInstanceID] = nil
	}

	sqlQuery, err := toSQL(builder().Update(s.table(tableMatViewMetadata)).
		Set(values).
		Where(goqu.C(colViewName).Eq(m.view), goqu.C(colRefreshInstanceID).Eq(goqu.L(castUUID, leaseID))))
	if err != nil {
		return err
	}

	return s.exec(ctx, sqlQuery, logActionMatView)
}

func (m *MatViewManager) cached(tenant string) (bool, bool) {
	entry, ok := m.cache.Get(tenant)
	if !ok {
		return false, false
	}

	return entry.(bool), true
}

func (m *MatViewManager) store(tenant string, useView bool) {
	if m.cacheTTL <= 0 {
		return
	}

	m.cache.Set(tenant, useView, gocache.DefaultExpiration)
}

func intervalLiteral(d time.Duration) string {
	return fmt.Sprintf("%d milliseconds", d.Milliseconds())
}
