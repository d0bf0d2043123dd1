package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/consortium"
	"github.com/librarystack/inventory-storage-go/inventory/postgresengine"
	"github.com/librarystack/inventory-storage-go/inventory/redisbus"
)

const (
	defaultViewName  = "instance_holdings_item_counts"
	consumerBlock    = 5 * time.Second
	consumerBatchMax = 50
)

// ErrNoTenant is returned when a command needs tenants and none is given.
var ErrNoTenant = errors.New("no tenant given: pass tenants as arguments or set INVENTORY_TENANT")

func cmdMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	tenants := tenantsOf(rt.cfg, args)
	if len(tenants) == 0 {
		return ErrNoTenant
	}

	for _, tenant := range tenants {
		if err := rt.engine.Migrate(ctx, tenant); err != nil {
			return err
		}

		rt.logger.InfoContext(ctx, "tenant schema migrated", "tenant", tenant)
	}

	return nil
}

func cmdRefreshView(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	tenants := tenantsOf(rt.cfg, args)
	if len(tenants) == 0 {
		return ErrNoTenant
	}

	manager, err := rt.engine.NewMatViewManager(viewName, rt.cfg.MatViewRefreshInterval,
		postgresengine.WithMatViewCacheTTL(rt.cfg.MatViewCacheTTL))
	if err != nil {
		return err
	}

	for _, tenant := range tenants {
		refreshed, err := manager.TryRefresh(ctx, inventory.RequestContext{Tenant: tenant})
		if err != nil {
			return err
		}

		if !refreshed {
			rt.logger.InfoContext(ctx, "view is being refreshed elsewhere", "tenant", tenant, "view", viewName)
		}
	}

	return nil
}

func cmdSyncShadows(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.serveMetrics(ctx)

	synchronizer, err := consortium.NewSynchronizer(rt.consortiumData, rt.consortiumClient, rt.engine,
		consortium.WithParallelism(rt.cfg.ShadowSyncParallelism),
		consortium.WithContextualLogger(rt.logger),
		consortium.WithMetrics(rt.metrics),
	)
	if err != nil {
		return err
	}

	stream := redisbus.StreamName(rt.cfg.EventStreamPrefix, centralTenant, inventory.DomainEvent{Entity: inventory.EntityInstance}.Topic())

	consumer, err := redisbus.NewConsumer(rt.redis, rt.cfg.ConsumerGroup, rt.cfg.ConsumerName, []string{stream}, synchronizer.Handle,
		redisbus.WithBatchCount(consumerBatchMax),
		redisbus.WithBlock(consumerBlock),
		redisbus.WithClaimMinIdle(rt.cfg.ConsumerClaimMinIdle),
		redisbus.WithMaxDeliveries(rt.cfg.ConsumerMaxDeliveries),
		redisbus.WithConsumerContextualLogger(rt.logger),
		redisbus.WithConsumerMetrics(rt.metrics),
	)
	if err != nil {
		return err
	}

	rt.logger.InfoContext(ctx, "synchronizing shadow instances", "stream", stream, "group", rt.cfg.ConsumerGroup)

	return consumer.Run(ctx)
}
