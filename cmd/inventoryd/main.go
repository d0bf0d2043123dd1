// Command inventoryd runs the maintenance and background processes of the inventory storage.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/librarystack/inventory-storage-go/config"
)

var (
	rootCmd = &cobra.Command{
		Use:           "inventoryd",
		Short:         "Inventory storage processes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate [tenant...]",
		Short: "Create or complete the schemas of tenants",
		RunE:  cmdMigrate,
	}

	syncShadowsCmd = &cobra.Command{
		Use:   "sync-shadows",
		Short: "Propagate Instance updates of the central tenant to the shadow copies of the member tenants",
		RunE:  cmdSyncShadows,
	}

	refreshViewCmd = &cobra.Command{
		Use:   "refresh-view [tenant...]",
		Short: "Refresh the holdings and item counts view of tenants",
		RunE:  cmdRefreshView,
	}

	centralTenant string
	viewName      string
)

func main() {
	syncShadowsCmd.Flags().StringVar(&centralTenant, "central-tenant", "", "tenant whose Instance events are propagated")
	_ = syncShadowsCmd.MarkFlagRequired("central-tenant")
	refreshViewCmd.Flags().StringVar(&viewName, "view", defaultViewName, "materialized view to refresh")

	rootCmd.AddCommand(migrateCmd, syncShadowsCmd, refreshViewCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("inventoryd: %v", err)
		stop()
		os.Exit(1)
	}
}

// tenantsOf returns the tenants named on the command line, or the configured tenant.
func tenantsOf(cfg config.Config, args []string) []string {
	if len(args) > 0 {
		return args
	}

	if cfg.Tenant != "" {
		return []string{cfg.Tenant}
	}

	return nil
}
