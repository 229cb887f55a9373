// caregrid-sweeper periodically cleans up expired role assignments and
// reports support access grants that lapsed without an explicit revoke.
// Expired grants are never deleted; they stay on record for audit.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/caregrid/caregrid/pkg/observability"
	"github.com/caregrid/caregrid/pkg/rbac"
	"github.com/caregrid/caregrid/pkg/support"
)

func main() {
	schedule := flag.String("schedule", "@hourly", "Cron schedule for the sweep")
	runOnce := flag.Bool("run-once", false, "Sweep once and exit")
	dbURL := flag.String("database-url", os.Getenv("CAREGRID_POSTGRES_URL"), "PostgreSQL connection URL")
	flag.Parse()

	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "A database URL is required (--database-url or CAREGRID_POSTGRES_URL)")
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
	ctx := context.Background()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}

	roleStore := rbac.NewSQLStore(db)
	ledger := rbac.NewLedger(roleStore, roleStore, nil, nil, logger)
	grants := support.NewManager(support.NewSQLStore(db), nil, nil, nil, logger, nil, 0)

	if *runOnce {
		if err := sweep(ctx, ledger, grants, logger); err != nil {
			logger.WithError(err).Error("Sweep failed")
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		if err := sweep(ctx, ledger, grants, logger); err != nil {
			logger.WithError(err).Error("Sweep failed")
		}
	}); err != nil {
		logger.WithError(err).Error("Invalid cron schedule")
		os.Exit(1)
	}

	logger.WithField("schedule", *schedule).Info("Sweeper started")
	c.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info("Sweeper stopped")
}

// sweep removes expired assignments and logs lapsed support grants
func sweep(ctx context.Context, ledger *rbac.Ledger, grants *support.Manager, logger *observability.Logger) error {
	start := time.Now()

	removed, err := ledger.DeleteExpired(ctx, start)
	if err != nil {
		return fmt.Errorf("failed to delete expired assignments: %w", err)
	}

	lapsed, err := grants.ReportExpired(ctx, start)
	if err != nil {
		return fmt.Errorf("failed to list expired grants: %w", err)
	}
	for _, grant := range lapsed {
		logger.WithFields(map[string]interface{}{
			"grant_id":   grant.ID,
			"tenant_id":  grant.TenantID,
			"granted_to": grant.GrantedTo,
			"expired_at": grant.ExpiresAt,
		}).Info("Support grant lapsed without explicit revoke")
	}

	logger.WithFields(map[string]interface{}{
		"assignments_removed": removed,
		"grants_lapsed":       len(lapsed),
		"duration":            time.Since(start).String(),
	}).Info("Sweep complete")
	return nil
}
