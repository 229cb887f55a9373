package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/caregrid/caregrid/pkg/api"
	"github.com/caregrid/caregrid/pkg/audit"
	"github.com/caregrid/caregrid/pkg/config"
	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/observability"
	"github.com/caregrid/caregrid/pkg/rbac"
	"github.com/caregrid/caregrid/pkg/storage/postgres"
	"github.com/caregrid/caregrid/pkg/support"
	"github.com/caregrid/caregrid/pkg/tenancy"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", version).Info("Starting caregrid API server")

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.OTelEnabled,
		Endpoint:    cfg.Observability.OTelEndpoint,
		ServiceName: cfg.Observability.OTelServiceName,
		SampleRatio: cfg.Observability.OTelSampleRatio,
	})
	if err != nil {
		fatal(logger, err, "Failed to set up tracing")
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	// PostgreSQL primary and replicas
	connMgr, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.ConnTimeout,
	}, logger, metrics)
	if err != nil {
		fatal(logger, err, "Failed to connect to PostgreSQL")
	}
	defer connMgr.Close()

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	connMgr.StartStatsRoutine(statsCtx, 15*time.Second)

	db := connMgr.Primary()

	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		fatal(logger, err, "Failed to run migrations")
	}

	// Redis, when the distributed cache backend is selected
	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		redisClient, err = postgres.NewRedisClient(postgres.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			fatal(logger, err, "Failed to connect to Redis")
		}
		defer redisClient.Close()
	}

	// Audit trail: durable rows plus a local file for operators
	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		fatal(logger, err, "Failed to create audit DB logger")
	}
	fileAudit, err := audit.NewFileLogger(audit.DefaultFileLoggerConfig())
	if err != nil {
		fatal(logger, err, "Failed to create audit file logger")
	}
	auditLog := audit.NewMultiLogger(dbAudit, fileAudit)
	auditLog.SetAsync(true)
	defer auditLog.Close()

	// Authorization engine
	roleStore := rbac.NewSQLStore(db)
	if err := rbac.SeedDefaultRoles(ctx, roleStore, logger); err != nil {
		fatal(logger, err, "Failed to seed default roles")
	}

	var cache rbac.PermissionCache
	if cfg.Cache.Enabled {
		if redisClient != nil {
			cache = rbac.NewRedisCache(redisClient, cfg.Cache.TTL, metrics, logger)
			logger.Info("Permission cache backend: redis")
		} else {
			cache = rbac.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL, metrics)
			logger.Info("Permission cache backend: memory")
		}
	}

	ledger := rbac.NewLedger(roleStore, roleStore, auditLog, cache, logger)
	resolver := rbac.NewResolver(roleStore, roleStore, cache, metrics)

	// Tenant context manager over the per-request session filter
	tenantStore := tenancy.NewSQLStore(db)
	tenantMgr := tenancy.NewManager(tenantStore, postgres.NewContextFilter(), auditLog, logger, metrics, tenancy.ManagerOptions{
		AllowPendingSetup: cfg.Tenancy.AllowPendingSetup,
		MaxContextDepth:   cfg.Tenancy.MaxContextDepth,
	})

	grantMgr := support.NewManager(support.NewSQLStore(db), resolver, roleStore, auditLog, logger, metrics, cfg.Tenancy.MaxSupportGrantDuration)

	health := observability.NewHealthChecker(db, redisClient, version)

	server := api.NewServer(api.ServerConfig{
		Roles:    roleStore,
		Ledger:   ledger,
		Resolver: resolver,
		Grants:   grantMgr,
		Tenants:  tenantMgr,
		AuditLog: auditLog,
		Logger:   logger,
		Metrics:  metrics,
		Verifier: identity.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Health:   health,
		DB:       db,
		Tracing:  cfg.Observability.OTelEnabled,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Separate listener for probes and scrapes so they stay reachable when
	// the API port is saturated.
	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/healthz", health.Liveness)
	opsMux.HandleFunc("/readyz", health.Readiness)
	if metrics != nil {
		opsMux.Handle("/metrics", metrics.Handler())
	}
	opsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler: opsMux,
	}
	go func() {
		logger.WithField("addr", opsServer.Addr).Info("Health server listening")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, err, "HTTP server failed")
		}
	}()

	if err := observability.GracefulShutdown(logger, httpServer,
		func(ctx context.Context) error { stopStats(); return nil },
		func(ctx context.Context) error { return opsServer.Shutdown(ctx) },
		func(ctx context.Context) error { return auditLog.Close() },
		func(ctx context.Context) error { return shutdownTracing(ctx) },
		func(ctx context.Context) error { return connMgr.Close() },
	); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func fatal(logger *observability.Logger, err error, message string) {
	logger.WithError(err).Error(message)
	os.Exit(1)
}
