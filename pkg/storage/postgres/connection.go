// Package postgres provides the PostgreSQL connection layer: a
// primary/replica connection manager and the tenant-filtered session bound
// to the tenancy context stack.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/caregrid/caregrid/pkg/observability"
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConnectionManager manages the PostgreSQL primary and read replicas.
// Reads may round-robin across replicas; writes and tenant-filtered
// sessions always use the primary.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32
	mu       sync.RWMutex
	config   ConnectionConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewConnectionManager connects to the primary and any configured replicas.
// Replica failures are non-fatal; the primary must be reachable.
func NewConnectionManager(config ConnectionConfig, logger *observability.Logger, metrics *observability.Metrics) (*ConnectionManager, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	cm := &ConnectionManager{
		config:  config,
		logger:  logger,
		metrics: metrics,
	}

	primary, err := sql.Open("postgres", config.PrimaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}
	configurePool(primary, config.MaxConns, config)

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := primary.PingContext(ctx); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}
	cm.primary = primary

	for i, replicaURL := range config.ReplicaURLs {
		replica, err := sql.Open("postgres", replicaURL)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Failed to open replica connection")
			continue
		}

		replicaMaxConns := config.MaxConns / 2
		if replicaMaxConns < 2 {
			replicaMaxConns = 2
		}
		configurePool(replica, replicaMaxConns, config)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), config.Timeout)
		err = replica.PingContext(pingCtx)
		pingCancel()
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Failed to ping replica")
			replica.Close()
			continue
		}

		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("Database connection manager initialized")
	return cm, nil
}

func configurePool(db *sql.DB, maxConns int, config ConnectionConfig) {
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)
}

// Primary returns the primary database connection, for writes and filtered
// sessions
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica in round-robin order, falling back to the
// primary when none are available
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	replicaCount := len(cm.replicas)
	cm.mu.RUnlock()

	if replicaCount == 0 {
		return cm.primary
	}

	index := atomic.AddUint32(&cm.current, 1)

	cm.mu.RLock()
	replica := cm.replicas[int(index%uint32(replicaCount))]
	cm.mu.RUnlock()
	return replica
}

// HealthCheck pings the primary and replicas. A dead primary is an error;
// dead replicas only are reported when all of them are down.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

// PublishStats exports primary pool statistics to the metrics gauges
func (cm *ConnectionManager) PublishStats() {
	if cm.metrics == nil {
		return
	}
	stats := cm.primary.Stats()
	cm.metrics.DBConnectionsActive.Set(float64(stats.InUse))
	cm.metrics.DBConnectionsIdle.Set(float64(stats.Idle))
}

// StartStatsRoutine publishes pool statistics on an interval until the
// context is cancelled
func (cm *ConnectionManager) StartStatsRoutine(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.PublishStats()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes the primary and all replica connections
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %v", errs)
	}
	return nil
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	urls := strings.Split(replicaURLsStr, ",")
	result := make([]string, 0, len(urls))
	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
