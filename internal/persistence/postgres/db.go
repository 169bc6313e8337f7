// Package postgres provides the concrete sqlx+lib/pq repositories
// backing internal/persistence's hot-path tables.
//
// Grounded on the teacher's internal/infrastructure/db/connection.go:
// a disable-by-default Config/Manager pair so the engine runs (and its
// tests run) with no database at all, only dialing Postgres when a
// deployment turns persistence on.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/quantcandle/signalengine/internal/persistence"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"PG_CONN_MAX_IDLE_TIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"PG_QUERY_TIMEOUT"`
	Enabled         bool          `yaml:"enabled" env:"PG_ENABLED"`
}

// DefaultConfig returns reasonable defaults for database connections.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    10 * time.Second,
		Enabled:         false,
	}
}

// Manager owns the pooled connection and the hot-path repository set.
type Manager struct {
	db     *sqlx.DB
	config Config
	repos  *persistence.Repository
	health *healthChecker
}

// NewManager opens a connection pool and wires the hot-path
// repositories. When config.Enabled is false it returns a Manager with
// a nil pool and a disabled health checker — the orchestrator's
// RecommendationStore and risk evaluator fall back to callers handling
// a nil Repository field, matching how this engine runs in tests and
// in the CLI's default (no-database) mode.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config, health: &healthChecker{enabled: false}}, nil
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("persistence: DSN required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repos := &persistence.Repository{
		Recommendations: NewRecommendationsRepo(db, config.QueryTimeout),
		RiskAudit:       NewRiskAuditRepo(db, config.QueryTimeout),
		ExposureLedger:  NewExposureLedgerRepo(db, config.QueryTimeout),
		EnsembleWeights: NewEnsembleWeightsRepo(db, config.QueryTimeout),
		UserRiskState:   NewUserRiskStateRepo(db, config.QueryTimeout),
		SignalOutcomes:  NewSignalOutcomesRepo(db, config.QueryTimeout),
		BacktestResults: NewBacktestResultsRepo(db, config.QueryTimeout),
	}

	return &Manager{
		db:     db,
		config: config,
		repos:  repos,
		health: &healthChecker{enabled: true, db: db, timeout: config.QueryTimeout},
	}, nil
}

// Repository returns the hot-path repository set, nil when disabled.
func (m *Manager) Repository() *persistence.Repository { return m.repos }

// Health returns the health checker, surfaced by `check-alerts`.
func (m *Manager) Health() persistence.RepositoryHealth { return m.health }

// DB returns the underlying pool, for migrations.
func (m *Manager) DB() *sqlx.DB { return m.db }

// IsEnabled reports whether persistence is live.
func (m *Manager) IsEnabled() bool { return m.config.Enabled && m.db != nil }

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	if !h.enabled {
		return persistence.HealthCheck{
			Healthy:   true,
			Errors:    []string{"persistence disabled"},
			LastCheck: time.Now(),
		}
	}

	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var errs []string
	healthy := true
	if err := h.db.PingContext(pingCtx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	return persistence.HealthCheck{
		Healthy: healthy,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open": stats.MaxOpenConnections,
			"open":     stats.OpenConnections,
			"in_use":   stats.InUse,
			"idle":     stats.Idle,
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}

// isNoRows reports whether err is sql.ErrNoRows, the not-found signal
// every GetBy*/Get method below translates to a nil, nil return.
func isNoRows(err error) bool { return err == sql.ErrNoRows }
