package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"nba_analytics/ingestion/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Database owns the pgx pool behind the record sink
type Database struct {
	Pool    *pgxpool.Pool
	Records *RecordRepository
}

//go:embed schema.sql
var schemaSQL string

// Config holds PostgreSQL connection settings
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDatabase opens the pool and verifies it with a ping
func NewDatabase(ctx context.Context, cfg Config) (*Database, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// A batch holds at most one connection per worker plus the ops server
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("database", cfg.Database).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("Record store connected")

	db := &Database{Pool: pool}
	db.Records = &RecordRepository{db: db}
	return db, nil
}

// Close releases the pool
func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("Record store closed")
	}
}

// Migrate creates the records table and its indexes if they do not exist
func (db *Database) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Info().Msg("Database schema is up to date")
	return nil
}

// Health pings the pool and confirms the records table exists
func (db *Database) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var table *string
	if err := db.Pool.QueryRow(ctx, "SELECT to_regclass('records')::text").Scan(&table); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if table == nil {
		return fmt.Errorf("database health check failed: records table missing, run Migrate")
	}
	return nil
}

// PoolStats returns pool usage for the ops endpoints
func (db *Database) PoolStats() map[string]any {
	stat := db.Pool.Stat()
	return map[string]any{
		"total_conns":    stat.TotalConns(),
		"acquired_conns": stat.AcquiredConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
		"wait_count":     stat.EmptyAcquireCount(),
	}
}

// ReportPoolStats publishes pool usage to prometheus
func (db *Database) ReportPoolStats() {
	stat := db.Pool.Stat()
	metrics.UpdateDBConnectionStats(stat.AcquiredConns(), stat.IdleConns())
}
