// Package cache provides the Redis-backed caches used by the worker.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nba_analytics/ingestion/internal/metrics"
	"nba_analytics/ingestion/internal/models"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyTeams        = "nba:teams"
	keyPriorPrefix  = "nba:prior:"
	keyReportPrefix = "nba:report:"
)

// Config holds Redis connection settings and per-entry TTLs
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int

	TeamsTTL  time.Duration
	PriorTTL  time.Duration
	ReportTTL time.Duration
}

// RedisCache stores the team table, prior per-team data and assembled reports
type RedisCache struct {
	client    *redis.Client
	teamsTTL  time.Duration
	priorTTL  time.Duration
	reportTTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Host + ":" + cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Int("db", cfg.DB).
		Msg("Successfully connected to Redis")

	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client. Zero TTLs get defaults.
func NewWithClient(client *redis.Client, cfg Config) *RedisCache {
	c := &RedisCache{
		client:    client,
		teamsTTL:  cfg.TeamsTTL,
		priorTTL:  cfg.PriorTTL,
		reportTTL: cfg.ReportTTL,
	}
	if c.teamsTTL <= 0 {
		c.teamsTTL = 24 * time.Hour
	}
	if c.priorTTL <= 0 {
		c.priorTTL = 30 * 24 * time.Hour
	}
	if c.reportTTL <= 0 {
		c.reportTTL = 10 * time.Minute
	}
	return c
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks that Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// GetTeams returns the cached team table
func (c *RedisCache) GetTeams(ctx context.Context) ([]models.Team, bool, error) {
	var teams []models.Team
	ok, err := c.get(ctx, "teams", keyTeams, &teams)
	return teams, ok, err
}

// SetTeams caches the team table
func (c *RedisCache) SetTeams(ctx context.Context, teams []models.Team) error {
	return c.set(ctx, keyTeams, teams, c.teamsTTL)
}

// LoadPrior returns the last good snapshot for a team, or nil when there is none
func (c *RedisCache) LoadPrior(ctx context.Context, team string) (*models.PriorSnapshot, error) {
	var prior models.PriorSnapshot
	ok, err := c.get(ctx, "prior", keyPriorPrefix+team, &prior)
	if err != nil || !ok {
		return nil, err
	}
	return &prior, nil
}

// SavePrior stores the last good snapshot for a team
func (c *RedisCache) SavePrior(ctx context.Context, prior *models.PriorSnapshot) error {
	return c.set(ctx, keyPriorPrefix+prior.Team, prior, c.priorTTL)
}

// GetReport returns a cached report younger than the report TTL, or nil
func (c *RedisCache) GetReport(ctx context.Context, team string) (*models.UnifiedTeamReport, error) {
	var report models.UnifiedTeamReport
	ok, err := c.get(ctx, "report", keyReportPrefix+team, &report)
	if err != nil || !ok {
		return nil, err
	}
	return &report, nil
}

// SetReport caches an assembled report
func (c *RedisCache) SetReport(ctx context.Context, report *models.UnifiedTeamReport) error {
	return c.set(ctx, keyReportPrefix+report.Team.Abbreviation, report, c.reportTTL)
}

func (c *RedisCache) get(ctx context.Context, name, key string, out any) (bool, error) {
	start := time.Now()
	data, err := c.client.Get(ctx, key).Bytes()
	metrics.RecordCacheOperation("get", time.Since(start).Seconds())

	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss(name)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := sonic.Unmarshal(data, out); err != nil {
		// A stale entry from an older layout is a miss
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		metrics.RecordCacheMiss(name)
		return false, nil
	}

	metrics.RecordCacheHit(name)
	return true, nil
}

func (c *RedisCache) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	start := time.Now()
	err = c.client.Set(ctx, key, data, ttl).Err()
	metrics.RecordCacheOperation("set", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
