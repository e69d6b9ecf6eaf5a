// Package pipeline wires configuration into the provider clients and adapters
// shared by the worker and the manual fetch tool.
package pipeline

import (
	"fmt"
	"strconv"

	"nba_analytics/ingestion/internal/analytics"
	"nba_analytics/ingestion/internal/cache"
	"nba_analytics/ingestion/internal/client"
	"nba_analytics/ingestion/internal/config"
	"nba_analytics/ingestion/internal/parlay"
	"nba_analytics/ingestion/internal/provider"
	"nba_analytics/ingestion/internal/report"

	"github.com/rs/zerolog/log"
)

const (
	providerBallDontLie = "balldontlie"
	providerTheOddsAPI  = "the_odds_api"
)

// Providers builds one rate-limited client per provider and selects the
// configured adapter for each record kind
func Providers(cfg *config.Config) (provider.Set, error) {
	bdlClient := client.NewClient(client.Config{
		Provider:    providerBallDontLie,
		BaseURL:     cfg.BallDontLieBaseURL,
		Timeout:     cfg.FetchTimeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
		Limiter:     client.NewRateLimiter(providerBallDontLie, cfg.RateLimitCalls, cfg.RateLimitPeriod),
		Auth:        client.HeaderAuth("Authorization", cfg.BallDontLieAPIKey),
	})

	oddsClient := client.NewClient(client.Config{
		Provider:    providerTheOddsAPI,
		BaseURL:     cfg.OddsAPIBaseURL,
		Timeout:     cfg.FetchTimeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
		Limiter:     client.NewRateLimiter(providerTheOddsAPI, cfg.RateLimitCalls, cfg.RateLimitPeriod),
		Auth:        client.QueryAuth("apiKey", cfg.OddsAPIKey),
	})

	if cfg.BallDontLieAPIKey == "" {
		log.Warn().Msg("BALLDONTLIE_API_KEY not set - games and injuries will be reported as unsupported")
	}
	if cfg.OddsAPIKey == "" {
		log.Warn().Msg("ODDS_API_KEY not set - odds will be reported as unsupported")
	}

	set, err := provider.Select(cfg.DataSourceGames, cfg.DataSourceInjuries, cfg.DataSourceOdds, provider.Sources{
		BallDontLie: provider.NewBallDontLie(bdlClient, cfg.BallDontLieAPIKey != ""),
		Odds:        provider.NewTheOddsAPI(oddsClient, cfg.OddsAPIKey != "", cfg.OddsRegions, cfg.Bookmakers()),
	})
	if err != nil {
		return provider.Set{}, fmt.Errorf("failed to select providers: %w", err)
	}

	log.Info().
		Str("games", set.Games.Name()).
		Str("injuries", set.Injuries.Name()).
		Str("odds", set.Odds.Name()).
		Bool("strict", cfg.StrictProvider).
		Int("rate_limit_calls", cfg.RateLimitCalls).
		Dur("rate_limit_period", cfg.RateLimitPeriod).
		Msg("Providers selected")

	return set, nil
}

// CacheConfig derives Redis connection settings and TTLs from configuration
func CacheConfig(cfg *config.Config) cache.Config {
	return cache.Config{
		Host:      cfg.RedisHost,
		Port:      strconv.Itoa(cfg.RedisPort),
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		TeamsTTL:  cfg.CacheTTLTeams,
		PriorTTL:  cfg.CacheTTLPrior,
		ReportTTL: cfg.ReportCacheTTL,
	}
}

// ReportOptions derives assembly options from configuration
func ReportOptions(cfg *config.Config, save bool) report.Options {
	return report.Options{
		Save:           save,
		StrictProvider: cfg.StrictProvider,
		Season:         cfg.Season,
	}
}

// BatchOptions derives options for scheduled refreshes, which always re-fetch
func BatchOptions(cfg *config.Config) report.Options {
	opts := ReportOptions(cfg, cfg.SaveReports)
	opts.ForceRefresh = true
	return opts
}

// AnalyticsConfig derives metrics settings from configuration
func AnalyticsConfig(cfg *config.Config) analytics.Config {
	return analytics.Config{RecentN: cfg.RecentGames}
}

// ParlayConstraints derives parlay settings from configuration
func ParlayConstraints(cfg *config.Config) parlay.Constraints {
	return parlay.Constraints{
		LegsPerParlay: cfg.ParlayLegs,
		MinGames:      cfg.ParlayMinGames,
	}
}
