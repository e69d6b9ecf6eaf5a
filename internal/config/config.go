package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Data source names accepted for DATA_SOURCE_* variables
const (
	SourceBallDontLie = "bdl"
	SourceTheOddsAPI  = "the_odds_api"
	SourceBBRef       = "br"
	SourcePDF         = "pdf"
	SourceScrape      = "scrape"
)

// Config holds all application configuration
type Config struct {
	// BallDontLie API (games, injuries, teams)
	BallDontLieAPIKey  string `envconfig:"BALLDONTLIE_API_KEY"`
	BallDontLieBaseURL string `envconfig:"BALLDONTLIE_BASE_URL" default:"https://api.balldontlie.io" validate:"url"`

	// The Odds API
	OddsAPIKey     string `envconfig:"ODDS_API_KEY"`
	OddsAPIBaseURL string `envconfig:"ODDS_API_BASE_URL" default:"https://api.the-odds-api.com" validate:"url"`
	OddsRegions    string `envconfig:"ODDS_REGIONS" default:"us"`
	OddsBookmakers string `envconfig:"ODDS_BOOKMAKERS" default:"draftkings,fanduel,betmgm,caesars,pointsbetus,betrivers"`

	// Provider selection
	DataSourceGames    string `envconfig:"DATA_SOURCE_GAMES" default:"bdl" validate:"oneof=bdl br scrape"`
	DataSourceInjuries string `envconfig:"DATA_SOURCE_INJURIES" default:"bdl" validate:"oneof=bdl pdf scrape"`
	DataSourceOdds     string `envconfig:"DATA_SOURCE_ODDS" default:"the_odds_api" validate:"oneof=the_odds_api scrape"`
	StrictProvider     bool   `envconfig:"STRICT_PROVIDER" default:"false"`
	Season             int    `envconfig:"NBA_SEASON" default:"2025" validate:"gte=1946"`

	// Fetch client
	RateLimitCalls  int           `envconfig:"RATE_LIMIT_CALLS" default:"5" validate:"gt=0"`
	RateLimitPeriod time.Duration `envconfig:"RATE_LIMIT_PERIOD" default:"60s" validate:"gt=0"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3" validate:"gte=0,lte=10"`
	BackoffBase     time.Duration `envconfig:"BACKOFF_BASE" default:"1s" validate:"gt=0"`
	BackoffCap      time.Duration `envconfig:"BACKOFF_CAP" default:"30s" validate:"gtfield=BackoffBase"`
	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s" validate:"gt=0"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"nba_analytics"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"nba_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Scheduler
	EnableScheduler       bool   `envconfig:"ENABLE_SCHEDULER" default:"true"`
	InitialRefreshEnabled bool   `envconfig:"INITIAL_REFRESH_ENABLED" default:"false"`
	RefreshCron           string `envconfig:"REFRESH_CRON" default:"0 2 * * *"`
	BatchWorkers          int    `envconfig:"BATCH_WORKERS" default:"4" validate:"gt=0,lte=30"`
	SaveReports           bool   `envconfig:"SAVE_REPORTS" default:"true"`

	// Analytics
	RecentGames    int `envconfig:"RECENT_GAMES" default:"10" validate:"gt=0"`
	ParlayMinGames int `envconfig:"PARLAY_MIN_GAMES" default:"5" validate:"gte=0"`
	ParlayLegs     int `envconfig:"PARLAY_LEGS" default:"2" validate:"gte=1,lte=6"`

	// Caching TTL
	CacheTTLTeams  time.Duration `envconfig:"CACHE_TTL_TEAMS" default:"24h"`
	CacheTTLPrior  time.Duration `envconfig:"CACHE_TTL_PRIOR" default:"720h"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"10m"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

var validate = validator.New()

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.DatabasePassword == "" && c.IsProduction() {
		return fmt.Errorf("DATABASE_PASSWORD is required in production")
	}

	if c.StrictProvider && c.DataSourceGames != SourceBallDontLie {
		return fmt.Errorf("DATA_SOURCE_GAMES=%s has no strict-compatible source; games are required", c.DataSourceGames)
	}

	return nil
}

// Bookmakers returns the preferred bookmaker keys in priority order
func (c *Config) Bookmakers() []string {
	var out []string
	for _, b := range strings.Split(c.OddsBookmakers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseName,
		c.DatabaseSSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
