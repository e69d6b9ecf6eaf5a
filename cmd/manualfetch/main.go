// Command manualfetch assembles one team's report on demand and prints it
// together with derived metrics and the top parlay suggestions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"nba_analytics/ingestion/internal/analytics"
	"nba_analytics/ingestion/internal/cache"
	"nba_analytics/ingestion/internal/config"
	"nba_analytics/ingestion/internal/models"
	"nba_analytics/ingestion/internal/parlay"
	"nba_analytics/ingestion/internal/pipeline"
	"nba_analytics/ingestion/internal/report"
	"nba_analytics/ingestion/internal/repository"
	"nba_analytics/ingestion/internal/teams"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	team    string
	dryRun  bool
	save    bool
	strict  bool
	force   bool
	history bool
	days    int
	parlays int
}

// output is what gets printed for one assembly
type output struct {
	Report  *models.UnifiedTeamReport `json:"report"`
	Metrics analytics.TeamMetrics     `json:"metrics"`
	Parlays []parlay.ParlaySuggestion `json:"parlays"`
	Legs    []parlay.Leg              `json:"legs"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var opts options
	flag.BoolVar(&opts.dryRun, "dry-run", false, "use an in-memory sink instead of PostgreSQL")
	flag.BoolVar(&opts.save, "save", false, "persist the assembled records")
	flag.BoolVar(&opts.strict, "strict", false, "refuse fallback providers")
	flag.BoolVar(&opts.force, "force", false, "bypass the Redis report cache")
	flag.BoolVar(&opts.history, "history", false, "list saved report snapshots instead of assembling")
	flag.IntVar(&opts.days, "days", 30, "history window in days")
	flag.IntVar(&opts.parlays, "parlays", 5, "number of parlay suggestions to print")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: manualfetch [flags] <team>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.team = flag.Arg(0)

	cfg := config.MustLoad()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		log.Fatal().Err(err).Str("team", opts.team).Msg("manualfetch failed")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	team, err := teams.NewDirectory(nil).Resolve(opts.team)
	if err != nil {
		return err
	}

	var sink repository.Sink
	if opts.dryRun {
		sink = repository.NewMemorySink()
		log.Info().Msg("Dry run - records stay in memory")
	} else {
		db, err := repository.NewDatabase(ctx, repository.Config{
			Host:     cfg.DatabaseHost,
			Port:     strconv.Itoa(cfg.DatabasePort),
			User:     cfg.DatabaseUser,
			Password: cfg.DatabasePassword,
			Database: cfg.DatabaseName,
			SSLMode:  cfg.DatabaseSSLMode,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		if err := db.Health(ctx); err != nil {
			return err
		}
		sink = db.Records
	}

	if opts.history {
		return printHistory(ctx, sink, team, opts.days)
	}

	providers, err := pipeline.Providers(cfg)
	if err != nil {
		return err
	}

	reportOpts := pipeline.ReportOptions(cfg, opts.save)
	reportOpts.StrictProvider = reportOpts.StrictProvider || opts.strict
	reportOpts.ForceRefresh = opts.force

	assemblerOpts := []report.Option{
		report.WithSink(sink),
		report.WithBookmakerPreference(cfg.Bookmakers()),
	}
	redisCache, err := cache.NewRedisCache(pipeline.CacheConfig(cfg))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis - no cached reports or closing lines")
	} else {
		defer redisCache.Close()
		assemblerOpts = append(assemblerOpts,
			report.WithPriorStore(redisCache),
			report.WithReportCache(redisCache),
		)
	}

	rep, err := report.NewAssembler(providers, assemblerOpts...).Assemble(ctx, team, reportOpts)
	if err != nil {
		if rep == nil {
			return err
		}
		// Persistence failed after a complete assembly; still print what we have
		log.Error().Err(err).Msg("Report assembled but not saved")
	}

	teamMetrics := analytics.Compute(rep, pipeline.AnalyticsConfig(cfg))
	suggestions := parlay.Suggest([]parlay.TeamInput{{
		Team:     team,
		Metrics:  teamMetrics,
		Injuries: rep.Injuries,
	}}, pipeline.ParlayConstraints(cfg))

	return printJSON(output{
		Report:  rep,
		Metrics: teamMetrics,
		Parlays: suggestions.Take(opts.parlays),
		Legs:    suggestions.Legs(),
	})
}

func printHistory(ctx context.Context, sink repository.Sink, team models.Team, days int) error {
	to := time.Now().UTC()
	records, err := sink.Query(ctx, repository.KindReport, repository.Filter{
		Team: team.Abbreviation,
		From: to.AddDate(0, 0, -days),
		To:   to,
	})
	if err != nil {
		return err
	}

	log.Info().Int("snapshots", len(records)).Int("days", days).Msg("Report history")

	reports := make([]models.UnifiedTeamReport, 0, len(records))
	for i := range records {
		var r models.UnifiedTeamReport
		if err := records[i].Decode(&r); err != nil {
			return fmt.Errorf("failed to decode snapshot %s: %w", records[i].Key, err)
		}
		reports = append(reports, r)
	}
	return printJSON(reports)
}

func printJSON(v any) error {
	body, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(body))
	return err
}
