// Package report assembles one team's games, injuries and odds into a
// UnifiedTeamReport with per-section provenance.
package report

import (
	"context"
	"fmt"
	"time"

	"nba_analytics/ingestion/internal/errs"
	"nba_analytics/ingestion/internal/metrics"
	"nba_analytics/ingestion/internal/models"
	"nba_analytics/ingestion/internal/provider"
	"nba_analytics/ingestion/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Assembly outcomes recorded in metrics
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFatal    = "fatal"
	OutcomeCached   = "cached"
)

// PriorStore keeps the last good games and odds per team
type PriorStore interface {
	LoadPrior(ctx context.Context, team string) (*models.PriorSnapshot, error)
	SavePrior(ctx context.Context, prior *models.PriorSnapshot) error
}

// ReportCache holds recently assembled reports
type ReportCache interface {
	GetReport(ctx context.Context, team string) (*models.UnifiedTeamReport, error)
	SetReport(ctx context.Context, report *models.UnifiedTeamReport) error
}

// Options control a single assembly
type Options struct {
	Save           bool // persist records and a snapshot through the sink
	StrictProvider bool
	ForceRefresh   bool // bypass the report cache
	Season         int
}

// Option configures an Assembler
type Option func(*Assembler)

// WithSink sets where saved reports go
func WithSink(s repository.Sink) Option {
	return func(a *Assembler) { a.sink = s }
}

// WithPriorStore enables closing-line retention and stale fallback for games
func WithPriorStore(p PriorStore) Option {
	return func(a *Assembler) { a.prior = p }
}

// WithReportCache enables the report cache
func WithReportCache(c ReportCache) Option {
	return func(a *Assembler) { a.cache = c }
}

// WithBookmakerPreference overrides DefaultBookmakerPreference
func WithBookmakerPreference(books []string) Option {
	return func(a *Assembler) {
		if len(books) > 0 {
			a.preference = books
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// Assembler builds team reports from the active provider set
type Assembler struct {
	adapters   provider.Set
	sink       repository.Sink
	prior      PriorStore
	cache      ReportCache
	preference []string
	now        func() time.Time
}

// NewAssembler creates an assembler over one adapter per record kind
func NewAssembler(adapters provider.Set, opts ...Option) *Assembler {
	a := &Assembler{
		adapters:   adapters,
		preference: DefaultBookmakerPreference,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// section is one adapter's result
type section[T any] struct {
	records   []T
	err       error
	fetchedAt time.Time
}

func fetch[T any](ctx context.Context, a provider.Adapter[T], team models.Team, req provider.Request, now func() time.Time) section[T] {
	var s section[T]
	if r := panics.Try(func() {
		s.records, s.err = a.FetchForTeam(ctx, team, req)
	}); r != nil {
		s.records, s.err = nil, fmt.Errorf("%s adapter panicked: %w", a.Name(), r.AsError())
	}
	s.fetchedAt = now().UTC()
	return s
}

// Assemble builds the report for one team. Adapter failures degrade their
// section; only missing core game data (AssemblyFatal) fails the call. When
// Save is set and persistence fails, the report is returned together with a
// PersistenceFailure error.
func (a *Assembler) Assemble(ctx context.Context, team models.Team, opts Options) (*models.UnifiedTeamReport, error) {
	start := time.Now()
	logger := log.With().Str("team", team.Abbreviation).Logger()

	if !opts.ForceRefresh {
		if cached := a.cached(ctx, team, opts); cached != nil {
			metrics.RecordAssembly(OutcomeCached, time.Since(start).Seconds())
			logger.Debug().Msg("Serving cached report")
			if opts.Save {
				if err := a.persist(ctx, cached); err != nil {
					return cached, err
				}
			}
			return cached, nil
		}
	}

	req := provider.Request{Season: opts.Season, Strict: opts.StrictProvider}

	var (
		games    section[models.GameRecord]
		injuries section[models.InjuryRecord]
		odds     section[models.OddsLine]
		prior    *models.PriorSnapshot
	)

	var wg conc.WaitGroup
	wg.Go(func() { games = fetch(ctx, a.adapters.Games, team, req, a.now) })
	wg.Go(func() { injuries = fetch(ctx, a.adapters.Injuries, team, req, a.now) })
	wg.Go(func() { odds = fetch(ctx, a.adapters.Odds, team, req, a.now) })
	if a.prior != nil {
		wg.Go(func() {
			p, err := a.prior.LoadPrior(ctx, team.Abbreviation)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to load prior data")
				return
			}
			prior = p
		})
	}
	wg.Wait()

	report, lines, err := a.build(team, opts, games, injuries, odds, prior)
	if err != nil {
		metrics.RecordAssembly(OutcomeFatal, time.Since(start).Seconds())
		metrics.RecordError("assembler", errs.Kind(err))
		logger.Error().Err(err).Msg("Report assembly failed")
		return nil, err
	}

	outcome := OutcomeSuccess
	if report.Degraded() {
		outcome = OutcomeDegraded
	}
	metrics.RecordAssembly(outcome, time.Since(start).Seconds())

	a.savePrior(ctx, report, lines, games.err == nil, odds.err == nil)

	if a.cache != nil {
		if err := a.cache.SetReport(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache report")
		}
	}

	logger.Info().
		Int("games", len(report.Games)).
		Int("lines", len(report.Lines)).
		Int("future_lines", len(report.FutureLines)).
		Int("injuries", len(report.Injuries)).
		Int("line_movements", len(report.Movements)).
		Interface("degraded", report.DegradedSections()).
		Dur("duration", time.Since(start)).
		Msg("Report assembled")

	if opts.Save {
		if err := a.persist(ctx, report); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (a *Assembler) cached(ctx context.Context, team models.Team, opts Options) *models.UnifiedTeamReport {
	if a.cache == nil {
		return nil
	}
	cached, err := a.cache.GetReport(ctx, team.Abbreviation)
	if err != nil {
		log.Warn().Err(err).Str("team", team.Abbreviation).Msg("Failed to read report cache")
		return nil
	}
	if cached == nil || cached.Season != opts.Season || cached.Strict != opts.StrictProvider {
		return nil
	}
	return cached
}

func (a *Assembler) build(
	team models.Team,
	opts Options,
	games section[models.GameRecord],
	injuries section[models.InjuryRecord],
	odds section[models.OddsLine],
	prior *models.PriorSnapshot,
) (*models.UnifiedTeamReport, []models.OddsLine, error) {
	now := a.now().UTC()
	report := models.NewUnifiedTeamReport(team, opts.Season)
	report.Strict = opts.StrictProvider
	report.GeneratedAt = now

	// Games are the core identity data; without them, fresh or prior, there is no report
	gamesProv := models.Provenance{Provider: a.adapters.Games.Name(), FetchedAt: games.fetchedAt}
	switch {
	case games.err == nil:
		report.Games = append(report.Games, games.records...)
	case prior != nil && len(prior.Games) > 0:
		report.Games = append(report.Games, prior.Games...)
		gamesProv.Degraded = true
		gamesProv.Stale = true
		gamesProv.Error = games.err.Error()
		gamesProv.FetchedAt = prior.GamesFetchedAt()
		metrics.RecordSectionDegraded(string(models.SectionGames), errs.Kind(games.err))
	default:
		return nil, nil, errs.AssemblyFatal(team.Abbreviation, games.err)
	}
	models.SortGames(report.Games)
	report.Provenance[models.SectionGames] = gamesProv

	injProv := models.Provenance{Provider: a.adapters.Injuries.Name(), FetchedAt: injuries.fetchedAt}
	switch {
	case injuries.err == nil:
		report.Injuries = append(report.Injuries, models.CurrentInjuries(injuries.records)...)
	case errs.IsUnsupported(injuries.err):
		markOmitted(&injProv, injuries.err)
	default:
		markDegraded(&injProv, models.SectionInjuries, injuries.err)
	}
	report.Provenance[models.SectionInjuries] = injProv

	oddsProv := models.Provenance{Provider: a.adapters.Odds.Name(), FetchedAt: odds.fetchedAt}
	var lines []models.OddsLine
	switch {
	case odds.err == nil:
		var priorLines []models.OddsLine
		if prior != nil {
			priorLines = prior.Lines
		}
		lines, report.Movements = mergeLines(odds.records, priorLines, now, true)
		for range report.Movements {
			metrics.RecordLineMovement()
		}
	case errs.IsUnsupported(odds.err):
		markOmitted(&oddsProv, odds.err)
	default:
		markDegraded(&oddsProv, models.SectionOdds, odds.err)
		if prior != nil && len(prior.Lines) > 0 {
			lines, _ = mergeLines(nil, prior.Lines, now, false)
			oddsProv.Stale = true
		}
	}
	report.Provenance[models.SectionOdds] = oddsProv

	report.Lines, report.FutureLines = joinLines(report.Games, lines, a.preference)
	return report, lines, nil
}

func markOmitted(p *models.Provenance, err error) {
	p.Omitted = true
	p.Degraded = true
	p.Error = err.Error()
}

func markDegraded(p *models.Provenance, s models.Section, err error) {
	p.Degraded = true
	p.Error = err.Error()
	metrics.RecordSectionDegraded(string(s), errs.Kind(err))
}

// savePrior keeps every bookmaker's line, not just the ones joined to games.
// Nothing is written when neither games nor odds were fetched.
func (a *Assembler) savePrior(ctx context.Context, report *models.UnifiedTeamReport, lines []models.OddsLine, gamesOK, oddsOK bool) {
	if a.prior == nil || (!gamesOK && !oddsOK) {
		return
	}
	if report.Provenance[models.SectionGames].Omitted || report.Provenance[models.SectionOdds].Omitted {
		return
	}

	// Stale games keep their original fetch time
	snapshot := &models.PriorSnapshot{
		Team:         report.Team.Abbreviation,
		Games:        report.Games,
		GamesFetched: report.Provenance[models.SectionGames].FetchedAt,
		Lines:        lines,
		SavedAt:      report.GeneratedAt,
	}
	if err := a.prior.SavePrior(ctx, snapshot); err != nil {
		log.Warn().Err(err).Str("team", report.Team.Abbreviation).Msg("Failed to save prior data")
	}
}

func (a *Assembler) persist(ctx context.Context, report *models.UnifiedTeamReport) error {
	if a.sink == nil {
		return errs.Persistence(fmt.Errorf("no sink configured"))
	}

	records, err := repository.ReportRecords(report)
	if err != nil {
		return errs.Persistence(err)
	}

	changed := 0
	for _, rec := range records {
		ok, err := a.sink.Upsert(ctx, rec)
		if err != nil {
			metrics.RecordError("sink", errs.Kind(errs.Persistence(err)))
			return errs.Persistence(err)
		}
		if ok {
			changed++
		}
	}

	log.Debug().
		Str("team", report.Team.Abbreviation).
		Int("records", len(records)).
		Int("changed", changed).
		Msg("Report persisted")
	return nil
}
