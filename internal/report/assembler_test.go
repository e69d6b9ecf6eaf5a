package report

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"nba_analytics/ingestion/internal/analytics"
	"nba_analytics/ingestion/internal/errs"
	"nba_analytics/ingestion/internal/models"
	"nba_analytics/ingestion/internal/provider"
	"nba_analytics/ingestion/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bulls = models.Team{ID: 5, Abbreviation: "CHI", FullName: "Chicago Bulls", Name: "Bulls", Slug: "bulls"}
	now   = time.Date(2025, 1, 12, 18, 0, 0, 0, time.UTC)
)

type fakeAdapter[T any] struct {
	name    string
	mu      sync.Mutex
	calls   int
	records []T
	err     error
	panics  bool
}

func (f *fakeAdapter[T]) Name() string { return f.name }

func (f *fakeAdapter[T]) FetchForTeam(ctx context.Context, team models.Team, req provider.Request) ([]T, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]T(nil), f.records...), nil
}

type memPrior struct {
	mu    sync.Mutex
	saved map[string]*models.PriorSnapshot
}

func (m *memPrior) LoadPrior(ctx context.Context, team string) (*models.PriorSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[team], nil
}

func (m *memPrior) SavePrior(ctx context.Context, p *models.PriorSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]*models.PriorSnapshot{}
	}
	m.saved[p.Team] = p
	return nil
}

type memCache struct {
	mu      sync.Mutex
	reports map[string]*models.UnifiedTeamReport
}

func (m *memCache) GetReport(ctx context.Context, team string) (*models.UnifiedTeamReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports[team], nil
}

func (m *memCache) SetReport(ctx context.Context, r *models.UnifiedTeamReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reports == nil {
		m.reports = map[string]*models.UnifiedTeamReport{}
	}
	m.reports[r.Team.Abbreviation] = r
	return nil
}

type failingSink struct{}

func (failingSink) Upsert(ctx context.Context, rec repository.Record) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingSink) Query(ctx context.Context, kind repository.Kind, f repository.Filter) ([]repository.Record, error) {
	return nil, nil
}

type fixture struct {
	games    *fakeAdapter[models.GameRecord]
	injuries *fakeAdapter[models.InjuryRecord]
	odds     *fakeAdapter[models.OddsLine]
}

func newFixture() *fixture {
	tipoff := time.Date(2025, 1, 11, 1, 0, 0, 0, time.UTC)
	upcoming := time.Date(2025, 1, 14, 0, 30, 0, 0, time.UTC)

	return &fixture{
		games: &fakeAdapter[models.GameRecord]{name: "balldontlie", records: []models.GameRecord{
			{GameID: 101, Date: tipoff, HomeTeam: "CHI", AwayTeam: "NYK", Status: models.GameFinal,
				HomeScore: sql.NullInt32{Int32: 110, Valid: true}, AwayScore: sql.NullInt32{Int32: 100, Valid: true}},
			{GameID: 102, Date: upcoming, HomeTeam: "BOS", AwayTeam: "CHI", Status: models.GameScheduled},
		}},
		injuries: &fakeAdapter[models.InjuryRecord]{name: "balldontlie", records: []models.InjuryRecord{
			{PlayerID: 7, PlayerName: "Zach LaVine", TeamAbbr: "CHI", Status: models.InjuryOut, ObservedAt: now},
		}},
		odds: &fakeAdapter[models.OddsLine]{name: "the_odds_api", records: []models.OddsLine{
			oddsLine("e2", "draftkings", "BOS", "CHI", upcoming, -7.5, 228.5),
			oddsLine("e2", "fanduel", "BOS", "CHI", upcoming, -8, 229),
			oddsLine("e3", "fanduel", "CHI", "DET", upcoming.Add(72*time.Hour), -2, 221),
		}},
	}
}

func oddsLine(event, book, home, away string, commence time.Time, spread, total float64) models.OddsLine {
	return models.OddsLine{
		MarketID:     event + ":" + book + ":" + models.MarketFullGame,
		EventID:      event,
		Bookmaker:    book,
		MarketType:   models.MarketFullGame,
		HomeTeam:     home,
		AwayTeam:     away,
		CommenceTime: commence,
		HomeSpread:   sql.NullFloat64{Float64: spread, Valid: true},
		Total:        sql.NullFloat64{Float64: total, Valid: true},
		FetchedAt:    now,
	}
}

func (f *fixture) set() provider.Set {
	return provider.Set{Games: f.games, Injuries: f.injuries, Odds: f.odds}
}

func (f *fixture) assembler(opts ...Option) *Assembler {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewAssembler(f.set(), opts...)
}

func TestAssemble_MergesSections(t *testing.T) {
	f := newFixture()

	report, err := f.assembler().Assemble(context.Background(), bulls, Options{Season: 2024})
	require.NoError(t, err)

	require.Len(t, report.Games, 2)
	assert.Equal(t, 102, report.Games[0].GameID, "most recent first")
	assert.False(t, report.Degraded())

	line, ok := report.LineFor(102)
	require.True(t, ok)
	assert.Equal(t, "fanduel", line.Bookmaker, "fanduel ranks above draftkings")
	assert.Equal(t, int64(102), line.GameID.Int64)

	_, ok = report.LineFor(101)
	assert.False(t, ok, "the finished game has no line")

	require.Len(t, report.FutureLines, 1)
	assert.Equal(t, "e3:fanduel:full_game", report.FutureLines[0].MarketID)

	require.Len(t, report.Injuries, 1)
	for _, s := range models.Sections {
		assert.Contains(t, report.Provenance, s)
	}
	assert.Equal(t, "the_odds_api", report.Provenance[models.SectionOdds].Provider)
}

func TestAssemble_Idempotent(t *testing.T) {
	f := newFixture()
	a := f.assembler()

	first, err := a.Assemble(context.Background(), bulls, Options{ForceRefresh: true})
	require.NoError(t, err)

	// Reverse provider order; the merge must not care
	for i, j := 0, len(f.odds.records)-1; i < j; i, j = i+1, j-1 {
		f.odds.records[i], f.odds.records[j] = f.odds.records[j], f.odds.records[i]
	}
	second, err := a.Assemble(context.Background(), bulls, Options{ForceRefresh: true})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAssemble_InjuriesFailureDegrades(t *testing.T) {
	f := newFixture()
	f.injuries.err = errs.Unavailable("balldontlie", 4, errors.New("503"))

	report, err := f.assembler().Assemble(context.Background(), bulls, Options{})
	require.NoError(t, err)

	prov := report.Provenance[models.SectionInjuries]
	assert.True(t, prov.Degraded)
	assert.False(t, prov.Omitted)
	assert.NotEmpty(t, prov.Error)
	assert.Empty(t, report.Injuries)
	assert.NotNil(t, report.Injuries, "degraded sections are empty, not null")
	assert.Equal(t, []models.Section{models.SectionInjuries}, report.DegradedSections())
}

func TestAssemble_GamesFailureWithoutPriorIsFatal(t *testing.T) {
	f := newFixture()
	f.games.err = errs.Rejected("balldontlie", 401, []byte("unauthorized"))

	report, err := f.assembler(WithPriorStore(&memPrior{})).Assemble(context.Background(), bulls, Options{})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, "assembly_fatal", errs.Kind(err))
}

func TestAssemble_GamesFailureServesStalePrior(t *testing.T) {
	f := newFixture()
	prior := &memPrior{}
	a := f.assembler(WithPriorStore(prior))

	_, err := a.Assemble(context.Background(), bulls, Options{})
	require.NoError(t, err)
	require.Contains(t, prior.saved, "CHI")
	assert.Len(t, prior.saved["CHI"].Lines, 3, "every bookmaker's line is retained")

	f.games.err = errs.Unavailable("balldontlie", 4, errors.New("timeout"))
	report, err := a.Assemble(context.Background(), bulls, Options{ForceRefresh: true})
	require.NoError(t, err)

	prov := report.Provenance[models.SectionGames]
	assert.True(t, prov.Stale)
	assert.True(t, prov.Degraded)
	assert.Len(t, report.Games, 2)
}

func TestAssemble_StrictUnsupportedIsOmitted(t *testing.T) {
	f := newFixture()
	legacy := provider.NewLegacy[models.InjuryRecord]("pdf", f.injuries)
	a := NewAssembler(provider.Set{Games: f.games, Injuries: legacy, Odds: f.odds}, WithClock(func() time.Time { return now }))

	report, err := a.Assemble(context.Background(), bulls, Options{StrictProvider: true})
	require.NoError(t, err)

	prov := report.Provenance[models.SectionInjuries]
	assert.True(t, prov.Omitted)
	assert.True(t, prov.Degraded)
	assert.Empty(t, report.Injuries)
	assert.Zero(t, f.injuries.calls, "strict mode never falls back")
	assert.False(t, report.Provenance[models.SectionGames].Degraded)
}

func TestAssemble_FrozenPriorLinesWin(t *testing.T) {
	f := newFixture()
	tipoff := f.games.records[0].Date
	closing := oddsLine("e1", "fanduel", "CHI", "NYK", tipoff, -3.5, 215.5)
	pregame := oddsLine("e2", "fanduel", "BOS", "CHI", f.games.records[1].Date, -6, 226)

	prior := &memPrior{saved: map[string]*models.PriorSnapshot{
		"CHI": {Team: "CHI", Lines: []models.OddsLine{closing, pregame}, SavedAt: now.Add(-time.Hour)},
	}}
	// A late copy of the closed market must not replace the closing line
	late := closing
	late.HomeSpread.Float64 = -9
	f.odds.records = append(f.odds.records, late)

	report, err := f.assembler(WithPriorStore(prior)).Assemble(context.Background(), bulls, Options{})
	require.NoError(t, err)

	line, ok := report.LineFor(101)
	require.True(t, ok, "closing line comes from prior data")
	assert.Equal(t, -3.5, line.HomeSpread.Float64)

	require.Len(t, report.Movements, 1)
	assert.Equal(t, "e2:fanduel:full_game", report.Movements[0].MarketID)
	assert.Equal(t, 2.0, report.Movements[0].Magnitude)
}

func TestAssemble_OddsFailureKeepsPriorLines(t *testing.T) {
	f := newFixture()
	closing := oddsLine("e1", "fanduel", "CHI", "NYK", f.games.records[0].Date, -3.5, 215.5)
	prior := &memPrior{saved: map[string]*models.PriorSnapshot{
		"CHI": {Team: "CHI", Lines: []models.OddsLine{closing}, SavedAt: now.Add(-time.Hour)},
	}}
	f.odds.err = errs.Unavailable("the_odds_api", 4, errors.New("timeout"))

	report, err := f.assembler(WithPriorStore(prior)).Assemble(context.Background(), bulls, Options{})
	require.NoError(t, err)

	prov := report.Provenance[models.SectionOdds]
	assert.True(t, prov.Degraded)
	assert.True(t, prov.Stale)
	_, ok := report.LineFor(101)
	assert.True(t, ok)
}

func TestAssemble_AdapterPanicDegrades(t *testing.T) {
	f := newFixture()
	f.odds.panics = true

	report, err := f.assembler().Assemble(context.Background(), bulls, Options{})
	require.NoError(t, err)
	assert.True(t, report.Provenance[models.SectionOdds].Degraded)
	assert.Contains(t, report.Provenance[models.SectionOdds].Error, "panicked")
}

func TestAssemble_SaveWritesRecords(t *testing.T) {
	f := newFixture()
	sink := repository.NewMemorySink()

	_, err := f.assembler(WithSink(sink)).Assemble(context.Background(), bulls, Options{Save: true})
	require.NoError(t, err)

	snapshots, err := sink.Query(context.Background(), repository.KindReport, repository.Filter{Team: "CHI"})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	games, err := sink.Query(context.Background(), repository.KindGame, repository.Filter{Team: "NYK"})
	require.NoError(t, err)
	assert.Len(t, games, 1)

	// Unchanged input adds nothing
	before := sink.Len()
	_, err = f.assembler(WithSink(sink)).Assemble(context.Background(), bulls, Options{Save: true})
	require.NoError(t, err)
	assert.Equal(t, before, sink.Len())
}

func TestAssemble_PersistenceFailureKeepsReport(t *testing.T) {
	f := newFixture()

	report, err := f.assembler(WithSink(failingSink{})).Assemble(context.Background(), bulls, Options{Save: true})
	require.Error(t, err)
	assert.True(t, errs.IsPersistence(err))
	require.NotNil(t, report)
	assert.Len(t, report.Games, 2)
}

func TestAssemble_ReportCache(t *testing.T) {
	f := newFixture()
	a := f.assembler(WithReportCache(&memCache{}))

	_, err := a.Assemble(context.Background(), bulls, Options{Season: 2024})
	require.NoError(t, err)
	_, err = a.Assemble(context.Background(), bulls, Options{Season: 2024})
	require.NoError(t, err)
	assert.Equal(t, 1, f.games.calls, "second call is served from cache")

	_, err = a.Assemble(context.Background(), bulls, Options{Season: 2024, ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, f.games.calls)

	_, err = a.Assemble(context.Background(), bulls, Options{Season: 2023})
	require.NoError(t, err)
	assert.Equal(t, 3, f.games.calls, "a different season misses the cache")
}

func TestAssemble_ReportCacheKeepsStrictModeApart(t *testing.T) {
	f := newFixture()
	legacy := provider.NewLegacy[models.InjuryRecord]("pdf", f.injuries)
	a := NewAssembler(provider.Set{Games: f.games, Injuries: legacy, Odds: f.odds},
		WithClock(func() time.Time { return now }),
		WithReportCache(&memCache{}),
	)

	loose, err := a.Assemble(context.Background(), bulls, Options{Season: 2024})
	require.NoError(t, err)
	assert.Equal(t, "pdf->balldontlie", loose.Provenance[models.SectionInjuries].Provider)
	require.Len(t, loose.Injuries, 1)

	strict, err := a.Assemble(context.Background(), bulls, Options{Season: 2024, StrictProvider: true})
	require.NoError(t, err)
	assert.Equal(t, 2, f.games.calls, "a strict request never reuses a fallback-sourced report")
	assert.True(t, strict.Strict)
	assert.True(t, strict.Provenance[models.SectionInjuries].Omitted)
	assert.Empty(t, strict.Injuries)
	assert.Equal(t, 1, f.injuries.calls)
}

func TestAssemble_GamesUnsupportedIsFatal(t *testing.T) {
	f := newFixture()
	f.games.err = errs.Unsupported("balldontlie", "no API key configured")

	report, err := f.assembler().Assemble(context.Background(), bulls, Options{})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errs.IsFatal(err))
}

func TestAssemble_InPlayLinesNeverBecomeClosingLines(t *testing.T) {
	f := newFixture()
	prior := &memPrior{}
	a := f.assembler(WithPriorStore(prior))

	// Game 101 already tipped off; the feed still prices it in play
	inPlay := oddsLine("e1", "fanduel", "CHI", "NYK", f.games.records[0].Date, 14.5, 200.5)
	f.odds.records = append(f.odds.records, inPlay)

	report, err := a.Assemble(context.Background(), bulls, Options{})
	require.NoError(t, err)
	_, ok := report.LineFor(101)
	assert.False(t, ok)
	for _, l := range prior.saved["CHI"].Lines {
		assert.NotEqual(t, inPlay.MarketID, l.MarketID, "in-play price must not be retained")
	}

	// Later the feed drops the event; nothing grades the finished game
	f.odds.records = f.odds.records[:len(f.odds.records)-1]
	report, err = a.Assemble(context.Background(), bulls, Options{ForceRefresh: true})
	require.NoError(t, err)

	m := analytics.Compute(report, analytics.Config{RecentN: 10})
	for _, g := range m.Games {
		if g.GameID == 101 {
			assert.Nil(t, g.ATS)
			assert.Nil(t, g.OU)
		}
	}
}

func TestAssemble_StaleGamesKeepFetchTime(t *testing.T) {
	f := newFixture()
	fetchedAt := now.Add(-48 * time.Hour)
	prior := &memPrior{saved: map[string]*models.PriorSnapshot{
		"CHI": {Team: "CHI", Games: f.games.records, GamesFetched: fetchedAt, SavedAt: fetchedAt},
	}}
	f.games.err = errs.Unavailable("balldontlie", 4, errors.New("timeout"))
	a := f.assembler(WithPriorStore(prior))

	report, err := a.Assemble(context.Background(), bulls, Options{})
	require.NoError(t, err)
	assert.Equal(t, fetchedAt, report.Provenance[models.SectionGames].FetchedAt)

	// Fresh odds rewrite the snapshot, but the games keep their age
	saved := prior.saved["CHI"]
	assert.Equal(t, now, saved.SavedAt)
	assert.Equal(t, fetchedAt, saved.GamesFetchedAt())

	report, err = a.Assemble(context.Background(), bulls, Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, fetchedAt, report.Provenance[models.SectionGames].FetchedAt)
}
