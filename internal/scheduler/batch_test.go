package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nba_analytics/ingestion/internal/errs"
	"nba_analytics/ingestion/internal/models"
	"nba_analytics/ingestion/internal/provider"
	"nba_analytics/ingestion/internal/report"
	"nba_analytics/ingestion/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGames struct{ fail map[string]error }

func (f *fakeGames) Name() string { return "balldontlie" }

func (f *fakeGames) FetchForTeam(ctx context.Context, team models.Team, req provider.Request) ([]models.GameRecord, error) {
	if err := f.fail[team.Abbreviation]; err != nil {
		return nil, err
	}
	return []models.GameRecord{{
		GameID: team.ID, HomeTeam: team.Abbreviation, AwayTeam: "OPP", Status: models.GameFinal,
		Date:      time.Date(2025, 1, 10, 1, 0, 0, 0, time.UTC),
		HomeScore: sql.NullInt32{Int32: 100, Valid: true}, AwayScore: sql.NullInt32{Int32: 90, Valid: true},
	}}, nil
}

type fakeInjuries struct{}

func (fakeInjuries) Name() string { return "balldontlie" }

func (fakeInjuries) FetchForTeam(ctx context.Context, team models.Team, req provider.Request) ([]models.InjuryRecord, error) {
	return []models.InjuryRecord{}, nil
}

type fakeOdds struct{ fail map[string]error }

func (f *fakeOdds) Name() string { return "the_odds_api" }

func (f *fakeOdds) FetchForTeam(ctx context.Context, team models.Team, req provider.Request) ([]models.OddsLine, error) {
	if err := f.fail[team.Abbreviation]; err != nil {
		return nil, err
	}
	return []models.OddsLine{}, nil
}

func newAssembler(gamesFail, oddsFail map[string]error) *report.Assembler {
	return report.NewAssembler(provider.Set{
		Games:    &fakeGames{fail: gamesFail},
		Injuries: fakeInjuries{},
		Odds:     &fakeOdds{fail: oddsFail},
	})
}

func TestRefreshAll_OneTeamDegraded(t *testing.T) {
	timeout := errs.Unavailable("the_odds_api", 4, context.DeadlineExceeded)
	sink := repository.NewMemorySink()
	b := NewBatch(newAssembler(nil, map[string]error{"LAL": timeout}), sink, 4, report.Options{Season: 2024})

	result := b.RefreshAll(context.Background(), models.NBATeams)

	require.Len(t, result.Teams, 30)
	assert.Equal(t, 29, result.Counts[StatusSuccess])
	assert.Equal(t, 1, result.Counts[StatusDegraded])
	assert.Equal(t, StatusDegraded, result.Teams["LAL"].Status)
	assert.Equal(t, []models.Section{models.SectionOdds}, result.Teams["LAL"].Degraded)
	assert.Equal(t, RunSuccess, result.Status)
	assert.NotEmpty(t, result.RunID)

	runs, err := sink.Query(context.Background(), repository.KindBatchRun, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].Key)

	require.NotNil(t, b.Last())
	assert.Equal(t, result.RunID, b.Last().RunID)
}

func TestRefreshAll_FatalTeamDoesNotStopBatch(t *testing.T) {
	down := errs.Rejected("balldontlie", 500, nil)
	b := NewBatch(newAssembler(map[string]error{"BOS": down}, nil), nil, 3, report.Options{})

	result := b.RefreshAll(context.Background(), models.NBATeams)

	assert.Equal(t, 29, result.Counts[StatusSuccess])
	assert.Equal(t, 1, result.Counts[StatusFailed])
	assert.Equal(t, "assembly_fatal", result.Teams["BOS"].ErrorKind)
	assert.NotEmpty(t, result.Teams["BOS"].Error)
	assert.Equal(t, []string{"BOS"}, result.Failed())
	assert.Equal(t, RunPartial, result.Status)
}

type failingSink struct{}

func (failingSink) Upsert(ctx context.Context, rec repository.Record) (bool, error) {
	return false, errors.New("disk full")
}

func (failingSink) Query(ctx context.Context, kind repository.Kind, f repository.Filter) ([]repository.Record, error) {
	return nil, nil
}

func TestRefreshAll_PersistenceFailureMarksTeamFailed(t *testing.T) {
	a := report.NewAssembler(provider.Set{Games: &fakeGames{}, Injuries: fakeInjuries{}, Odds: &fakeOdds{}},
		report.WithSink(failingSink{}))
	b := NewBatch(a, failingSink{}, 2, report.Options{Save: true})

	result := b.RefreshAll(context.Background(), models.NBATeams[:3])

	assert.Equal(t, 3, result.Counts[StatusFailed])
	assert.Equal(t, "persistence_failure", result.Teams["ATL"].ErrorKind)
}

type cancellingAssembler struct {
	cancel    context.CancelFunc
	calls     atomic.Int32
	mu        sync.Mutex
	ctxErrors []error
}

func (c *cancellingAssembler) Assemble(ctx context.Context, team models.Team, opts report.Options) (*models.UnifiedTeamReport, error) {
	c.calls.Add(1)
	c.cancel()
	c.mu.Lock()
	c.ctxErrors = append(c.ctxErrors, ctx.Err())
	c.mu.Unlock()
	return models.NewUnifiedTeamReport(team, opts.Season), nil
}

func TestRefreshAll_CancellationSkipsUnstartedTeams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &cancellingAssembler{cancel: cancel}
	b := NewBatch(a, nil, 1, report.Options{})

	result := b.RefreshAll(ctx, models.NBATeams)

	require.Len(t, result.Teams, 30, "every team is accounted for")
	assert.Equal(t, 1, result.Counts[StatusSuccess])
	assert.Equal(t, 29, result.Counts[StatusSkipped])
	assert.Equal(t, RunCancelled, result.Status)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, []error{nil}, a.ctxErrors, "a started team runs to completion")
}

func TestRefreshAll_Empty(t *testing.T) {
	b := NewBatch(newAssembler(nil, nil), nil, 0, report.Options{})
	result := b.RefreshAll(context.Background(), nil)
	assert.Empty(t, result.Teams)
	assert.Equal(t, RunSuccess, result.Status)
}
