package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"nba_analytics/ingestion/internal/errs"
	"nba_analytics/ingestion/internal/metrics"
	"nba_analytics/ingestion/internal/models"
	"nba_analytics/ingestion/internal/report"
	"nba_analytics/ingestion/internal/repository"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

// TeamStatus is the outcome of one team in a batch
type TeamStatus string

const (
	StatusSuccess  TeamStatus = "success"
	StatusDegraded TeamStatus = "degraded"
	StatusFailed   TeamStatus = "failed"
	StatusSkipped  TeamStatus = "skipped" // not started before cancellation
)

// Batch run statuses
const (
	RunSuccess   = "success"
	RunPartial   = "partial"
	RunCancelled = "cancelled"
)

// Assembler is the slice of report.Assembler the batch needs
type Assembler interface {
	Assemble(ctx context.Context, team models.Team, opts report.Options) (*models.UnifiedTeamReport, error)
}

// TeamResult is one team's row in a batch result
type TeamResult struct {
	Team       string           `json:"team"`
	Status     TeamStatus       `json:"status"`
	Error      string           `json:"error,omitempty"`
	ErrorKind  string           `json:"error_kind,omitempty"`
	Degraded   []models.Section `json:"degraded,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// BatchResult summarizes one refresh of many teams
type BatchResult struct {
	RunID      string                `json:"run_id"`
	Status     string                `json:"status"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Teams      map[string]TeamResult `json:"teams"`
	Counts     map[TeamStatus]int    `json:"counts"`
}

// Failed lists failed team abbreviations in order
func (r *BatchResult) Failed() []string {
	var out []string
	for abbr, t := range r.Teams {
		if t.Status == StatusFailed {
			out = append(out, abbr)
		}
	}
	sort.Strings(out)
	return out
}

// Batch refreshes teams through a bounded worker pool
type Batch struct {
	assembler Assembler
	sink      repository.Sink
	workers   int
	opts      report.Options
	now       func() time.Time

	mu   sync.RWMutex
	last *BatchResult
}

// NewBatch creates a batch runner. sink may be nil, in which case run
// summaries are only logged.
func NewBatch(assembler Assembler, sink repository.Sink, workers int, opts report.Options) *Batch {
	if workers <= 0 {
		workers = 4
	}
	return &Batch{
		assembler: assembler,
		sink:      sink,
		workers:   workers,
		opts:      opts,
		now:       time.Now,
	}
}

// Last returns the most recent finished batch, or nil
func (b *Batch) Last() *BatchResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

// RefreshAll assembles every team. Cancelling ctx stops new teams from
// starting; teams already running finish. One team's failure never stops the others.
func (b *Batch) RefreshAll(ctx context.Context, teams []models.Team) BatchResult {
	result := BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: b.now().UTC(),
		Teams:     make(map[string]TeamResult, len(teams)),
		Counts:    make(map[TeamStatus]int, 4),
	}
	logger := log.With().Str("run_id", result.RunID).Logger()
	logger.Info().Int("teams", len(teams)).Int("workers", b.workers).Msg("Batch refresh starting")

	rows := make(chan TeamResult, len(teams))
	var started atomic.Int32

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		// Every team is still accounted for
		logger.Error().Err(err).Msg("Failed to create worker pool")
		for _, t := range teams {
			rows <- TeamResult{Team: t.Abbreviation, Status: StatusFailed, Error: fmt.Sprintf("create worker pool: %v", err)}
		}
	} else {
		defer pool.Release()

		var workers sync.WaitGroup
		for _, team := range teams {
			workers.Add(1)
			submitErr := pool.Submit(func() {
				defer workers.Done()
				if ctx.Err() != nil {
					rows <- TeamResult{Team: team.Abbreviation, Status: StatusSkipped}
					return
				}
				started.Add(1)
				rows <- b.refreshTeam(context.WithoutCancel(ctx), team)
			})
			if submitErr != nil {
				workers.Done()
				rows <- TeamResult{Team: team.Abbreviation, Status: StatusFailed, Error: fmt.Sprintf("submit to worker pool: %v", submitErr)}
			}
		}
		workers.Wait()
	}
	close(rows)

	for row := range rows {
		result.Teams[row.Team] = row
		result.Counts[row.Status]++
	}
	result.FinishedAt = b.now().UTC()

	switch {
	case result.Counts[StatusSkipped] > 0:
		result.Status = RunCancelled
	case result.Counts[StatusFailed] > 0:
		result.Status = RunPartial
	default:
		result.Status = RunSuccess
	}

	counts := make(map[string]int, 4)
	for _, s := range []TeamStatus{StatusSuccess, StatusDegraded, StatusFailed, StatusSkipped} {
		counts[string(s)] = result.Counts[s]
	}
	metrics.RecordBatch(result.Status, result.FinishedAt.Sub(result.StartedAt).Seconds(), counts)

	b.persist(context.WithoutCancel(ctx), &result)

	b.mu.Lock()
	b.last = &result
	b.mu.Unlock()

	logger.Info().
		Str("status", result.Status).
		Int("started", int(started.Load())).
		Int("success", result.Counts[StatusSuccess]).
		Int("degraded", result.Counts[StatusDegraded]).
		Int("failed", result.Counts[StatusFailed]).
		Int("skipped", result.Counts[StatusSkipped]).
		Strs("failed_teams", result.Failed()).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Batch refresh complete")

	return result
}

func (b *Batch) refreshTeam(ctx context.Context, team models.Team) TeamResult {
	start := time.Now()
	row := TeamResult{Team: team.Abbreviation}

	rep, err := b.assembler.Assemble(ctx, team, b.opts)
	row.DurationMs = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		row.Status = StatusFailed
		row.Error = err.Error()
		row.ErrorKind = errs.Kind(err)
		metrics.RecordError("batch", row.ErrorKind)
		log.Error().Err(err).Str("team", team.Abbreviation).Str("kind", row.ErrorKind).Msg("Team refresh failed")
	case rep.Degraded():
		row.Status = StatusDegraded
		row.Degraded = rep.DegradedSections()
	default:
		row.Status = StatusSuccess
	}
	return row
}

func (b *Batch) persist(ctx context.Context, result *BatchResult) {
	if b.sink == nil {
		return
	}
	rec, err := repository.NewRecord(repository.KindBatchRun, result.RunID, nil, result.StartedAt, result)
	if err == nil {
		_, err = b.sink.Upsert(ctx, rec)
	}
	if err != nil {
		metrics.RecordError("batch", errs.Kind(errs.Persistence(err)))
		log.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to save batch run")
	}
}
