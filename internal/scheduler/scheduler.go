package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"nba_analytics/ingestion/internal/models"
	"nba_analytics/ingestion/internal/provider"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// TeamDirectory supplies the teams to refresh
type TeamDirectory interface {
	All() []models.Team
	Refresh(ctx context.Context, source provider.TeamSource) error
}

// Config holds the trigger settings
type Config struct {
	RefreshCron    string
	InitialRefresh bool
}

// Scheduler triggers batch refreshes of every team on a cron schedule
type Scheduler struct {
	cfg     Config
	batch   *Batch
	teams   TeamDirectory
	source  provider.TeamSource
	cron    *cron.Cron
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler instance. source may be nil to skip
// refreshing the team table before each run.
func NewScheduler(cfg Config, batch *Batch, teams TeamDirectory, source provider.TeamSource) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		batch:  batch,
		teams:  teams,
		source: source,
		cron:   cron.New(),
	}
}

// Start schedules the refresh job and optionally runs one immediately
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.cfg.RefreshCron, func() {
		log.Info().Msg("Running scheduled refresh...")
		s.RunOnce(runCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.RefreshCron).
		Msg("Team refresh scheduled")

	if s.cfg.InitialRefresh {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.Info().Msg("Running initial refresh...")
			s.RunOnce(runCtx)
		}()
	}

	return nil
}

// RunOnce refreshes every team unless a run is already in progress.
// It returns nil when skipped.
func (s *Scheduler) RunOnce(ctx context.Context) *BatchResult {
	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Msg("Previous refresh still running, skipping")
		return nil
	}
	defer s.running.Store(false)

	if s.source != nil {
		if err := s.teams.Refresh(ctx, s.source); err != nil {
			log.Warn().Err(err).Msg("Team table refresh failed, using built-in table")
		}
	}

	result := s.batch.RefreshAll(ctx, s.teams.All())
	return &result
}

// Stop cancels pending teams of an in-flight run and waits for running teams to finish
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()

	log.Info().Msg("Scheduler stopped")
}
