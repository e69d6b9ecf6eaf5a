// Package provider translates external data sources into normalized records.
//
// Exactly one adapter per record kind is active for a run. Selection happens
// once at startup from configuration; see Select.
package provider

import (
	"context"

	"nba_analytics/ingestion/internal/models"
)

// Request carries per-invocation adapter options
type Request struct {
	Season int
	Strict bool // refuse fallback sources; report Unsupported instead
}

// Adapter fetches one record kind for one team
type Adapter[T any] interface {
	Name() string
	FetchForTeam(ctx context.Context, team models.Team, req Request) ([]T, error)
}

type (
	GamesAdapter    = Adapter[models.GameRecord]
	InjuriesAdapter = Adapter[models.InjuryRecord]
	OddsAdapter     = Adapter[models.OddsLine]
)

// TeamSource lists the league's teams
type TeamSource interface {
	FetchTeams(ctx context.Context) ([]models.Team, error)
}

// Set is the active adapter per record kind
type Set struct {
	Games    GamesAdapter
	Injuries InjuriesAdapter
	Odds     OddsAdapter
	Teams    TeamSource
}
