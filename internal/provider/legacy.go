package provider

import (
	"context"

	"nba_analytics/ingestion/internal/errs"
	"nba_analytics/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// Legacy stands in for a scraper-era source (Basketball-Reference pages, the
// league injury PDF, generic scraping). None of them has a strict-compatible
// feed: in strict mode they report Unsupported, otherwise they delegate to the
// API adapter for the same record kind.
type Legacy[T any] struct {
	source   string
	fallback Adapter[T]
}

// NewLegacy wraps fallback under a legacy source name. fallback may be nil.
func NewLegacy[T any](source string, fallback Adapter[T]) *Legacy[T] {
	return &Legacy[T]{source: source, fallback: fallback}
}

func (l *Legacy[T]) Name() string {
	if l.fallback == nil {
		return l.source
	}
	return l.source + "->" + l.fallback.Name()
}

func (l *Legacy[T]) FetchForTeam(ctx context.Context, team models.Team, req Request) ([]T, error) {
	if req.Strict {
		return nil, errs.Unsupported(l.source, "legacy source has no strict-compatible feed")
	}
	if l.fallback == nil {
		return nil, errs.Unsupported(l.source, "legacy source has no fallback configured")
	}

	log.Debug().
		Str("source", l.source).
		Str("fallback", l.fallback.Name()).
		Str("team", team.Abbreviation).
		Msg("Legacy source delegating to fallback adapter")
	return l.fallback.FetchForTeam(ctx, team, req)
}
