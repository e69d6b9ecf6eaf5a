// Package teams resolves user-facing team identifiers to franchises.
package teams

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nba_analytics/ingestion/internal/models"
	"nba_analytics/ingestion/internal/provider"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Cache stores the refreshed team table
type Cache interface {
	GetTeams(ctx context.Context) ([]models.Team, bool, error)
	SetTeams(ctx context.Context, teams []models.Team) error
}

// Directory is the process-wide team table. It starts from models.NBATeams and
// can be refreshed once from the games provider.
type Directory struct {
	mu     sync.RWMutex
	byAbbr map[string]models.Team
	index  map[string]string // lowercase slug/abbr/name -> abbreviation

	cache  Cache
	flight singleflight.Group
}

// NewDirectory creates a directory over the built-in team table. cache may be nil.
func NewDirectory(cache Cache) *Directory {
	d := &Directory{cache: cache}
	d.load(models.NBATeams)
	return d
}

func (d *Directory) load(teams []models.Team) {
	byAbbr := make(map[string]models.Team, len(teams))
	index := make(map[string]string, len(teams)*5)
	for _, t := range teams {
		byAbbr[t.Abbreviation] = t
		for _, k := range []string{t.Abbreviation, t.Slug, t.Name, t.FullName, t.City + " " + t.Name} {
			index[strings.ToLower(strings.TrimSpace(k))] = t.Abbreviation
		}
	}

	d.mu.Lock()
	d.byAbbr = byAbbr
	d.index = index
	d.mu.Unlock()
}

// Resolve finds a team by slug ("bulls"), abbreviation ("CHI") or name ("Chicago Bulls")
func (d *Directory) Resolve(id string) (models.Team, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if abbr := models.CanonicalAbbreviation(strings.ToUpper(key)); abbr != strings.ToUpper(key) {
		key = strings.ToLower(abbr)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	abbr, ok := d.index[key]
	if !ok {
		return models.Team{}, fmt.Errorf("unknown team %q", id)
	}
	return d.byAbbr[abbr], nil
}

// All returns every team ordered by abbreviation
func (d *Directory) All() []models.Team {
	d.mu.RLock()
	out := make([]models.Team, 0, len(d.byAbbr))
	for _, t := range d.byAbbr {
		out = append(out, t)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Abbreviation < out[j].Abbreviation })
	return out
}

// Refresh overlays provider ids and metadata onto the built-in table. The
// cached copy is used when present; concurrent callers share one fetch.
// Teams the provider does not return keep their built-in entry.
func (d *Directory) Refresh(ctx context.Context, source provider.TeamSource) error {
	_, err, _ := d.flight.Do("refresh", func() (any, error) {
		if d.cache != nil {
			teams, ok, err := d.cache.GetTeams(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to read team cache")
			} else if ok && len(teams) > 0 {
				d.merge(teams)
				log.Debug().Int("teams", len(teams)).Msg("Team table loaded from cache")
				return nil, nil
			}
		}

		teams, err := source.FetchTeams(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh teams: %w", err)
		}
		merged := d.merge(teams)

		if d.cache != nil {
			if err := d.cache.SetTeams(ctx, merged); err != nil {
				log.Warn().Err(err).Msg("Failed to write team cache")
			}
		}

		log.Info().Int("teams", len(teams)).Msg("Team table refreshed from provider")
		return nil, nil
	})
	return err
}

func (d *Directory) merge(fetched []models.Team) []models.Team {
	current := d.All()
	byAbbr := make(map[string]models.Team, len(current))
	for _, t := range current {
		byAbbr[t.Abbreviation] = t
	}

	for _, f := range fetched {
		t, ok := byAbbr[f.Abbreviation]
		if !ok {
			continue
		}
		t.ID = f.ID
		if f.FullName != "" {
			t.FullName = f.FullName
		}
		if f.City != "" {
			t.City = f.City
		}
		if f.Conference != "" {
			t.Conference = f.Conference
		}
		if f.Division != "" {
			t.Division = f.Division
		}
		byAbbr[t.Abbreviation] = t
	}

	merged := make([]models.Team, 0, len(byAbbr))
	for _, t := range byAbbr {
		merged = append(merged, t)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Abbreviation < merged[j].Abbreviation })
	d.load(merged)
	return merged
}
