package provider

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"nba_analytics/ingestion/internal/errs"
	"nba_analytics/ingestion/internal/models"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	oddsSportKey    = "basketball_nba"
	oddsMarkets     = "h2h,spreads,totals"
	oddsSnapshotTTL = 2 * time.Minute
	oddsSnapshotKey = "league"
)

// TheOddsAPI serves odds lines from The Odds API v4.
// The endpoint is league-wide, so one snapshot is shared by every team for oddsSnapshotTTL.
type TheOddsAPI struct {
	client     JSONFetcher
	hasKey     bool
	regions    string
	bookmakers []string
	now        func() time.Time

	flight  singleflight.Group
	mu      sync.Mutex
	events  []models.OddsEventInput
	takenAt time.Time
}

var _ OddsAdapter = (*TheOddsAPI)(nil)

// NewTheOddsAPI creates the odds adapter. Without an API key every fetch is Unsupported.
func NewTheOddsAPI(client JSONFetcher, hasKey bool, regions string, bookmakers []string) *TheOddsAPI {
	if regions == "" {
		regions = "us"
	}
	return &TheOddsAPI{
		client:     client,
		hasKey:     hasKey,
		regions:    regions,
		bookmakers: bookmakers,
		now:        time.Now,
	}
}

func (a *TheOddsAPI) Name() string { return a.client.Provider() }

// FetchForTeam returns one line per (event, bookmaker) for upcoming events involving the team
func (a *TheOddsAPI) FetchForTeam(ctx context.Context, team models.Team, req Request) ([]models.OddsLine, error) {
	if !a.hasKey {
		return nil, errs.Unsupported(a.Name(), "no API key configured")
	}

	events, err := a.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch odds for %s: %w", team.Abbreviation, err)
	}

	fetchedAt := a.now()
	var lines []models.OddsLine
	for i := range events {
		ev := &events[i]
		home, okHome := models.TeamAbbreviationByName(ev.HomeTeam)
		away, okAway := models.TeamAbbreviationByName(ev.AwayTeam)
		if !okHome || !okAway {
			log.Debug().
				Str("home", ev.HomeTeam).
				Str("away", ev.AwayTeam).
				Msg("Skipping odds event with unknown team names")
			continue
		}
		if home != team.Abbreviation && away != team.Abbreviation {
			continue
		}
		// Started events carry in-play prices, never closing lines
		if !ev.CommenceTime.After(fetchedAt) {
			log.Debug().
				Str("event_id", ev.EventKey()).
				Time("commence_time", ev.CommenceTime).
				Msg("Skipping odds event that has already started")
			continue
		}

		for j := range ev.Bookmakers {
			bm := &ev.Bookmakers[j]
			line := ev.ToOddsLine(bm, home, away, fetchedAt)
			if raw, err := sonic.Marshal(bm); err == nil {
				line.Raw = raw
			}
			lines = append(lines, line)
		}
	}

	models.SortLines(lines)
	return lines, nil
}

// snapshot returns the league-wide events, refreshing at most once per TTL across concurrent callers
func (a *TheOddsAPI) snapshot(ctx context.Context) ([]models.OddsEventInput, error) {
	a.mu.Lock()
	if a.events != nil && a.now().Sub(a.takenAt) < oddsSnapshotTTL {
		events := a.events
		a.mu.Unlock()
		return events, nil
	}
	a.mu.Unlock()

	v, err, _ := a.flight.Do(oddsSnapshotKey, func() (any, error) {
		q := url.Values{}
		q.Set("regions", a.regions)
		q.Set("markets", oddsMarkets)
		q.Set("oddsFormat", "decimal")
		q.Set("dateFormat", "iso")
		if len(a.bookmakers) > 0 {
			q.Set("bookmakers", strings.Join(a.bookmakers, ","))
		}

		var events []models.OddsEventInput
		if err := a.client.GetJSON(ctx, "/v4/sports/"+oddsSportKey+"/odds", q, &events); err != nil {
			return nil, err
		}
		sort.SliceStable(events, func(i, j int) bool { return events[i].EventKey() < events[j].EventKey() })

		a.mu.Lock()
		a.events = events
		a.takenAt = a.now()
		a.mu.Unlock()
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.OddsEventInput), nil
}
