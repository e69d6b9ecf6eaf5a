package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"nba_analytics/ingestion/internal/errs"
	"nba_analytics/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	bdlPerPage  = 100
	bdlMaxPages = 5
)

// JSONFetcher is the slice of the fetch client adapters depend on
type JSONFetcher interface {
	Provider() string
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
}

// bdlMeta is the cursor pagination block of BallDontLie list responses
type bdlMeta struct {
	NextCursor *int `json:"next_cursor"`
	PerPage    int  `json:"per_page"`
}

// BallDontLie serves games, injuries and teams from the BallDontLie v1 API
type BallDontLie struct {
	client JSONFetcher
	hasKey bool
	now    func() time.Time
}

var (
	_ GamesAdapter    = (*BallDontLieGames)(nil)
	_ InjuriesAdapter = (*BallDontLieInjuries)(nil)
	_ TeamSource      = (*BallDontLie)(nil)
)

// NewBallDontLie creates the BallDontLie source. Without an API key every fetch is Unsupported.
func NewBallDontLie(client JSONFetcher, hasKey bool) *BallDontLie {
	return &BallDontLie{client: client, hasKey: hasKey, now: time.Now}
}

// Games returns the games adapter
func (b *BallDontLie) Games() *BallDontLieGames { return &BallDontLieGames{src: b} }

// Injuries returns the injuries adapter
func (b *BallDontLie) Injuries() *BallDontLieInjuries { return &BallDontLieInjuries{src: b} }

// FetchTeams fetches the current franchises
func (b *BallDontLie) FetchTeams(ctx context.Context) ([]models.Team, error) {
	if !b.hasKey {
		return nil, errs.Unsupported(b.client.Provider(), "no API key configured")
	}

	var resp struct {
		Data []models.TeamInput `json:"data"`
	}
	if err := b.client.GetJSON(ctx, "/v1/teams", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch teams: %w", err)
	}

	known := make(map[string]bool, len(models.NBATeams))
	for _, t := range models.NBATeams {
		known[t.Abbreviation] = true
	}

	teams := make([]models.Team, 0, len(resp.Data))
	for i := range resp.Data {
		t := resp.Data[i].ToTeam()
		// The endpoint also lists defunct franchises
		if !known[t.Abbreviation] {
			continue
		}
		teams = append(teams, t)
	}
	return teams, nil
}

// pages walks cursor pagination, calling decode for each page until the cursor runs out
func (b *BallDontLie) pages(path string, decode func(cursor *int) (*bdlMeta, error)) error {
	var cursor *int
	for page := 0; page < bdlMaxPages; page++ {
		meta, err := decode(cursor)
		if err != nil {
			return err
		}
		if meta == nil || meta.NextCursor == nil {
			return nil
		}
		cursor = meta.NextCursor
	}

	log.Warn().
		Str("provider", b.client.Provider()).
		Str("path", path).
		Int("max_pages", bdlMaxPages).
		Msg("Stopped paging before the last page")
	return nil
}

func pageQuery(base url.Values, cursor *int) url.Values {
	q := url.Values{}
	for k, v := range base {
		q[k] = append([]string(nil), v...)
	}
	q.Set("per_page", strconv.Itoa(bdlPerPage))
	if cursor != nil {
		q.Set("cursor", strconv.Itoa(*cursor))
	}
	return q
}

// BallDontLieGames adapts /v1/games
type BallDontLieGames struct {
	src *BallDontLie
}

func (a *BallDontLieGames) Name() string { return a.src.client.Provider() }

// FetchForTeam fetches the team's games for the requested season
func (a *BallDontLieGames) FetchForTeam(ctx context.Context, team models.Team, req Request) ([]models.GameRecord, error) {
	if !a.src.hasKey {
		return nil, errs.Unsupported(a.Name(), "no API key configured")
	}

	base := url.Values{}
	base.Set("team_ids[]", strconv.Itoa(team.ID))
	if req.Season > 0 {
		base.Set("seasons[]", strconv.Itoa(req.Season))
	}

	var games []models.GameRecord
	err := a.src.pages("/v1/games", func(cursor *int) (*bdlMeta, error) {
		var resp struct {
			Data []models.GameInput `json:"data"`
			Meta bdlMeta            `json:"meta"`
		}
		if err := a.src.client.GetJSON(ctx, "/v1/games", pageQuery(base, cursor), &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch games for %s: %w", team.Abbreviation, err)
		}
		for i := range resp.Data {
			g := resp.Data[i].ToGameRecord()
			if g.Involves(team.Abbreviation) {
				games = append(games, g)
			}
		}
		return &resp.Meta, nil
	})
	if err != nil {
		return nil, err
	}

	models.SortGames(games)
	return games, nil
}

// BallDontLieInjuries adapts /v1/player_injuries
type BallDontLieInjuries struct {
	src *BallDontLie
}

func (a *BallDontLieInjuries) Name() string { return a.src.client.Provider() }

// FetchForTeam fetches the team's current injury report
func (a *BallDontLieInjuries) FetchForTeam(ctx context.Context, team models.Team, req Request) ([]models.InjuryRecord, error) {
	if !a.src.hasKey {
		return nil, errs.Unsupported(a.Name(), "no API key configured")
	}

	base := url.Values{}
	base.Set("team_ids[]", strconv.Itoa(team.ID))
	observedAt := a.src.now()

	var injuries []models.InjuryRecord
	err := a.src.pages("/v1/player_injuries", func(cursor *int) (*bdlMeta, error) {
		var resp struct {
			Data []models.InjuryInput `json:"data"`
			Meta bdlMeta              `json:"meta"`
		}
		if err := a.src.client.GetJSON(ctx, "/v1/player_injuries", pageQuery(base, cursor), &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch injuries for %s: %w", team.Abbreviation, err)
		}
		for i := range resp.Data {
			injuries = append(injuries, resp.Data[i].ToInjuryRecord(team, observedAt))
		}
		return &resp.Meta, nil
	})
	if err != nil {
		return nil, err
	}

	return models.CurrentInjuries(injuries), nil
}
