package models

import (
	"database/sql"
	"strings"
	"time"
)

// Game statuses
const (
	GameScheduled  = "scheduled"
	GameInProgress = "in_progress"
	GameFinal      = "final"
)

// GameRecord represents one NBA game. Scores stay null until the game tips off.
type GameRecord struct {
	GameID     int           `json:"game_id" db:"game_id"`
	Season     int           `json:"season" db:"season"`
	Date       time.Time     `json:"date" db:"game_date"`
	HomeTeam   string        `json:"home_team" db:"home_team"`
	AwayTeam   string        `json:"away_team" db:"away_team"`
	HomeScore  sql.NullInt32 `json:"home_score" db:"home_score"`
	AwayScore  sql.NullInt32 `json:"away_score" db:"away_score"`
	Status     string        `json:"status" db:"status"`
	Postseason bool          `json:"postseason" db:"postseason"`
}

// GameInput is a game as returned by the BallDontLie API
type GameInput struct {
	ID               int       `json:"id"`
	Date             string    `json:"date"`
	Datetime         string    `json:"datetime"`
	Season           int       `json:"season"`
	Status           string    `json:"status"`
	Period           int       `json:"period"`
	Time             string    `json:"time"`
	Postseason       bool      `json:"postseason"`
	HomeTeamScore    *int      `json:"home_team_score"`
	VisitorTeamScore *int      `json:"visitor_team_score"`
	HomeTeam         TeamInput `json:"home_team"`
	VisitorTeam      TeamInput `json:"visitor_team"`
}

// ToGameRecord converts GameInput (from API) to GameRecord model
func (gi *GameInput) ToGameRecord() GameRecord {
	game := GameRecord{
		GameID:     gi.ID,
		Season:     gi.Season,
		Date:       gi.gameTime(),
		HomeTeam:   CanonicalAbbreviation(gi.HomeTeam.Abbreviation),
		AwayTeam:   CanonicalAbbreviation(gi.VisitorTeam.Abbreviation),
		Status:     normalizeGameStatus(gi.Status, gi.Period),
		Postseason: gi.Postseason,
	}

	// Scheduled games report 0-0; only trust scores once play has started
	if game.Status != GameScheduled {
		if gi.HomeTeamScore != nil {
			game.HomeScore = sql.NullInt32{Int32: int32(*gi.HomeTeamScore), Valid: true}
		}
		if gi.VisitorTeamScore != nil {
			game.AwayScore = sql.NullInt32{Int32: int32(*gi.VisitorTeamScore), Valid: true}
		}
	}

	return game
}

func (gi *GameInput) gameTime() time.Time {
	if gi.Datetime != "" {
		if t, err := time.Parse(time.RFC3339, gi.Datetime); err == nil {
			return t.UTC()
		}
	}
	if t, err := time.Parse(time.RFC3339, gi.Status); err == nil {
		return t.UTC()
	}
	if len(gi.Date) >= 10 {
		if t, err := time.Parse("2006-01-02", gi.Date[:10]); err == nil {
			return t
		}
	}
	return time.Time{}
}

func normalizeGameStatus(status string, period int) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case strings.HasPrefix(s, "final"):
		return GameFinal
	case s == "" || period == 0:
		return GameScheduled
	default:
		// "1st Qtr", "Halftime", "4th Qtr"...
		return GameInProgress
	}
}

// IsFinal returns true if the game has a final score
func (g *GameRecord) IsFinal() bool {
	return g.Status == GameFinal && g.HomeScore.Valid && g.AwayScore.Valid
}

// IsHome reports whether abbr is the home team
func (g *GameRecord) IsHome(abbr string) bool {
	return g.HomeTeam == abbr
}

// Involves reports whether abbr played in the game
func (g *GameRecord) Involves(abbr string) bool {
	return g.HomeTeam == abbr || g.AwayTeam == abbr
}

// Opponent returns the other team's abbreviation
func (g *GameRecord) Opponent(abbr string) string {
	if g.IsHome(abbr) {
		return g.AwayTeam
	}
	return g.HomeTeam
}

// ScoresFor returns (team score, opponent score) from abbr's perspective.
// ok is false until both scores are known.
func (g *GameRecord) ScoresFor(abbr string) (team, opp int, ok bool) {
	if !g.HomeScore.Valid || !g.AwayScore.Valid {
		return 0, 0, false
	}
	if g.IsHome(abbr) {
		return int(g.HomeScore.Int32), int(g.AwayScore.Int32), true
	}
	return int(g.AwayScore.Int32), int(g.HomeScore.Int32), true
}
