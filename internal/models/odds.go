package models

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// MarketFullGame is the only market type the pipeline tracks: spread, total and moneyline for the full game
const MarketFullGame = "full_game"

// OddsLine is one bookmaker's market snapshot for one game.
// Once CommenceTime has passed the line is frozen and treated as the closing line.
type OddsLine struct {
	MarketID      string          `json:"market_id" db:"market_id"`
	EventID       string          `json:"event_id" db:"event_id"`
	GameID        sql.NullInt64   `json:"game_id" db:"game_id"`
	Bookmaker     string          `json:"bookmaker" db:"bookmaker"`
	MarketType    string          `json:"market_type" db:"market_type"`
	HomeTeam      string          `json:"home_team" db:"home_team"`
	AwayTeam      string          `json:"away_team" db:"away_team"`
	CommenceTime  time.Time       `json:"commence_time" db:"commence_time"`
	HomeSpread    sql.NullFloat64 `json:"home_spread" db:"home_spread"`
	Total         sql.NullFloat64 `json:"total" db:"total"`
	HomeMoneyline sql.NullFloat64 `json:"home_moneyline" db:"home_moneyline"`
	AwayMoneyline sql.NullFloat64 `json:"away_moneyline" db:"away_moneyline"`
	Raw           json.RawMessage `json:"raw,omitempty" db:"raw"`
	FetchedAt     time.Time       `json:"fetched_at" db:"fetched_at"`
}

// OddsEventInput is an event from The Odds API v4 odds endpoint
type OddsEventInput struct {
	ID           string           `json:"id"`
	SportKey     string           `json:"sport_key"`
	CommenceTime time.Time        `json:"commence_time"`
	HomeTeam     string           `json:"home_team"`
	AwayTeam     string           `json:"away_team"`
	Bookmakers   []BookmakerInput `json:"bookmakers"`
}

// BookmakerInput is one bookmaker's markets for an event
type BookmakerInput struct {
	Key        string        `json:"key"`
	Title      string        `json:"title"`
	LastUpdate string        `json:"last_update"`
	Markets    []MarketInput `json:"markets"`
}

// MarketInput is a single market (h2h, spreads, totals)
type MarketInput struct {
	Key      string         `json:"key"`
	Outcomes []OutcomeInput `json:"outcomes"`
}

// OutcomeInput is one side of a market. Point is nil for h2h.
type OutcomeInput struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
	Point *float64 `json:"point"`
}

// EventKey returns the provider event id, or a stable hash of the matchup when the id is missing
func (ei *OddsEventInput) EventKey() string {
	if ei.ID != "" {
		return ei.ID
	}
	sum := sha1.Sum([]byte(ei.HomeTeam + "|" + ei.AwayTeam + "|" + ei.CommenceTime.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

// ToOddsLine converts one bookmaker's markets for the event to an OddsLine.
// Home and away are league abbreviations resolved by the caller.
func (ei *OddsEventInput) ToOddsLine(bm *BookmakerInput, home, away string, fetchedAt time.Time) OddsLine {
	eventID := ei.EventKey()
	line := OddsLine{
		MarketID:     eventID + ":" + bm.Key + ":" + MarketFullGame,
		EventID:      eventID,
		Bookmaker:    bm.Key,
		MarketType:   MarketFullGame,
		HomeTeam:     home,
		AwayTeam:     away,
		CommenceTime: ei.CommenceTime.UTC(),
		FetchedAt:    fetchedAt.UTC(),
	}

	for _, m := range bm.Markets {
		switch m.Key {
		case "spreads":
			for _, o := range m.Outcomes {
				if o.Point == nil {
					continue
				}
				if o.Name == ei.HomeTeam {
					line.HomeSpread = sql.NullFloat64{Float64: *o.Point, Valid: true}
				} else if o.Name == ei.AwayTeam && !line.HomeSpread.Valid {
					line.HomeSpread = sql.NullFloat64{Float64: -*o.Point, Valid: true}
				}
			}
		case "totals":
			for _, o := range m.Outcomes {
				if o.Point != nil && (strings.EqualFold(o.Name, "over") || !line.Total.Valid) {
					line.Total = sql.NullFloat64{Float64: *o.Point, Valid: true}
				}
			}
		case "h2h":
			for _, o := range m.Outcomes {
				if o.Price == nil {
					continue
				}
				switch o.Name {
				case ei.HomeTeam:
					line.HomeMoneyline = sql.NullFloat64{Float64: *o.Price, Valid: true}
				case ei.AwayTeam:
					line.AwayMoneyline = sql.NullFloat64{Float64: *o.Price, Valid: true}
				}
			}
		}
	}

	return line
}

// IsFrozen returns true once the game has started
func (l *OddsLine) IsFrozen(now time.Time) bool {
	return !now.Before(l.CommenceTime)
}

// SpreadFor returns the spread from abbr's perspective (negative means favored)
func (l *OddsLine) SpreadFor(abbr string) (float64, bool) {
	if !l.HomeSpread.Valid {
		return 0, false
	}
	if l.HomeTeam == abbr {
		return l.HomeSpread.Float64, true
	}
	return -l.HomeSpread.Float64, true
}

// TeamAbbreviationByName resolves a provider team name such as
// "Los Angeles Clippers" or "LA Clippers" to its league abbreviation
func TeamAbbreviationByName(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	for _, t := range NBATeams {
		if n == strings.ToLower(t.FullName) || strings.HasSuffix(n, " "+strings.ToLower(t.Name)) {
			return t.Abbreviation, true
		}
	}
	return "", false
}

// LineMovement describes a change between two snapshots of the same market
type LineMovement struct {
	MarketID   string          `json:"market_id"`
	Bookmaker  string          `json:"bookmaker"`
	PrevSpread sql.NullFloat64 `json:"prev_home_spread"`
	NewSpread  sql.NullFloat64 `json:"new_home_spread"`
	PrevTotal  sql.NullFloat64 `json:"prev_total"`
	NewTotal   sql.NullFloat64 `json:"new_total"`
	Direction  string          `json:"direction,omitempty"`
	Magnitude  float64         `json:"magnitude"`
	DetectedAt time.Time       `json:"detected_at"`
}

// DetectLineMovement returns a LineMovement if the spread or total changed, nil otherwise
func DetectLineMovement(prev, next *OddsLine) *LineMovement {
	spreadMoved := prev.HomeSpread.Valid && next.HomeSpread.Valid && prev.HomeSpread.Float64 != next.HomeSpread.Float64
	totalMoved := prev.Total.Valid && next.Total.Valid && prev.Total.Float64 != next.Total.Float64
	if !spreadMoved && !totalMoved {
		return nil
	}

	movement := &LineMovement{
		MarketID:   next.MarketID,
		Bookmaker:  next.Bookmaker,
		PrevSpread: prev.HomeSpread,
		NewSpread:  next.HomeSpread,
		PrevTotal:  prev.Total,
		NewTotal:   next.Total,
		DetectedAt: next.FetchedAt,
	}

	if spreadMoved {
		diff := next.HomeSpread.Float64 - prev.HomeSpread.Float64
		if diff > 0 {
			movement.Direction = "toward_away"
		} else {
			movement.Direction = "toward_home"
		}
		movement.Magnitude = math.Abs(diff)
	}

	return movement
}
