package models

import (
	"sort"
	"time"
)

// Section names a part of a report sourced from one provider
type Section string

const (
	SectionGames    Section = "games"
	SectionInjuries Section = "injuries"
	SectionOdds     Section = "odds"
)

// Sections lists report sections in a fixed order
var Sections = []Section{SectionGames, SectionInjuries, SectionOdds}

// Provenance records where a report section came from and whether it can be trusted
type Provenance struct {
	Provider  string    `json:"provider"`
	Degraded  bool      `json:"degraded"`
	Omitted   bool      `json:"omitted"` // provider unsupported in strict mode
	Stale     bool      `json:"stale"`   // served from cached prior data
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// UnifiedTeamReport is the merged view of one team across all providers
type UnifiedTeamReport struct {
	Team        Team                   `json:"team"`
	Season      int                    `json:"season"`
	Strict      bool                   `json:"strict_provider"` // assembled with fallbacks refused
	Games       []GameRecord           `json:"games"` // most recent first
	Lines       map[int]OddsLine       `json:"lines"` // keyed by game id
	FutureLines []OddsLine             `json:"future_lines"`
	Injuries    []InjuryRecord         `json:"injuries"`
	Provenance  map[Section]Provenance `json:"provenance"`
	Movements   []LineMovement         `json:"line_movements,omitempty"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// NewUnifiedTeamReport returns an empty report with initialized collections
func NewUnifiedTeamReport(team Team, season int) *UnifiedTeamReport {
	return &UnifiedTeamReport{
		Team:        team,
		Season:      season,
		Games:       []GameRecord{},
		Lines:       map[int]OddsLine{},
		FutureLines: []OddsLine{},
		Injuries:    []InjuryRecord{},
		Provenance:  map[Section]Provenance{},
	}
}

// Degraded reports whether any section is degraded
func (r *UnifiedTeamReport) Degraded() bool {
	for _, p := range r.Provenance {
		if p.Degraded {
			return true
		}
	}
	return false
}

// DegradedSections returns the degraded section names in fixed order
func (r *UnifiedTeamReport) DegradedSections() []Section {
	var out []Section
	for _, s := range Sections {
		if r.Provenance[s].Degraded {
			out = append(out, s)
		}
	}
	return out
}

// LineFor returns the matched line for a game
func (r *UnifiedTeamReport) LineFor(gameID int) (OddsLine, bool) {
	l, ok := r.Lines[gameID]
	return l, ok
}

// AllLines returns matched and future lines ordered by commence time then market id
func (r *UnifiedTeamReport) AllLines() []OddsLine {
	out := make([]OddsLine, 0, len(r.Lines)+len(r.FutureLines))
	for _, l := range r.Lines {
		out = append(out, l)
	}
	out = append(out, r.FutureLines...)
	SortLines(out)
	return out
}

// SortLines orders lines by commence time then market id
func SortLines(lines []OddsLine) {
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].CommenceTime.Equal(lines[j].CommenceTime) {
			return lines[i].CommenceTime.Before(lines[j].CommenceTime)
		}
		return lines[i].MarketID < lines[j].MarketID
	})
}

// SortGames orders games most recent first, ties broken by game id
func SortGames(games []GameRecord) {
	sort.Slice(games, func(i, j int) bool {
		if !games[i].Date.Equal(games[j].Date) {
			return games[i].Date.After(games[j].Date)
		}
		return games[i].GameID > games[j].GameID
	})
}

// PriorSnapshot is the last good games and odds for a team, kept to serve
// closing lines and to stand in when the games provider is down
type PriorSnapshot struct {
	Team         string       `json:"team"`
	Games        []GameRecord `json:"games"`
	GamesFetched time.Time    `json:"games_fetched_at"` // when Games last came from the provider
	Lines        []OddsLine   `json:"lines"`
	SavedAt      time.Time    `json:"saved_at"`
}

// GamesFetchedAt returns when the snapshot's games were fetched, falling back
// to SavedAt for snapshots written without it
func (p *PriorSnapshot) GamesFetchedAt() time.Time {
	if p.GamesFetched.IsZero() {
		return p.SavedAt
	}
	return p.GamesFetched
}
