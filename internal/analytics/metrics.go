// Package analytics derives against-the-spread and over/under records from
// assembled team reports. Everything here is pure and deterministic.
package analytics

import (
	"math"
	"strings"

	"nba_analytics/ingestion/internal/models"
)

// pushTolerance absorbs float noise when a margin lands exactly on the number
const pushTolerance = 1e-9

// ATSResult is a game's outcome against the spread
type ATSResult string

const (
	ATSCovered    ATSResult = "covered"
	ATSNotCovered ATSResult = "not_covered"
	ATSPush       ATSResult = "push"
)

// OUResult is a game's outcome against the total
type OUResult string

const (
	OUOver  OUResult = "over"
	OUUnder OUResult = "under"
	OUPush  OUResult = "push"
)

// Config controls aggregation windows
type Config struct {
	RecentN int
}

// GameResult is one game from the team's perspective. ATS and OU are nil when
// the game has no final score or no pre-game line.
type GameResult struct {
	GameID    int        `json:"game_id"`
	Date      string     `json:"date"`
	Opponent  string     `json:"opponent"`
	Home      bool       `json:"home"`
	TeamScore *int       `json:"team_score"`
	OppScore  *int       `json:"opp_score"`
	Spread    *float64   `json:"spread"` // team perspective
	Total     *float64   `json:"total"`
	ATS       *ATSResult `json:"ats"`
	OU        *OUResult  `json:"ou"`
}

// Tally counts decided outcomes. Rate excludes pushes and is nil with no decided games.
type Tally struct {
	Wins   int      `json:"wins"`
	Losses int      `json:"losses"`
	Pushes int      `json:"pushes"`
	Rate   *float64 `json:"rate"`
}

// Decided is the number of non-push outcomes
func (t Tally) Decided() int {
	return t.Wins + t.Losses
}

func (t *Tally) add(win, push bool) {
	switch {
	case push:
		t.Pushes++
	case win:
		t.Wins++
	default:
		t.Losses++
	}
}

func (t *Tally) finish() {
	if d := t.Decided(); d > 0 {
		r := float64(t.Wins) / float64(d)
		t.Rate = &r
	}
}

// TeamMetrics is the derived view of one report
type TeamMetrics struct {
	Team          string       `json:"team"`
	Games         []GameResult `json:"games"` // most recent first
	Played        int          `json:"played"`
	Wins          int          `json:"wins"`
	Losses        int          `json:"losses"`
	ATS           Tally        `json:"ats"` // wins = covers
	OU            Tally        `json:"ou"`  // wins = overs
	RecentN       int          `json:"recent_n"`
	RecentATS     Tally        `json:"recent_ats"`
	RecentOU      Tally        `json:"recent_ou"`
	ATSForm       string       `json:"ats_form"` // W/L/P, most recent first
	OUForm        string       `json:"ou_form"`  // O/U/P, most recent first
	PointsFor     *float64     `json:"points_for"`
	PointsAgainst *float64     `json:"points_against"`
}

// EvaluateATS grades a team margin against the team-perspective spread.
// The team covers when margin + spread > 0.
func EvaluateATS(margin, spread float64) ATSResult {
	v := margin + spread
	switch {
	case math.Abs(v) <= pushTolerance:
		return ATSPush
	case v > 0:
		return ATSCovered
	default:
		return ATSNotCovered
	}
}

// EvaluateOU grades combined points against the posted total
func EvaluateOU(points, line float64) OUResult {
	v := points - line
	switch {
	case math.Abs(v) <= pushTolerance:
		return OUPush
	case v > 0:
		return OUOver
	default:
		return OUUnder
	}
}

// Compute derives team metrics from a report. Games without a final score or a
// matched line are not applicable and never count as losses.
func Compute(report *models.UnifiedTeamReport, cfg Config) TeamMetrics {
	abbr := report.Team.Abbreviation
	m := TeamMetrics{
		Team:    abbr,
		Games:   make([]GameResult, 0, len(report.Games)),
		RecentN: cfg.RecentN,
	}

	var (
		atsForm, ouForm strings.Builder
		pointsFor       int
		pointsAgainst   int
	)

	for i := range report.Games {
		g := &report.Games[i]
		res := GameResult{
			GameID:   g.GameID,
			Date:     g.Date.UTC().Format("2006-01-02"),
			Opponent: g.Opponent(abbr),
			Home:     g.IsHome(abbr),
		}

		team, opp, scored := g.ScoresFor(abbr)
		final := scored && g.IsFinal()
		if scored {
			res.TeamScore, res.OppScore = &team, &opp
		}
		if final {
			m.Played++
			pointsFor += team
			pointsAgainst += opp
			if team > opp {
				m.Wins++
			} else {
				m.Losses++
			}
		}

		line, hasLine := report.LineFor(g.GameID)
		if hasLine {
			if spread, ok := line.SpreadFor(abbr); ok {
				res.Spread = &spread
			}
			if line.Total.Valid {
				total := line.Total.Float64
				res.Total = &total
			}
		}

		if final && res.Spread != nil {
			ats := EvaluateATS(float64(team-opp), *res.Spread)
			res.ATS = &ats
			m.ATS.add(ats == ATSCovered, ats == ATSPush)
			if cfg.RecentN <= 0 || atsForm.Len() < cfg.RecentN {
				m.RecentATS.add(ats == ATSCovered, ats == ATSPush)
				atsForm.WriteByte(atsLetter(ats))
			}
		}
		if final && res.Total != nil {
			ou := EvaluateOU(float64(team+opp), *res.Total)
			res.OU = &ou
			m.OU.add(ou == OUOver, ou == OUPush)
			if cfg.RecentN <= 0 || ouForm.Len() < cfg.RecentN {
				m.RecentOU.add(ou == OUOver, ou == OUPush)
				ouForm.WriteByte(ouLetter(ou))
			}
		}

		m.Games = append(m.Games, res)
	}

	m.ATS.finish()
	m.OU.finish()
	m.RecentATS.finish()
	m.RecentOU.finish()
	m.ATSForm = atsForm.String()
	m.OUForm = ouForm.String()

	if m.Played > 0 {
		pf := float64(pointsFor) / float64(m.Played)
		pa := float64(pointsAgainst) / float64(m.Played)
		m.PointsFor, m.PointsAgainst = &pf, &pa
	}

	return m
}

func atsLetter(r ATSResult) byte {
	switch r {
	case ATSCovered:
		return 'W'
	case ATSNotCovered:
		return 'L'
	default:
		return 'P'
	}
}

func ouLetter(r OUResult) byte {
	switch r {
	case OUOver:
		return 'O'
	case OUUnder:
		return 'U'
	default:
		return 'P'
	}
}
