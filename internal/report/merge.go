package report

import (
	"sort"
	"time"

	"nba_analytics/ingestion/internal/models"
)

// lineMatchWindow is how far an event's commence time may sit from the
// provider's game time and still be the same game
const lineMatchWindow = 36 * time.Hour

// DefaultBookmakerPreference ranks books when several price the same game
var DefaultBookmakerPreference = []string{"pinnacle", "circasports", "fanduel", "draftkings", "betmgm", "caesars"}

// mergeLines combines fresh lines with prior ones. Prior lines that are already
// frozen win over fresh copies of the same market, and fresh lines that are
// already frozen are dropped; otherwise fresh data wins.
// When fresh is nil (odds unavailable) every prior line is kept.
func mergeLines(fresh, prior []models.OddsLine, now time.Time, freshOK bool) (merged []models.OddsLine, movements []models.LineMovement) {
	byMarket := make(map[string]models.OddsLine, len(fresh)+len(prior))

	priorByMarket := make(map[string]models.OddsLine, len(prior))
	for _, l := range prior {
		priorByMarket[l.MarketID] = l
		if !freshOK || l.IsFrozen(now) {
			byMarket[l.MarketID] = l
		}
	}

	for _, l := range fresh {
		p, seen := priorByMarket[l.MarketID]
		switch {
		case seen && p.IsFrozen(now):
			continue
		case l.IsFrozen(now):
			// A line first seen after tip-off is an in-play price
			continue
		case seen:
			if mv := models.DetectLineMovement(&p, &l); mv != nil {
				movements = append(movements, *mv)
			}
		}
		byMarket[l.MarketID] = l
	}

	merged = make([]models.OddsLine, 0, len(byMarket))
	for _, l := range byMarket {
		merged = append(merged, l)
	}
	models.SortLines(merged)
	sort.Slice(movements, func(i, j int) bool { return movements[i].MarketID < movements[j].MarketID })
	return merged, movements
}

// joinLines attaches at most one line to each game and returns the rest as unmatched.
// Output depends only on the input sets, not their order.
func joinLines(games []models.GameRecord, lines []models.OddsLine, preference []string) (map[int]models.OddsLine, []models.OddsLine) {
	rank := make(map[string]int, len(preference))
	for i, b := range preference {
		rank[b] = i
	}
	bookRank := func(b string) int {
		if r, ok := rank[b]; ok {
			return r
		}
		return len(preference)
	}
	better := func(a, b models.OddsLine) bool {
		if ra, rb := bookRank(a.Bookmaker), bookRank(b.Bookmaker); ra != rb {
			return ra < rb
		}
		if a.Bookmaker != b.Bookmaker {
			return a.Bookmaker < b.Bookmaker
		}
		return a.MarketID < b.MarketID
	}

	matched := make(map[int]models.OddsLine)
	unmatched := []models.OddsLine{}

	for _, l := range lines {
		g, ok := matchGame(games, l)
		if !ok {
			unmatched = append(unmatched, l)
			continue
		}
		l.GameID.Int64, l.GameID.Valid = int64(g.GameID), true
		if cur, ok := matched[g.GameID]; !ok || better(l, cur) {
			matched[g.GameID] = l
		}
	}

	models.SortLines(unmatched)
	return matched, unmatched
}

// matchGame finds the game with the same matchup nearest to the line's commence time
func matchGame(games []models.GameRecord, l models.OddsLine) (models.GameRecord, bool) {
	var (
		best     models.GameRecord
		bestDiff time.Duration
		found    bool
	)
	for _, g := range games {
		if g.HomeTeam != l.HomeTeam || g.AwayTeam != l.AwayTeam {
			continue
		}
		diff := g.Date.Sub(l.CommenceTime)
		if diff < 0 {
			diff = -diff
		}
		if diff > lineMatchWindow {
			continue
		}
		if !found || diff < bestDiff || (diff == bestDiff && g.GameID < best.GameID) {
			best, bestDiff, found = g, diff, true
		}
	}
	return best, found
}
