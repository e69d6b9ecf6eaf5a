// Package parlay ranks multi-team parlays from recent ATS and O/U trends.
//
// Suggestions are heuristic. Confidence is a relative score for ordering, not
// a calibrated probability.
package parlay

import (
	"container/heap"
	"fmt"
	"iter"
	"math"
	"sort"
	"strconv"
	"strings"

	"nba_analytics/ingestion/internal/analytics"
	"nba_analytics/ingestion/internal/models"
)

// Markets
const (
	MarketSpread = "spread"
	MarketTotal  = "total"
)

// Sides
const (
	SideCover = "cover"
	SideFade  = "fade"
	SideOver  = "over"
	SideUnder = "under"
)

// Per-player confidence penalties by designation
var injuryPenalty = map[models.InjuryStatus]float64{
	models.InjuryOut:          0.06,
	models.InjuryDoubtful:     0.04,
	models.InjuryQuestionable: 0.02,
	models.InjuryProbable:     0.01,
}

const minInjuryFactor = 0.5

// TeamInput is what the heuristic knows about one team
type TeamInput struct {
	Team     models.Team
	Metrics  analytics.TeamMetrics
	Injuries []models.InjuryRecord
}

// Constraints bound the generated suggestions
type Constraints struct {
	LegsPerParlay    int     // default 2
	MinGames         int     // decided recent games required per market
	MinLegConfidence float64 // legs at or below are dropped; default 0.5
	PriorWeight      float64 // pseudo-games shrinking rates toward 0.5; default 4
}

func (c Constraints) withDefaults() Constraints {
	if c.LegsPerParlay <= 0 {
		c.LegsPerParlay = 2
	}
	if c.MinLegConfidence <= 0 {
		c.MinLegConfidence = 0.5
	}
	if c.PriorWeight <= 0 {
		c.PriorWeight = 4
	}
	return c
}

// Leg is one selection in a parlay
type Leg struct {
	Team       string  `json:"team"`
	Market     string  `json:"market"`
	Side       string  `json:"side"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note"`
}

// ParlaySuggestion is a set of legs from distinct teams
type ParlaySuggestion struct {
	Legs       []Leg   `json:"legs"`
	Confidence float64 `json:"confidence"`
}

// Suggestions is a lazy, restartable, best-first sequence of parlays
type Suggestions struct {
	legs []Leg
	k    int
}

// Suggest builds candidate legs for every eligible team. No parlay is
// computed until the sequence is iterated.
func Suggest(inputs []TeamInput, c Constraints) *Suggestions {
	c = c.withDefaults()

	var legs []Leg
	for _, in := range inputs {
		factor := InjuryFactor(in.Injuries)
		abbr := in.Team.Abbreviation

		if leg, ok := buildLeg(abbr, MarketSpread, in.Metrics.RecentATS, factor, c); ok {
			legs = append(legs, leg)
		}
		if leg, ok := buildLeg(abbr, MarketTotal, in.Metrics.RecentOU, factor, c); ok {
			legs = append(legs, leg)
		}
	}

	sort.SliceStable(legs, func(i, j int) bool {
		if legs[i].Confidence != legs[j].Confidence {
			return legs[i].Confidence > legs[j].Confidence
		}
		if legs[i].Team != legs[j].Team {
			return legs[i].Team < legs[j].Team
		}
		return legs[i].Market < legs[j].Market
	})

	return &Suggestions{legs: legs, k: c.LegsPerParlay}
}

// Legs returns the ranked candidate legs
func (s *Suggestions) Legs() []Leg {
	return append([]Leg(nil), s.legs...)
}

// All yields parlays by descending confidence. Every call starts a fresh cursor.
func (s *Suggestions) All() iter.Seq[ParlaySuggestion] {
	return func(yield func(ParlaySuggestion) bool) {
		s.walk(nil, yield)
	}
}

// Take returns at most n suggestions from the top of the sequence
func (s *Suggestions) Take(n int) []ParlaySuggestion {
	if n <= 0 {
		return nil
	}
	out := make([]ParlaySuggestion, 0, n)
	for p := range s.All() {
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	return out
}

// InjuryFactor scales confidence down for each injured player, never below 0.5
func InjuryFactor(injuries []models.InjuryRecord) float64 {
	penalty := 0.0
	for _, inj := range injuries {
		penalty += injuryPenalty[inj.Status]
	}
	return math.Max(minInjuryFactor, 1-penalty)
}

func buildLeg(team, market string, tally analytics.Tally, factor float64, c Constraints) (Leg, bool) {
	n := tally.Decided()
	if tally.Rate == nil || n == 0 || n < c.MinGames {
		return Leg{}, false
	}

	rate := *tally.Rate
	edge := math.Max(rate, 1-rate) - 0.5
	shrunk := 0.5 + edge*float64(n)/(float64(n)+c.PriorWeight)
	confidence := shrunk * factor
	if confidence <= c.MinLegConfidence {
		return Leg{}, false
	}

	leg := Leg{Team: team, Market: market, Confidence: confidence}
	switch market {
	case MarketSpread:
		leg.Side = SideCover
		if rate < 0.5 {
			leg.Side = SideFade
		}
		leg.Note = fmt.Sprintf("covered %d of last %d decided", tally.Wins, n)
	case MarketTotal:
		leg.Side = SideOver
		if rate < 0.5 {
			leg.Side = SideUnder
		}
		leg.Note = fmt.Sprintf("went over in %d of last %d decided", tally.Wins, n)
	}
	if factor < 1 {
		leg.Note += fmt.Sprintf(", injury factor %.2f", factor)
	}
	return leg, true
}

// walkStats counts enumeration work for a single walk
type walkStats struct {
	popped int
}

// walk expands index tuples best-first. Each successor bumps one index, so a
// child never outranks its parent and pops come out in descending confidence.
func (s *Suggestions) walk(stats *walkStats, yield func(ParlaySuggestion) bool) {
	n, k := len(s.legs), s.k
	if k > n {
		return
	}

	start := make([]int, k)
	for i := range start {
		start[i] = i
	}

	h := &tupleHeap{}
	seen := map[string]bool{tupleKey(start): true}
	heap.Push(h, tuple{idx: start, confidence: s.product(start)})

	for h.Len() > 0 {
		t := heap.Pop(h).(tuple)
		if stats != nil {
			stats.popped++
		}

		if s.distinctTeams(t.idx) {
			if !yield(s.suggestion(t)) {
				return
			}
		}

		for j := 0; j < k; j++ {
			limit := n
			if j+1 < k {
				limit = t.idx[j+1]
			}
			if t.idx[j]+1 >= limit {
				continue
			}
			next := append([]int(nil), t.idx...)
			next[j]++
			key := tupleKey(next)
			if seen[key] {
				continue
			}
			seen[key] = true
			heap.Push(h, tuple{idx: next, confidence: s.product(next)})
		}
	}
}

func (s *Suggestions) product(idx []int) float64 {
	p := 1.0
	for _, i := range idx {
		p *= s.legs[i].Confidence
	}
	return p
}

func (s *Suggestions) distinctTeams(idx []int) bool {
	seen := make(map[string]bool, len(idx))
	for _, i := range idx {
		team := s.legs[i].Team
		if seen[team] {
			return false
		}
		seen[team] = true
	}
	return true
}

func (s *Suggestions) suggestion(t tuple) ParlaySuggestion {
	legs := make([]Leg, len(t.idx))
	for i, idx := range t.idx {
		legs[i] = s.legs[idx]
	}
	return ParlaySuggestion{Legs: legs, Confidence: t.confidence}
}

func tupleKey(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

type tuple struct {
	idx        []int
	confidence float64
}

// tupleHeap orders by confidence desc, then index tuple ascending
type tupleHeap []tuple

func (h tupleHeap) Len() int { return len(h) }

func (h tupleHeap) Less(i, j int) bool {
	if h[i].confidence != h[j].confidence {
		return h[i].confidence > h[j].confidence
	}
	for x := range h[i].idx {
		if h[i].idx[x] != h[j].idx[x] {
			return h[i].idx[x] < h[j].idx[x]
		}
	}
	return false
}

func (h tupleHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *tupleHeap) Push(x any) { *h = append(*h, x.(tuple)) }

func (h *tupleHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
