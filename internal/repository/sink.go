package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"nba_analytics/ingestion/internal/models"

	"github.com/bytedance/sonic"
)

// Kind is the entity kind of a stored record
type Kind string

const (
	KindTeam     Kind = "team"
	KindGame     Kind = "game"
	KindInjury   Kind = "injury"
	KindOdds     Kind = "odds"
	KindReport   Kind = "report"
	KindBatchRun Kind = "batch_run"
)

// Record is one stored entity. (Kind, Key) is its identity.
type Record struct {
	Kind       Kind            `json:"kind"`
	Key        string          `json:"key"`
	Teams      []string        `json:"teams"`
	ObservedAt time.Time       `json:"observed_at"`
	FrozenAt   *time.Time      `json:"frozen_at,omitempty"` // no updates once passed
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Decode unmarshals the payload into v
func (r *Record) Decode(v any) error {
	if err := sonic.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s record %s: %w", r.Kind, r.Key, err)
	}
	return nil
}

// Filter narrows a Query. Zero values mean no constraint.
type Filter struct {
	Team  string
	From  time.Time
	To    time.Time
	Limit int
}

// Sink is an idempotent record store.
//
// Upsert inserts a new key, or replaces the payload of an existing key when it
// differs and the record is not frozen. changed reports whether anything was written.
// Query returns records of one kind, newest observation first.
type Sink interface {
	Upsert(ctx context.Context, rec Record) (changed bool, err error)
	Query(ctx context.Context, kind Kind, f Filter) ([]Record, error)
}

// NewRecord encodes v as the payload of a record
func NewRecord(kind Kind, key string, teams []string, observedAt time.Time, v any) (Record, error) {
	payload, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode %s record %s: %w", kind, key, err)
	}
	return Record{
		Kind:       kind,
		Key:        key,
		Teams:      teams,
		ObservedAt: observedAt.UTC(),
		Payload:    payload,
	}, nil
}

// ReportRecords expands a report into its constituent records plus a snapshot
func ReportRecords(report *models.UnifiedTeamReport) ([]Record, error) {
	var out []Record

	for i := range report.Games {
		g := &report.Games[i]
		rec, err := NewRecord(KindGame, strconv.Itoa(g.GameID), []string{g.HomeTeam, g.AwayTeam}, g.Date, g)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	for i := range report.Injuries {
		inj := &report.Injuries[i]
		rec, err := NewRecord(KindInjury, inj.Key(), []string{inj.TeamAbbr}, inj.ObservedAt, inj)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	for _, line := range report.AllLines() {
		rec, err := NewRecord(KindOdds, line.MarketID, []string{line.HomeTeam, line.AwayTeam}, line.CommenceTime, line)
		if err != nil {
			return nil, err
		}
		frozenAt := line.CommenceTime.UTC()
		rec.FrozenAt = &frozenAt
		out = append(out, rec)
	}

	snapshot, err := NewRecord(KindReport, ReportKey(report.Team.Abbreviation, report.GeneratedAt),
		[]string{report.Team.Abbreviation}, report.GeneratedAt, report)
	if err != nil {
		return nil, err
	}
	out = append(out, snapshot)

	return out, nil
}

// ReportKey identifies one saved report snapshot
func ReportKey(team string, generatedAt time.Time) string {
	return team + ":" + generatedAt.UTC().Format(time.RFC3339Nano)
}
