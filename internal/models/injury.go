package models

import (
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"time"
)

// InjuryStatus is a normalized player availability designation
type InjuryStatus string

const (
	InjuryOut          InjuryStatus = "out"
	InjuryDoubtful     InjuryStatus = "doubtful"
	InjuryQuestionable InjuryStatus = "questionable"
	InjuryProbable     InjuryStatus = "probable"
	InjuryAvailable    InjuryStatus = "available"
)

// InjuryRecord is a point-in-time observation of a player's status
type InjuryRecord struct {
	PlayerID    int            `json:"player_id" db:"player_id"`
	PlayerName  string         `json:"player_name" db:"player_name"`
	TeamID      int            `json:"team_id" db:"team_id"`
	TeamAbbr    string         `json:"team_abbr" db:"team_abbr"`
	Status      InjuryStatus   `json:"status" db:"status"`
	Description sql.NullString `json:"description" db:"description"`
	ReturnDate  sql.NullString `json:"return_date" db:"return_date"`
	ObservedAt  time.Time      `json:"observed_at" db:"observed_at"`
}

// Key identifies one observation
func (r *InjuryRecord) Key() string {
	return strconv.Itoa(r.PlayerID) + ":" + strconv.FormatInt(r.ObservedAt.UTC().Unix(), 10)
}

// InjuryInput is an injury entry from the BallDontLie API
type InjuryInput struct {
	Player struct {
		ID        int    `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		TeamID    int    `json:"team_id"`
	} `json:"player"`
	ReturnDate  string `json:"return_date"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// ToInjuryRecord converts InjuryInput (from API) to InjuryRecord model
func (ii *InjuryInput) ToInjuryRecord(team Team, observedAt time.Time) InjuryRecord {
	rec := InjuryRecord{
		PlayerID:   ii.Player.ID,
		PlayerName: strings.TrimSpace(ii.Player.FirstName + " " + ii.Player.LastName),
		TeamID:     team.ID,
		TeamAbbr:   team.Abbreviation,
		Status:     ParseInjuryStatus(ii.Status),
		ObservedAt: observedAt.UTC(),
	}
	if ii.Description != "" {
		rec.Description = sql.NullString{String: ii.Description, Valid: true}
	}
	if ii.ReturnDate != "" {
		rec.ReturnDate = sql.NullString{String: ii.ReturnDate, Valid: true}
	}
	return rec
}

// ParseInjuryStatus maps provider designations onto InjuryStatus.
// Unknown designations are treated as questionable.
func ParseInjuryStatus(s string) InjuryStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "out", "out for season", "inactive", "suspended":
		return InjuryOut
	case "doubtful":
		return InjuryDoubtful
	case "probable":
		return InjuryProbable
	case "available", "active":
		return InjuryAvailable
	default:
		// "Day-To-Day", "Questionable", "GTD"
		return InjuryQuestionable
	}
}

// CurrentInjuries keeps the most recent observation per player, ordered by player name
func CurrentInjuries(records []InjuryRecord) []InjuryRecord {
	latest := make(map[int]InjuryRecord, len(records))
	for _, r := range records {
		prev, ok := latest[r.PlayerID]
		if !ok || r.ObservedAt.After(prev.ObservedAt) {
			latest[r.PlayerID] = r
		}
	}

	out := make([]InjuryRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlayerName != out[j].PlayerName {
			return out[i].PlayerName < out[j].PlayerName
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}
