//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRepository_Upsert(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	observed := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	rec, err := NewRecord(KindGame, "101", []string{"CHI", "NYK"}, observed, map[string]any{"status": "scheduled"})
	require.NoError(t, err)

	changed, err := db.Records.Upsert(ctx, rec)
	require.NoError(t, err, "Should insert record")
	assert.True(t, changed)

	changed, err = db.Records.Upsert(ctx, rec)
	require.NoError(t, err, "Should accept duplicate record")
	assert.False(t, changed, "Unchanged payload should not update the row")

	rec, err = NewRecord(KindGame, "101", []string{"CHI", "NYK"}, observed, map[string]any{"status": "final"})
	require.NoError(t, err)
	changed, err = db.Records.Upsert(ctx, rec)
	require.NoError(t, err, "Should update record")
	assert.True(t, changed)

	stored, err := db.Records.Get(ctx, KindGame, "101")
	require.NoError(t, err)
	require.NotNil(t, stored)
	var payload map[string]string
	require.NoError(t, stored.Decode(&payload))
	assert.Equal(t, "final", payload["status"])
}

func TestRecordRepository_FrozenOdds(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	commence := time.Now().Add(-time.Hour).UTC()
	rec, err := NewRecord(KindOdds, "evt1:fanduel:full_game", []string{"CHI", "BOS"}, commence, map[string]float64{"home_spread": -3.5})
	require.NoError(t, err)
	rec.FrozenAt = &commence

	_, err = db.Records.Upsert(ctx, rec)
	require.NoError(t, err)

	moved, err := NewRecord(KindOdds, "evt1:fanduel:full_game", []string{"CHI", "BOS"}, commence, map[string]float64{"home_spread": -5})
	require.NoError(t, err)
	moved.FrozenAt = &commence

	changed, err := db.Records.Upsert(ctx, moved)
	require.NoError(t, err)
	assert.False(t, changed, "Closing line should be frozen")
}

func TestRecordRepository_Query(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, team := range []string{"CHI", "LAL", "CHI"} {
		at := base.AddDate(0, 0, i)
		rec, err := NewRecord(KindReport, ReportKey(team, at), []string{team}, at, map[string]int{"i": i})
		require.NoError(t, err)
		_, err = db.Records.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	records, err := db.Records.Query(ctx, KindReport, Filter{Team: "CHI"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].ObservedAt.After(records[1].ObservedAt), "Newest first")

	records, err = db.Records.Query(ctx, KindReport, Filter{From: base.AddDate(0, 0, 1), Limit: 1})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	missing, err := db.Records.Get(ctx, KindReport, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
