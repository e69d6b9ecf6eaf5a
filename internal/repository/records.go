package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nba_analytics/ingestion/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// RecordRepository stores records in the records table
type RecordRepository struct {
	db *Database
}

var _ Sink = (*RecordRepository)(nil)

// Upsert inserts or updates a record. Unchanged payloads and frozen rows are left alone.
func (r *RecordRepository) Upsert(ctx context.Context, rec Record) (bool, error) {
	query := `
		INSERT INTO records (kind, key, teams, observed_at, frozen_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, key) DO UPDATE SET
			teams = EXCLUDED.teams,
			observed_at = EXCLUDED.observed_at,
			frozen_at = EXCLUDED.frozen_at,
			payload = EXCLUDED.payload,
			updated_at = NOW()
		WHERE records.payload IS DISTINCT FROM EXCLUDED.payload
		  AND (records.frozen_at IS NULL OR records.frozen_at > NOW())
	`

	teams := rec.Teams
	if teams == nil {
		teams = []string{}
	}

	start := time.Now()
	tag, err := r.db.Pool.Exec(ctx, query,
		string(rec.Kind), rec.Key, teams, rec.ObservedAt, rec.FrozenAt, []byte(rec.Payload),
	)
	if err != nil {
		metrics.RecordDBQuery("upsert", string(rec.Kind), "error", time.Since(start).Seconds())
		return false, fmt.Errorf("failed to upsert %s record %s: %w", rec.Kind, rec.Key, err)
	}
	metrics.RecordDBQuery("upsert", string(rec.Kind), "success", time.Since(start).Seconds())

	changed := tag.RowsAffected() > 0
	log.Debug().
		Str("kind", string(rec.Kind)).
		Str("key", rec.Key).
		Bool("changed", changed).
		Msg("Record upserted")

	return changed, nil
}

// Query retrieves records of one kind, newest observation first
func (r *RecordRepository) Query(ctx context.Context, kind Kind, f Filter) ([]Record, error) {
	var (
		where = []string{"kind = $1"}
		args  = []any{string(kind)}
	)
	if f.Team != "" {
		args = append(args, f.Team)
		where = append(where, fmt.Sprintf("$%d = ANY(teams)", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("observed_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("observed_at <= $%d", len(args)))
	}

	query := `
		SELECT kind, key, teams, observed_at, frozen_at, payload, created_at, updated_at
		FROM records
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY observed_at DESC, key
	`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		metrics.RecordDBQuery("query", string(kind), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to query %s records: %w", kind, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			k       string
			payload []byte
		)
		if err := rows.Scan(&k, &rec.Key, &rec.Teams, &rec.ObservedAt, &rec.FrozenAt, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", kind, err)
		}
		rec.Kind = Kind(k)
		rec.Payload = payload
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s records: %w", kind, err)
	}
	metrics.RecordDBQuery("query", string(kind), "success", time.Since(start).Seconds())

	return records, nil
}

// Get retrieves a single record, or nil if the key is unknown
func (r *RecordRepository) Get(ctx context.Context, kind Kind, key string) (*Record, error) {
	query := `
		SELECT kind, key, teams, observed_at, frozen_at, payload, created_at, updated_at
		FROM records
		WHERE kind = $1 AND key = $2
	`

	var (
		rec     Record
		k       string
		payload []byte
	)
	err := r.db.Pool.QueryRow(ctx, query, string(kind), key).Scan(
		&k, &rec.Key, &rec.Teams, &rec.ObservedAt, &rec.FrozenAt, &payload, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record %s: %w", kind, key, err)
	}

	rec.Kind = Kind(k)
	rec.Payload = payload
	return &rec, nil
}
