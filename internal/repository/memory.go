package repository

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

type memoryKey struct {
	kind Kind
	key  string
}

// MemorySink is an in-process Sink with the same upsert rules as RecordRepository
type MemorySink struct {
	mu      sync.RWMutex
	records map[memoryKey]Record
	now     func() time.Time
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[memoryKey]Record), now: time.Now}
}

func (s *MemorySink) Upsert(ctx context.Context, rec Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	k := memoryKey{rec.Kind, rec.Key}
	existing, ok := s.records[k]
	if !ok {
		rec.CreatedAt = now
		rec.UpdatedAt = now
		s.records[k] = rec
		return true, nil
	}

	if bytes.Equal(existing.Payload, rec.Payload) {
		return false, nil
	}
	if existing.FrozenAt != nil && !existing.FrozenAt.After(now) {
		return false, nil
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = now
	s.records[k] = rec
	return true, nil
}

func (s *MemorySink) Query(ctx context.Context, kind Kind, f Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []Record
	for k, rec := range s.records {
		if k.kind != kind {
			continue
		}
		if f.Team != "" && !slices.Contains(rec.Teams, f.Team) {
			continue
		}
		if !f.From.IsZero() && rec.ObservedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && rec.ObservedAt.After(f.To) {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.After(out[j].ObservedAt)
		}
		return out[i].Key < out[j].Key
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Len returns the number of stored records
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
