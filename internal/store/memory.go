package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/match"
)

// Memory keeps results for the life of the process.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record), now: time.Now}
}

func (m *Memory) Record(ctx context.Context, res match.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[res.MatchID]; ok {
		return nil // already recorded
	}
	rec := FromResult(res)
	rec.CreatedAt = m.now().UTC()
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) History(ctx context.Context, identity string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, rec := range m.records {
		if rec.SideA == identity || rec.SideB == identity {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b Record) int {
		if c := b.FinishedAt.Compare(a.FinishedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

