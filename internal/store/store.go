package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/match"
)

// Recorder persists the result of a finished match.
type Recorder interface {
	Record(ctx context.Context, res match.Result) error
}

// HistoryReader lists finished matches an identity took part in, newest first.
type HistoryReader interface {
	History(ctx context.Context, identity string, limit int) ([]Record, error)
}

type Store interface {
	Recorder
	HistoryReader
	Close() error
}

var ErrUnsupportedDriver = errors.New("unsupported store driver")

const DefaultHistoryLimit = 20

// Record is the stored form of match.Result.
type Record struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	SideA      string    `gorm:"index;not null" json:"sideA"`
	SideB      string    `gorm:"index;not null" json:"sideB"`
	Winner     string    `gorm:"index" json:"winner,omitempty"`
	Loser      string    `json:"loser,omitempty"`
	Reason     string    `gorm:"type:varchar(32)" json:"reason"`
	Turns      int       `json:"turns"`
	Log        string    `gorm:"type:text" json:"log"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `gorm:"index" json:"finishedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Record) TableName() string { return "match_results" }

func FromResult(res match.Result) Record {
	return Record{
		ID:         res.MatchID,
		SideA:      res.Identities[0],
		SideB:      res.Identities[1],
		Winner:     res.Winner,
		Loser:      res.Loser,
		Reason:     res.Reason,
		Turns:      res.Turns,
		Log:        strings.Join(res.Log, "\n"),
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: res.FinishedAt.UTC(),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return DefaultHistoryLimit
	}
	return limit
}

type Options struct {
	Driver      string // memory, sqlite or postgres
	DatabaseURL string
	SQLitePath  string
}

func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		g, err := OpenPostgres(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}
}
