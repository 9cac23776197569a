package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/match"
	_ "modernc.org/sqlite"
)

// SQLite stores results in a single local file. Used for development and single-node deploys.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; avoids SQLITE_BUSY under concurrent recorders
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS match_results (
			id TEXT PRIMARY KEY,
			side_a TEXT NOT NULL,
			side_b TEXT NOT NULL,
			winner TEXT NOT NULL DEFAULT '',
			loser TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL,
			turns INTEGER NOT NULL DEFAULT 0,
			log TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_side_a ON match_results(side_a, finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_results_side_b ON match_results(side_b, finished_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Record(ctx context.Context, res match.Result) error {
	rec := FromResult(res)
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO match_results (
		id, side_a, side_b, winner, loser, reason, turns, log, started_at, finished_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SideA, rec.SideB, rec.Winner, rec.Loser, rec.Reason, rec.Turns, rec.Log,
		formatTime(rec.StartedAt), formatTime(rec.FinishedAt), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) History(ctx context.Context, identity string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, side_a, side_b, winner, loser, reason, turns, log, started_at, finished_at, created_at
		FROM match_results
		WHERE side_a = ? OR side_b = ?
		ORDER BY finished_at DESC, id
		LIMIT ?`, identity, identity, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var started, finished, created string
		if err := rows.Scan(&rec.ID, &rec.SideA, &rec.SideB, &rec.Winner, &rec.Loser, &rec.Reason,
			&rec.Turns, &rec.Log, &started, &finished, &created); err != nil {
			return nil, err
		}
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if rec.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Times are stored as fixed-width UTC text so ORDER BY sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", v, err)
	}
	return t, nil
}
