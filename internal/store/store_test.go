package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

var t0 = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func result(id, a, b string, finished time.Time) match.Result {
	return match.Result{
		MatchID:     id,
		Identities:  [2]string{a, b},
		WinningSide: engine.SideA,
		Winner:      a,
		Loser:       b,
		Reason:      "knockout",
		Turns:       3,
		Log:         []string{"Pikachu used Thunderbolt", "Eevee fainted"},
		StartedAt:   finished.Add(-time.Minute),
		FinishedAt:  finished,
	}
}

// exercises both local implementations with the same expectations
func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, result("m1", "alice", "bob", t0)))
	require.NoError(t, s.Record(ctx, result("m2", "carol", "alice", t0.Add(time.Hour))))
	require.NoError(t, s.Record(ctx, result("m3", "bob", "carol", t0.Add(2*time.Hour))))
	// duplicate delivery is ignored
	require.NoError(t, s.Record(ctx, result("m1", "alice", "bob", t0)))

	hist, err := s.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "m2", hist[0].ID)
	assert.Equal(t, "m1", hist[1].ID)

	m1 := hist[1]
	assert.Equal(t, "alice", m1.SideA)
	assert.Equal(t, "bob", m1.SideB)
	assert.Equal(t, "alice", m1.Winner)
	assert.Equal(t, "knockout", m1.Reason)
	assert.Equal(t, 3, m1.Turns)
	assert.Equal(t, "Pikachu used Thunderbolt\nEevee fainted", m1.Log)
	assert.True(t, t0.Equal(m1.FinishedAt))
	assert.True(t, t0.Add(-time.Minute).Equal(m1.StartedAt))

	hist, err = s.History(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "m2", hist[0].ID)

	hist, err = s.History(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	testStore(t, s)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), result("m1", "alice", "bob", t0)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	hist, err := s.History(context.Background(), "bob", 5)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "m1", hist[0].ID)
}

func TestOpen_Drivers(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(Options{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Options{Driver: "mongo"})
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}

type flakyRecorder struct {
	failures int
	calls    int
	got      []match.Result
}

func (f *flakyRecorder) Record(_ context.Context, res match.Result) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	f.got = append(f.got, res)
	return nil
}

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	flaky := &flakyRecorder{failures: 2}
	r := NewRetrying(flaky, 3, time.Millisecond, nil)

	require.NoError(t, r.Record(context.Background(), result("m1", "a", "b", t0)))
	assert.Equal(t, 3, flaky.calls)
	require.Len(t, flaky.got, 1)
}

func TestRetrying_GivesUp(t *testing.T) {
	flaky := &flakyRecorder{failures: 10}
	r := NewRetrying(flaky, 2, time.Millisecond, nil)

	err := r.Record(context.Background(), result("m1", "a", "b", t0))
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestMulti_AttemptsAllAndCombinesErrors(t *testing.T) {
	bad1 := &flakyRecorder{failures: 1}
	good := &flakyRecorder{}
	bad2 := &flakyRecorder{failures: 1}

	err := Multi{bad1, good, bad2}.Record(context.Background(), result("m1", "a", "b", t0))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Len(t, good.got, 1)
}
