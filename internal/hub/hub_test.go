package hub

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/DoyleJ11/duel-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	h := NewHub(context.Background(), cfg)
	t.Cleanup(h.Shutdown)
	return h
}

func fighter(name string, health, speed int) engine.Fighter {
	return engine.Fighter{
		Name: name, MaxHealth: health, Health: health,
		Attack: 50, SpecialAttack: 50, Defense: 50, SpecialDefense: 50, Speed: speed,
		Moves: []engine.Move{{Name: "Tackle", Category: engine.CategoryPhysical, Power: 40}},
	}
}

func drain(ch chan match.Event) {
	go func() {
		for range ch {
		}
	}()
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Config{})

	id, err := h.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	m1, err := h.Get(ctx, id)
	require.NoError(t, err)
	m2, err := h.Get(ctx, id)
	require.NoError(t, err)
	if m1 == nil || m1 != m2 {
		t.Fatalf("expected same match pointer")
	}

	_, err = h.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHub_Create_RegeneratesOnCollision(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	h := newTestHub(t, Config{NewID: func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}})
	ctx := context.Background()

	first, err := h.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dup", first)

	second, err := h.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", second)
}

func TestHub_Join_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Config{})

	outA := make(chan match.Event, 8)
	m, side, err := h.Join(ctx, "arena-1", "alice", "c1", outA)
	require.NoError(t, err)
	assert.Equal(t, engine.SideA, side)

	outB := make(chan match.Event, 8)
	m2, side, err := h.Join(ctx, "arena-1", "bob", "c2", outB)
	require.NoError(t, err)
	assert.Equal(t, engine.SideB, side)
	assert.Same(t, m, m2)

	_, _, err = h.Join(ctx, "arena-1", "carol", "c3", make(chan match.Event, 8))
	require.ErrorIs(t, err, match.ErrMatchFull)

	got, err := h.Get(ctx, "arena-1")
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, _, err = h.Join(ctx, "", "dave", "c4", make(chan match.Event, 8))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHub_List(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Config{})

	_, _, err := h.Join(ctx, "b-match", "alice", "c1", make(chan match.Event, 8))
	require.NoError(t, err)
	_, _, err = h.Join(ctx, "a-match", "bob", "c2", make(chan match.Event, 8))
	require.NoError(t, err)

	views, err := h.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "a-match", views[0].ID)
	assert.Equal(t, "bob", views[0].Seats[0].Identity)
	assert.Equal(t, "b-match", views[1].ID)
	assert.Equal(t, engine.PhaseAwaitingOpponent, views[1].Phase)
}

func TestHub_FinishedMatchIsRecordedThenEvicted(t *testing.T) {
	ctx := context.Background()
	rec := store.NewMemory()
	h := newTestHub(t, Config{
		Recorder:      rec,
		FinishedGrace: time.Minute,
		Match: match.Config{
			Resolver: engine.NewResolver(func(engine.Fighter, engine.Fighter, engine.Move) int { return 100 }),
		},
	})

	outA, outB := make(chan match.Event, 16), make(chan match.Event, 16)
	m, _, err := h.Join(ctx, "final", "alice", "c1", outA)
	require.NoError(t, err)
	_, _, err = h.Join(ctx, "final", "bob", "c2", outB)
	require.NoError(t, err)
	drain(outA)
	drain(outB)

	require.NoError(t, m.SubmitRoster(ctx, "alice", []engine.Fighter{fighter("Gengar", 80, 110)}))
	require.NoError(t, m.SubmitRoster(ctx, "bob", []engine.Fighter{fighter("Magikarp", 80, 20)}))
	require.NoError(t, m.SubmitMove(ctx, "alice", engine.Attack(0)))
	require.NoError(t, m.SubmitMove(ctx, "bob", engine.Attack(0)))

	require.Eventually(t, func() bool {
		hist, err := rec.History(ctx, "bob", 5)
		return err == nil && len(hist) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hist, err := rec.History(ctx, "alice", 5)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "final", hist[0].ID)
	assert.Equal(t, "alice", hist[0].Winner)
	assert.Equal(t, "knockout", hist[0].Reason)

	// still addressable inside the grace period
	evicted, err := h.SweepAt(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, evicted)
	_, err = h.Get(ctx, "final")
	require.NoError(t, err)

	evicted, err = h.SweepAt(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"final"}, evicted)
	_, err = h.Get(ctx, "final")
	require.ErrorIs(t, err, ErrNotFound)

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted match actor still running")
	}
}

func TestHub_Sweep_EvictsAbandonedMatch(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Config{FinishedGrace: time.Minute})

	id, err := h.Create(ctx)
	require.NoError(t, err)

	evicted, err := h.SweepAt(ctx, time.Now().Add(30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, evicted)

	evicted, err = h.SweepAt(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, evicted)
}

func TestHub_Reaper_RunsOnSchedule(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Config{FinishedGrace: 0})
	require.NoError(t, h.StartReaper(20*time.Millisecond))

	id, err := h.Create(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := h.Get(ctx, id)
		return err == ErrNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_Shutdown_ClosesMatches(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, Config{})

	out := make(chan match.Event, 4)
	m, _, err := h.Join(ctx, "x", "alice", "c1", out)
	require.NoError(t, err)
	<-out // SeatAssigned

	h.Shutdown()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("outbox not closed on shutdown")
	}
	<-m.Done()

	_, err = h.Get(ctx, "x")
	require.ErrorIs(t, err, ErrHubClosed)
}
