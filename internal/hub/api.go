package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/match"
	"go.uber.org/zap"
)

const createAttempts = 5

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func recv[T any](ctx context.Context, h *Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	}
}

// Join is get-or-create: the match is created on first reference, then identity is bound
// to a seat. Seat rules (first free seat, rebinding, MatchFull) belong to the match.
func (h *Hub) Join(ctx context.Context, matchID, identity, connID string, outbox chan match.Event) (*match.Match, engine.Side, error) {
	if matchID == "" {
		return nil, "", fmt.Errorf("%w: empty match id", ErrNotFound)
	}
	reply := make(chan *match.Match, 1)
	if err := h.send(ctx, EnsureMatch{ID: matchID, Reply: reply}); err != nil {
		return nil, "", err
	}
	m, err := recv(ctx, h, reply)
	if err != nil {
		return nil, "", err
	}

	side, err := m.Join(ctx, identity, connID, outbox)
	if err != nil {
		return nil, "", err
	}
	return m, side, nil
}

func (h *Hub) Get(ctx context.Context, matchID string) (*match.Match, error) {
	reply := make(chan *match.Match, 1)
	if err := h.send(ctx, GetMatch{ID: matchID, Reply: reply}); err != nil {
		return nil, err
	}
	m, err := recv(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// Create registers a new empty match under a fresh id. An id already in use is never reused.
func (h *Hub) Create(ctx context.Context) (string, error) {
	for range createAttempts {
		id := h.cfg.NewID()
		reply := make(chan error, 1)
		if err := h.send(ctx, CreateMatch{ID: id, Reply: reply}); err != nil {
			return "", err
		}
		res, err := recv(ctx, h, reply)
		if err != nil {
			return "", err
		}
		if errors.Is(res, ErrMatchExists) {
			h.log.Warn("match id collision, regenerating")
			continue
		}
		return id, res
	}
	return "", ErrMatchExists
}

func (h *Hub) Remove(ctx context.Context, matchID string) error {
	return h.send(ctx, RemoveMatch{ID: matchID})
}

// List returns a view of every live match, ordered by id.
func (h *Hub) List(ctx context.Context) ([]match.View, error) {
	reply := make(chan []*match.Match, 1)
	if err := h.send(ctx, ListMatches{Reply: reply}); err != nil {
		return nil, err
	}
	matches, err := recv(ctx, h, reply)
	if err != nil {
		return nil, err
	}

	views := make([]match.View, 0, len(matches))
	for _, m := range matches {
		v, err := m.View(ctx)
		if errors.Is(err, match.ErrMatchClosed) {
			continue // evicted in the meantime
		}
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	slices.SortFunc(views, func(a, b match.View) int { return strings.Compare(a.ID, b.ID) })
	return views, nil
}

// Sweep evicts finished and abandoned matches older than the grace period and returns their ids.
func (h *Hub) Sweep(ctx context.Context) ([]string, error) {
	return h.SweepAt(ctx, h.cfg.Now())
}

func (h *Hub) SweepAt(ctx context.Context, now time.Time) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.send(ctx, Sweep{Now: now, Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h, reply)
}

// Shutdown stops the reaper, every match and the hub, then waits for in-flight result writes.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		if h.sched == nil {
			return
		}
		if err := h.sched.Shutdown(); err != nil {
			h.log.Warn("reaper shutdown", zap.Error(err))
		}
	})
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
	<-h.stopped
	h.recording.Wait()
}

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }
