package match

import (
	"context"

	"github.com/DoyleJ11/duel-backend/internal/engine"
)

func (m *Match) enqueue(ctx context.Context, msg Msg) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrMatchClosed
	}
}

func await[T any](ctx context.Context, m *Match, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.ctx.Done():
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrMatchClosed
		}
	}
}

// Join binds identity to a seat and registers outbox for that seat's events.
// The first event on outbox is always SeatAssigned.
func (m *Match) Join(ctx context.Context, identity, connID string, outbox chan Event) (engine.Side, error) {
	reply := make(chan JoinResult, 1)
	if err := m.enqueue(ctx, Join{Identity: identity, ConnID: connID, Outbox: outbox, Reply: reply}); err != nil {
		return "", err
	}
	res, err := await(ctx, m, reply)
	if err != nil {
		return "", err
	}
	return res.Side, res.Err
}

func (m *Match) Leave(ctx context.Context, connID string) error {
	return m.enqueue(ctx, Leave{ConnID: connID})
}

func (m *Match) SubmitRoster(ctx context.Context, identity string, fighters []engine.Fighter) error {
	reply := make(chan error, 1)
	if err := m.enqueue(ctx, SubmitRoster{Identity: identity, Fighters: fighters, Reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, m, reply)
	if err != nil {
		return err
	}
	return res
}

// SubmitMove records a move for the current turn. It returns once the move is recorded;
// resolution, when it happens, is published to both seats as events.
func (m *Match) SubmitMove(ctx context.Context, identity string, mv engine.PendingMove) error {
	reply := make(chan error, 1)
	if err := m.enqueue(ctx, SubmitMove{Identity: identity, Move: mv, Reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, m, reply)
	if err != nil {
		return err
	}
	return res
}

func (m *Match) Chat(ctx context.Context, identity, text string) error {
	return m.enqueue(ctx, Chat{Identity: identity, Text: text})
}

func (m *Match) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := m.enqueue(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, m, reply)
}

func (m *Match) Shutdown() {
	select {
	case m.inbox <- Shutdown{}:
	case <-m.ctx.Done():
	}
}
