package match

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"go.uber.org/zap"
)

func (m *Match) handleJoin(msg Join) (engine.Side, error) {
	if msg.Outbox == nil {
		return "", errors.New("join without outbox")
	}

	if i, s := m.seatOf(msg.Identity); s != nil {
		if err := m.canRebind(s); err != nil {
			return "", err
		}
		if s.connected {
			// same identity reconnecting while still waiting: newest connection wins
			close(s.outbox)
		}
		m.stopGraceTimer(i)
		m.bind(i, msg)
		m.log.Info("seat rebound", zap.String("side", string(engine.Sides[i])), zap.String("identity", msg.Identity))
		return engine.Sides[i], nil
	}

	if m.state.Phase == engine.PhaseGameOver {
		return "", ErrMatchOver
	}
	for i, s := range m.seats {
		if s != nil {
			continue
		}
		m.seats[i] = &seat{identity: msg.Identity}
		m.bind(i, msg)
		m.log.Info("seat assigned", zap.String("side", string(engine.Sides[i])), zap.String("identity", msg.Identity))

		if m.seats[0] != nil && m.seats[1] != nil && m.state.Phase == engine.PhaseAwaitingOpponent {
			m.state.Phase = engine.PhaseTeamSelection
			m.version++
			m.send(1-i, Event{Type: EvtOpponentJoined, Side: engine.Sides[i], Phase: m.state.Phase})
			m.maybeStartBattle()
		}
		return engine.Sides[i], nil
	}
	return "", ErrMatchFull
}

func (m *Match) canRebind(s *seat) error {
	switch {
	case m.state.Phase == engine.PhaseGameOver:
		return ErrMatchOver
	case m.state.Phase == engine.PhaseAwaitingOpponent:
		return nil
	case s.connected:
		return ErrSeatConnected
	case m.cfg.ReconnectGrace > 0 && m.cfg.Now().Sub(s.disconnectedAt) <= m.cfg.ReconnectGrace:
		return nil
	default:
		return ErrReconnectExpired
	}
}

func (m *Match) bind(i int, msg Join) {
	s := m.seats[i]
	s.connID = msg.ConnID
	s.outbox = msg.Outbox
	s.connected = true

	ev := Event{Type: EvtSeatAssigned, Side: engine.Sides[i], Phase: m.state.Phase}
	if !s.ready && m.cfg.Options != nil {
		ev.Options = m.cfg.Options()
	}
	if m.state.Phase == engine.PhaseBattling || m.state.Phase == engine.PhaseGameOver {
		ev.State = m.state.Clone()
	}
	m.send(i, ev)
	m.updateIdle()
}

func (m *Match) handleRoster(msg SubmitRoster) error {
	_, s := m.seatOf(msg.Identity)
	if s == nil {
		return ErrUnknownSeat
	}
	if m.state.Phase != engine.PhaseAwaitingOpponent && m.state.Phase != engine.PhaseTeamSelection {
		return ErrNotTeamSelection
	}
	if err := engine.ValidateRoster(m.cfg.Rules, msg.Fighters); err != nil {
		return err
	}
	if m.cfg.VerifyRoster != nil {
		if err := m.cfg.VerifyRoster(msg.Fighters); err != nil {
			if !errors.Is(err, engine.ErrInvalidRoster) {
				err = fmt.Errorf("%w: %v", engine.ErrInvalidRoster, err)
			}
			return err
		}
	}

	s.roster = slices.Clone(msg.Fighters)
	s.ready = true
	m.maybeStartBattle()
	return nil
}

func (m *Match) maybeStartBattle() {
	if m.state.Phase != engine.PhaseTeamSelection {
		return
	}
	a, b := m.seats[0], m.seats[1]
	if a == nil || b == nil || !a.ready || !b.ready {
		return
	}

	m.state = engine.StartBattle(m.state, a.roster, b.roster)
	m.startedAt = m.cfg.Now()
	m.version++
	m.log.Info("battle started", zap.String("side_a", a.identity), zap.String("side_b", b.identity))
	m.broadcast(Event{Type: EvtBattleStart, Phase: m.state.Phase, State: m.state.Clone()})
}

func (m *Match) handleMove(msg SubmitMove) error {
	i, s := m.seatOf(msg.Identity)
	if s == nil {
		return ErrUnknownSeat
	}
	side := engine.Sides[i]
	if err := engine.ValidateMove(m.state, side, msg.Move); err != nil {
		return err
	}
	if !s.pending.IsZero() {
		return ErrDuplicateSubmission
	}
	s.pending = msg.Move

	other := m.seats[1-i]
	switch {
	case m.state.FreeSwitch[i]:
		m.resolve()
	case !other.pending.IsZero():
		m.resolve()
	default:
		m.send(i, Event{Type: EvtWaitingOnOpponent, PendingSide: side.Opponent()})
		m.armTurnTimer(side.Opponent())
	}
	return nil
}

func (m *Match) resolve() {
	a, b := m.seats[0], m.seats[1]
	moveA, moveB := a.pending, b.pending
	a.pending, b.pending = engine.PendingMove{}, engine.PendingMove{}
	m.stopTurnTimer()

	out, err := m.cfg.Resolver.Resolve(m.state, moveA, moveB)
	if err != nil {
		m.abort(err)
		return
	}

	m.state = out.State
	m.transcript = append(m.transcript, out.Log...)
	m.version++
	if engine.ContainsAction(out.Actions, engine.ActFaint) {
		m.log.Debug("fighter fainted", zap.Int("turn", out.Turn), zap.Strings("log", out.Log))
	}
	m.broadcast(Event{Type: EvtTurnOutcome, Phase: m.state.Phase, State: m.state.Clone(), Outcome: &out})

	if out.GameOver() {
		m.finish("knockout")
		return
	}
	for _, side := range engine.Sides {
		if m.state.FreeSwitch[side.Index()] {
			m.armTurnTimer(side)
		}
	}
}

func (m *Match) handleChat(msg Chat) {
	i, s := m.seatOf(msg.Identity)
	if s == nil {
		m.log.Debug("chat from unknown identity", zap.String("identity", msg.Identity))
		return
	}
	m.broadcast(Event{Type: EvtChat, Side: engine.Sides[i], From: s.identity, Text: msg.Text})
}

func (m *Match) handleTimer(msg timerFired) {
	i := msg.side.Index()
	switch msg.kind {
	case turnTimer:
		if m.state.Phase != engine.PhaseBattling || msg.gen != m.turnGen || !m.owesMove(i) {
			return // stale
		}
		m.log.Info("turn timeout", zap.String("side", string(msg.side)))
		m.state = engine.Forfeit(m.state, msg.side.Opponent())
		m.version++
		m.finish("turn timeout")

	case graceTimer:
		s := m.seats[i]
		if msg.gen != m.graceGen[i] || s == nil || s.connected {
			return
		}
		switch m.state.Phase {
		case engine.PhaseBattling:
			m.log.Info("reconnect window expired", zap.String("side", string(msg.side)))
			m.state = engine.Forfeit(m.state, msg.side.Opponent())
			m.version++
			m.finish("disconnect")
		case engine.PhaseTeamSelection:
			m.releaseSeat(i)
		}
	}
}

// releaseSeat frees a seat abandoned before the battle so another identity can take it.
// The remaining seat keeps its roster.
func (m *Match) releaseSeat(i int) {
	m.log.Info("seat released", zap.String("side", string(engine.Sides[i])), zap.String("identity", m.seats[i].identity))
	m.stopGraceTimer(i)
	m.seats[i] = nil
	m.state.Phase = engine.PhaseAwaitingOpponent
	m.version++
	m.send(1-i, Event{Type: EvtOpponentLeft, Side: engine.Sides[i], Phase: m.state.Phase})
}

// owesMove reports whether seat i is the only thing holding up resolution.
func (m *Match) owesMove(i int) bool {
	s, other := m.seats[i], m.seats[1-i]
	if s == nil || other == nil || !s.pending.IsZero() {
		return false
	}
	return m.state.FreeSwitch[i] || !other.pending.IsZero()
}

func (m *Match) finish(reason string) {
	m.stopTurnTimer()
	for i := range m.seats {
		m.stopGraceTimer(i)
	}

	res := m.result(reason)
	m.log.Info("match over", zap.String("winner", res.Winner), zap.String("reason", reason), zap.Int("turns", res.Turns))
	m.broadcast(Event{
		Type:   EvtMatchOver,
		Phase:  m.state.Phase,
		State:  m.state.Clone(),
		Side:   m.state.Winner,
		Winner: res.Winner,
		Reason: reason,
	})
	if m.cfg.OnFinish != nil {
		m.cfg.OnFinish(res)
	}
}

// abort ends a match whose state no longer satisfies the battle invariants.
func (m *Match) abort(cause error) {
	m.log.Error("aborting match", zap.Error(cause))
	m.stopTurnTimer()
	for i := range m.seats {
		m.stopGraceTimer(i)
	}
	m.state.Phase = engine.PhaseGameOver
	m.state.Winner = ""
	m.state.FreeSwitch = [2]bool{}
	m.version++
	m.broadcast(Event{Type: EvtMatchAborted, Phase: m.state.Phase, Reason: cause.Error()})
	if m.cfg.OnFinish != nil {
		m.cfg.OnFinish(m.result("aborted"))
	}
}

func (m *Match) result(reason string) Result {
	res := Result{
		MatchID:     m.id,
		WinningSide: m.state.Winner,
		Reason:      reason,
		Turns:       m.state.Turn,
		Log:         slices.Clone(m.transcript),
		StartedAt:   m.startedAt,
		FinishedAt:  m.cfg.Now(),
	}
	for i, s := range m.seats {
		if s != nil {
			res.Identities[i] = s.identity
		}
	}
	if m.state.Winner.Valid() {
		res.Winner = res.Identities[m.state.Winner.Index()]
		res.Loser = res.Identities[m.state.Winner.Opponent().Index()]
	}
	return res
}

func (m *Match) armTurnTimer(owed engine.Side) {
	if m.cfg.TurnTimeout <= 0 {
		return
	}
	m.stopTurnTimer()
	m.turnGen++
	m.turnTimer = m.afterFunc(m.cfg.TurnTimeout, timerFired{kind: turnTimer, side: owed, gen: m.turnGen})
}

func (m *Match) stopTurnTimer() {
	if m.turnTimer != nil {
		m.turnTimer.Stop()
		m.turnTimer = nil
	}
	m.turnGen++
}

func (m *Match) armGraceTimer(i int) {
	m.stopGraceTimer(i)
	m.graceGen[i]++
	m.graceTimer[i] = m.afterFunc(m.cfg.ReconnectGrace, timerFired{kind: graceTimer, side: engine.Sides[i], gen: m.graceGen[i]})
}

func (m *Match) stopGraceTimer(i int) {
	if m.graceTimer[i] != nil {
		m.graceTimer[i].Stop()
		m.graceTimer[i] = nil
	}
	m.graceGen[i]++
}

func (m *Match) afterFunc(d time.Duration, msg timerFired) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case m.inbox <- msg:
		case <-m.ctx.Done():
		}
	})
}
