package ws

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/hub"
	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/DoyleJ11/duel-backend/internal/types"
)

const (
	codeBadRequest      = "bad_request"
	codeUnauthenticated = "unauthenticated"
	codeInternal        = "internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{match.ErrMatchFull, "match_full"},
	{hub.ErrNotFound, "not_found"},
	{engine.ErrInvalidRoster, "invalid_roster"},
	{match.ErrNotTeamSelection, "not_team_selection"},
	{engine.ErrNotYourTurnPhase, "not_your_turn_phase"},
	{engine.ErrAwaitingSwitch, "awaiting_switch"},
	{engine.ErrActiveFainted, "active_fainted"},
	{engine.ErrInvalidMove, "invalid_move"},
	{engine.ErrInvalidSwitch, "invalid_switch"},
	{match.ErrDuplicateSubmission, "duplicate_submission"},
	{match.ErrUnknownSeat, "unknown_seat"},
	{match.ErrSeatConnected, "seat_connected"},
	{match.ErrReconnectExpired, "reconnect_expired"},
	{match.ErrMatchOver, "match_over"},
	{match.ErrMatchClosed, "match_closed"},
	{hub.ErrHubClosed, "match_closed"},
}

// codeFor maps an error to its stable wire code.
func codeFor(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return codeInternal
}

func toPendingMove(cm types.ClientMessage) (engine.PendingMove, error) {
	switch cm.Kind {
	case types.KindAttack:
		if cm.MoveIndex == nil {
			return engine.PendingMove{}, errors.New("attack without moveIndex")
		}
		return engine.Attack(*cm.MoveIndex), nil
	case types.KindSwitch:
		if cm.RosterIndex == nil {
			return engine.PendingMove{}, errors.New("switch without rosterIndex")
		}
		return engine.Switch(*cm.RosterIndex), nil
	default:
		return engine.PendingMove{}, fmt.Errorf("unknown move kind %q", cm.Kind)
	}
}

func fromEvent(ev match.Event) types.ServerMessage {
	msg := types.ServerMessage{
		Type:        string(ev.Type),
		Version:     ev.Version,
		MatchID:     ev.MatchID,
		Side:        ev.Side,
		PendingSide: ev.PendingSide,
		Phase:       ev.Phase,
		Options:     ev.Options,
		Winner:      ev.Winner,
		From:        ev.From,
		Text:        ev.Text,
		Reason:      ev.Reason,
	}
	if ev.State.Phase == engine.PhaseBattling || ev.State.Phase == engine.PhaseGameOver {
		rosters, free := ev.State.Rosters, ev.State.FreeSwitch
		msg.Rosters = &rosters
		msg.FreeSwitch = &free
		msg.Turn = ev.State.Turn
	}
	if ev.Outcome != nil {
		msg.Turn = ev.Outcome.Turn
		msg.Actions = ev.Outcome.Actions
		msg.Log = ev.Outcome.Log
	}
	return msg
}
