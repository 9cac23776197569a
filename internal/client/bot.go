package client

import (
	"fmt"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/types"
	"go.uber.org/zap"
)

// Bot plays a match on a Client with a fixed strategy: pick the first TeamSize offered fighters,
// always use the first move, and switch to the first fighter still standing when owed a free switch.
type Bot struct {
	C        *Client
	TeamSize int
	// Timeout bounds the wait for any single server message.
	Timeout time.Duration
	Log     *zap.Logger

	side engine.Side
}

// Play joins matchID and plays until the match ends. It returns the final MatchOver or MatchAborted message.
func (b *Bot) Play(matchID string) (types.ServerMessage, error) {
	if b.Log == nil {
		b.Log = zap.NewNop()
	}
	if b.TeamSize <= 0 {
		b.TeamSize = 1
	}
	if b.Timeout <= 0 {
		b.Timeout = time.Minute
	}
	if err := b.C.Join(matchID); err != nil {
		return types.ServerMessage{}, err
	}

	for {
		msg, err := b.C.Next(b.Timeout)
		if err != nil {
			return msg, err
		}
		switch msg.Type {
		case types.MsgMatchFull:
			return msg, fmt.Errorf("match %s is full", matchID)

		case types.MsgError:
			b.Log.Warn("server rejected message", zap.String("code", msg.Code), zap.String("error", msg.Error))

		case "SeatAssigned":
			b.side = msg.Side
			b.Log.Info("seated", zap.String("match_id", msg.MatchID), zap.String("side", string(msg.Side)))
			switch msg.Phase {
			case engine.PhaseAwaitingOpponent, engine.PhaseTeamSelection:
				if err := b.pickTeam(msg.Options); err != nil {
					return msg, err
				}
			case engine.PhaseBattling:
				if err := b.act(msg); err != nil {
					return msg, err
				}
			}

		case "BattleStart", "TurnOutcome":
			if len(msg.Log) > 0 {
				b.Log.Debug("turn", zap.Int("turn", msg.Turn), zap.Strings("log", msg.Log))
			}
			if err := b.act(msg); err != nil {
				return msg, err
			}

		case "MatchOver", "MatchAborted":
			b.Log.Info("match ended", zap.String("type", msg.Type), zap.String("winner", msg.Winner), zap.String("reason", msg.Reason))
			return msg, nil
		}
	}
}

func (b *Bot) pickTeam(options []engine.Fighter) error {
	if len(options) == 0 {
		// rejoined after submitting, or the server offers no catalog
		b.Log.Info("no fighters offered, waiting for battle")
		return nil
	}
	n := min(b.TeamSize, len(options))
	return b.C.SubmitRoster(options[:n])
}

func (b *Bot) act(msg types.ServerMessage) error {
	if msg.Rosters == nil || msg.FreeSwitch == nil {
		return nil
	}
	me, opp := b.side.Index(), b.side.Opponent().Index()
	switch {
	case msg.FreeSwitch[me]:
		for i, f := range msg.Rosters[me].Fighters {
			if !f.Fainted() {
				return b.C.Switch(i, true)
			}
		}
		return nil
	case msg.FreeSwitch[opp]:
		// opponent must replace a fainted fighter before the next turn
		return nil
	default:
		return b.C.Attack(0)
	}
}
