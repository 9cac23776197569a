package engine

import (
	"fmt"
	"slices"
)

const (
	DefaultMaxTeamSize = 4
	DefaultMaxMoves    = 4
)

func DefaultRules() Rules {
	return Rules{MaxTeamSize: DefaultMaxTeamSize, MaxMoves: DefaultMaxMoves}
}

func NewEmptyState() State {
	return State{
		Phase:   PhaseAwaitingOpponent,
		Rosters: [2]Roster{{Active: NoActive}, {Active: NoActive}},
	}
}

// StartBattle fixes both actives to the first roster slot and enters the battling phase.
func StartBattle(s State, a, b []Fighter) State {
	next := s.Clone()
	next.Phase = PhaseBattling
	next.Turn = 0
	next.Rosters[0] = Roster{Fighters: cloneFighters(a), Active: 0}
	next.Rosters[1] = Roster{Fighters: cloneFighters(b), Active: 0}
	next.FreeSwitch = [2]bool{}
	next.Winner = ""
	return next
}

// Forfeit ends a running battle in favour of winner.
func Forfeit(s State, winner Side) State {
	next := s.Clone()
	next.Phase = PhaseGameOver
	next.Winner = winner
	next.FreeSwitch = [2]bool{}
	return next
}

func (s State) Clone() State {
	out := s
	for i := range s.Rosters {
		out.Rosters[i] = Roster{
			Fighters: cloneFighters(s.Rosters[i].Fighters),
			Active:   s.Rosters[i].Active,
		}
	}
	return out
}

func cloneFighters(in []Fighter) []Fighter {
	if in == nil {
		return nil
	}
	out := make([]Fighter, len(in))
	for i, f := range in {
		out[i] = f
		out[i].Moves = slices.Clone(f.Moves)
	}
	return out
}

func ContainsAction(actions []Action, t ActionType) bool {
	for _, a := range actions {
		if a.Type == t {
			return true
		}
	}
	return false
}

// ValidateRoster checks a submitted team before battle: size bounds, full health and usable moves.
func ValidateRoster(r Rules, fighters []Fighter) error {
	maxTeam := r.MaxTeamSize
	if maxTeam <= 0 {
		maxTeam = DefaultMaxTeamSize
	}
	maxMoves := r.MaxMoves
	if maxMoves <= 0 {
		maxMoves = DefaultMaxMoves
	}

	if len(fighters) < 1 || len(fighters) > maxTeam {
		return fmt.Errorf("%w: team size %d, want 1..%d", ErrInvalidRoster, len(fighters), maxTeam)
	}
	for i, f := range fighters {
		if f.MaxHealth <= 0 || f.Health != f.MaxHealth {
			return fmt.Errorf("%w: fighter %d (%s) must be at full health", ErrInvalidRoster, i, f.Name)
		}
		if f.Attack <= 0 || f.SpecialAttack <= 0 || f.Defense <= 0 || f.SpecialDefense <= 0 || f.Speed <= 0 {
			return fmt.Errorf("%w: fighter %d (%s) has non-positive stats", ErrInvalidRoster, i, f.Name)
		}
		if len(f.Moves) < 1 || len(f.Moves) > maxMoves {
			return fmt.Errorf("%w: fighter %d (%s) has %d moves, want 1..%d", ErrInvalidRoster, i, f.Name, len(f.Moves), maxMoves)
		}
		for _, mv := range f.Moves {
			if mv.Category != CategoryPhysical && mv.Category != CategorySpecial {
				return fmt.Errorf("%w: move %q has unknown category %q", ErrInvalidRoster, mv.Name, mv.Category)
			}
			if mv.Power < 0 {
				return fmt.Errorf("%w: move %q has negative power", ErrInvalidRoster, mv.Name)
			}
		}
	}
	return nil
}

// ValidateMove reports whether side may commit mv in state s. It does not look at pending moves.
func ValidateMove(s State, side Side, mv PendingMove) error {
	if s.Phase != PhaseBattling {
		return ErrNotYourTurnPhase
	}
	if s.FreeSwitch[side.Opponent().Index()] && !s.FreeSwitch[side.Index()] {
		return ErrAwaitingSwitch
	}

	roster := s.Rosters[side.Index()]
	switch mv.Kind {
	case MoveAttack:
		active := roster.ActiveFighter()
		if active == nil || active.Fainted() {
			return ErrActiveFainted
		}
		if mv.Index < 0 || mv.Index >= len(active.Moves) {
			return fmt.Errorf("%w: move index %d", ErrInvalidMove, mv.Index)
		}
		return nil
	case MoveSwitch:
		if mv.Index < 0 || mv.Index >= len(roster.Fighters) {
			return fmt.Errorf("%w: roster index %d", ErrInvalidSwitch, mv.Index)
		}
		if mv.Index == roster.Active {
			return fmt.Errorf("%w: fighter %d is already active", ErrInvalidSwitch, mv.Index)
		}
		if roster.Fighters[mv.Index].Fainted() {
			return fmt.Errorf("%w: fighter %d has fainted", ErrInvalidSwitch, mv.Index)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMove, mv.Kind)
	}
}
