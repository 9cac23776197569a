package engine

import (
	"errors"
	"fmt"
)

var ErrInvalidRoster = errors.New("invalid roster")
var ErrNotYourTurnPhase = errors.New("match is not battling")
var ErrActiveFainted = errors.New("active fighter has fainted")
var ErrInvalidMove = errors.New("invalid move")
var ErrInvalidSwitch = errors.New("invalid switch")
var ErrAwaitingSwitch = errors.New("waiting for opponent to switch")
var ErrInvariant = errors.New("battle invariant violated")

// NoActive marks a roster whose active fighter fainted and has not been replaced yet.
const NoActive = -1

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Sides lists both seats in resolution tie-break order.
var Sides = [2]Side{SideA, SideB}

func (s Side) Index() int {
	if s == SideB {
		return 1
	}
	return 0
}

func (s Side) Opponent() Side {
	if s == SideB {
		return SideA
	}
	return SideB
}

func (s Side) Valid() bool { return s == SideA || s == SideB }

type Phase string

const (
	PhaseAwaitingOpponent Phase = "awaiting_opponent"
	PhaseTeamSelection    Phase = "team_selection"
	PhaseBattling         Phase = "battling"
	PhaseGameOver         Phase = "game_over"
)

type Category string

const (
	CategoryPhysical Category = "physical"
	CategorySpecial  Category = "special"
)

type Move struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Power    int      `json:"power"`
}

type Fighter struct {
	Name           string `json:"name"`
	MaxHealth      int    `json:"maxHealth"`
	Health         int    `json:"health"`
	Attack         int    `json:"attack"`
	SpecialAttack  int    `json:"specialAttack"`
	Defense        int    `json:"defense"`
	SpecialDefense int    `json:"specialDefense"`
	Speed          int    `json:"speed"`
	Moves          []Move `json:"moves"`
}

func (f Fighter) Fainted() bool { return f.Health <= 0 }

type Roster struct {
	Fighters []Fighter `json:"fighters"`
	Active   int       `json:"active"`
}

// ActiveFighter returns a pointer into the roster, or nil when no fighter is active.
func (r *Roster) ActiveFighter() *Fighter {
	if r.Active < 0 || r.Active >= len(r.Fighters) {
		return nil
	}
	return &r.Fighters[r.Active]
}

func (r Roster) AllFainted() bool {
	for _, f := range r.Fighters {
		if !f.Fainted() {
			return false
		}
	}
	return true
}

type MoveKind string

const (
	MoveAttack MoveKind = "attack"
	MoveSwitch MoveKind = "switch"
)

// PendingMove is the action a side committed for the current turn. The zero value means no move.
type PendingMove struct {
	Kind  MoveKind `json:"kind,omitempty"`
	Index int      `json:"index"`
}

func Attack(moveIndex int) PendingMove   { return PendingMove{Kind: MoveAttack, Index: moveIndex} }
func Switch(rosterIndex int) PendingMove { return PendingMove{Kind: MoveSwitch, Index: rosterIndex} }

func (p PendingMove) IsZero() bool { return p.Kind == "" }

type Rules struct {
	MaxTeamSize int
	MaxMoves    int
}

type State struct {
	Phase      Phase     `json:"phase"`
	Turn       int       `json:"turn"`
	Rosters    [2]Roster `json:"rosters"`
	FreeSwitch [2]bool   `json:"freeSwitch"`
	Winner     Side      `json:"winner,omitempty"`
}

func (s *State) Roster(side Side) *Roster { return &s.Rosters[side.Index()] }

type ActionType string

const (
	ActSwitch ActionType = "switch"
	ActAttack ActionType = "attack"
	ActFaint  ActionType = "faint"
)

type Action struct {
	Type    ActionType `json:"type"`
	Side    Side       `json:"side"`
	Fighter string     `json:"fighter"`
	Move    string     `json:"move,omitempty"`
	Target  string     `json:"target,omitempty"`
	Damage  int        `json:"damage,omitempty"`
	Text    string     `json:"text"`
}

type Outcome struct {
	Turn    int      `json:"turn"`
	Actions []Action `json:"actions"`
	Log     []string `json:"log"`
	State   State    `json:"state"`
}

func (o Outcome) GameOver() bool { return o.State.Phase == PhaseGameOver }

// DamageFunc computes raw damage before it is applied to the defender.
type DamageFunc func(attacker, defender Fighter, mv Move) int

// StandardDamage is a fixed-level variant of the classic formula with no random factor.
func StandardDamage(attacker, defender Fighter, mv Move) int {
	atk, def := attacker.Attack, defender.Defense
	if mv.Category == CategorySpecial {
		atk, def = attacker.SpecialAttack, defender.SpecialDefense
	}
	if def < 1 {
		def = 1
	}
	return (22*mv.Power*atk/def)/50 + 2
}

type Resolver struct {
	Damage DamageFunc
}

func NewResolver(damage DamageFunc) Resolver {
	if damage == nil {
		damage = StandardDamage
	}
	return Resolver{Damage: damage}
}

// Resolve computes the outcome of one turn using StandardDamage.
func Resolve(s State, moveA, moveB PendingMove) (Outcome, error) {
	return NewResolver(nil).Resolve(s, moveA, moveB)
}

// Resolve is pure: s is copied before any change, so callers may keep using it.
func (r Resolver) Resolve(s State, moveA, moveB PendingMove) (Outcome, error) {
	if s.Phase != PhaseBattling {
		return Outcome{}, fmt.Errorf("%w: resolve in phase %s", ErrInvariant, s.Phase)
	}
	moves := [2]PendingMove{moveA, moveB}
	if err := checkMoves(s, moves); err != nil {
		return Outcome{}, err
	}

	damage := r.Damage
	if damage == nil {
		damage = StandardDamage
	}

	next := s.Clone()
	next.Turn++
	rc := newTurnContext(&next)

	for _, side := range Sides {
		mv := moves[side.Index()]
		if mv.Kind != MoveSwitch {
			continue
		}
		roster := next.Roster(side)
		roster.Active = mv.Index
		next.FreeSwitch[side.Index()] = false
		name := roster.Fighters[mv.Index].Name
		rc.add(Action{
			Type:    ActSwitch,
			Side:    side,
			Fighter: name,
			Text:    fmt.Sprintf("Side %s sent out %s!", side, name),
		})
	}

	for _, side := range attackOrder(next, moves) {
		attacker := next.Roster(side).ActiveFighter()
		if attacker == nil {
			// fainted earlier this turn
			continue
		}
		defRoster := next.Roster(side.Opponent())
		defender := defRoster.ActiveFighter()
		if defender == nil {
			continue
		}
		mv := attacker.Moves[moves[side.Index()].Index]
		dealt := applyDamage(defender, damage(*attacker, *defender, mv))
		rc.add(Action{
			Type:    ActAttack,
			Side:    side,
			Fighter: attacker.Name,
			Move:    mv.Name,
			Target:  defender.Name,
			Damage:  dealt,
			Text:    fmt.Sprintf("%s used %s! %s took %d damage.", attacker.Name, mv.Name, defender.Name, dealt),
		})

		if !defender.Fainted() {
			continue
		}
		loser := side.Opponent()
		rc.add(Action{
			Type:    ActFaint,
			Side:    loser,
			Fighter: defender.Name,
			Text:    fmt.Sprintf("%s fainted!", defender.Name),
		})
		defRoster.Active = NoActive
		if defRoster.AllFainted() {
			next.Phase = PhaseGameOver
			next.Winner = side
			next.FreeSwitch = [2]bool{}
			break
		}
		next.FreeSwitch[loser.Index()] = true
	}

	return rc.outcome(), nil
}

// applyDamage subtracts dmg from the fighter's health, flooring at zero, and returns the amount lost.
func applyDamage(f *Fighter, dmg int) int {
	if dmg < 0 {
		dmg = 0
	}
	before := f.Health
	f.Health = max(0, f.Health-dmg)
	return before - f.Health
}

func checkMoves(s State, moves [2]PendingMove) error {
	pendingFree := s.FreeSwitch[0] || s.FreeSwitch[1]
	for _, side := range Sides {
		mv := moves[side.Index()]
		owesSwitch := s.FreeSwitch[side.Index()]
		if mv.IsZero() {
			if pendingFree && !owesSwitch {
				continue
			}
			return fmt.Errorf("%w: side %s has no move", ErrInvariant, side)
		}
		if pendingFree && !owesSwitch {
			return fmt.Errorf("%w: side %s acted during opponent's free switch", ErrInvariant, side)
		}
		if err := ValidateMove(s, side, mv); err != nil {
			return fmt.Errorf("%w: side %s: %v", ErrInvariant, side, err)
		}
	}
	return nil
}

type turnContext struct {
	state   *State
	actions []Action
}

func newTurnContext(s *State) *turnContext {
	return &turnContext{state: s, actions: make([]Action, 0, 4)}
}

func (tc *turnContext) add(a Action) { tc.actions = append(tc.actions, a) }

func (tc *turnContext) outcome() Outcome {
	log := make([]string, len(tc.actions))
	for i, a := range tc.actions {
		log[i] = a.Text
	}
	return Outcome{
		Turn:    tc.state.Turn,
		Actions: tc.actions,
		Log:     log,
		State:   *tc.state,
	}
}
