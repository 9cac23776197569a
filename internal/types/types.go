package types

import "github.com/DoyleJ11/duel-backend/internal/engine"

// Inbound message types.
const (
	MsgJoinMatch    = "JoinMatch"
	MsgSubmitRoster = "SubmitRoster"
	MsgSubmitMove   = "SubmitMove"
	MsgChat         = "Chat"
)

// Outbound message types not produced by the match itself.
const (
	MsgMatchFull = "MatchFull"
	MsgError     = "Error"
	MsgAck       = "Ack"
)

const (
	KindAttack = "attack"
	KindSwitch = "switch"
)

type ClientMessage struct {
	Type     string `json:"type"`
	MatchID  string `json:"matchId,omitempty"`
	Identity string `json:"identity,omitempty"`

	Roster []engine.Fighter `json:"roster,omitempty"`

	Kind        string `json:"kind,omitempty"`
	MoveIndex   *int   `json:"moveIndex,omitempty"`
	RosterIndex *int   `json:"rosterIndex,omitempty"`
	Free        bool   `json:"free,omitempty"` // advisory; the server tracks free switches itself

	Text string `json:"text,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Version int    `json:"version,omitempty"`
	MatchID string `json:"matchId,omitempty"`

	Side        engine.Side      `json:"side,omitempty"`
	PendingSide engine.Side      `json:"pendingSide,omitempty"`
	Phase       engine.Phase     `json:"phase,omitempty"`
	Options     []engine.Fighter `json:"options,omitempty"`

	Turn       int               `json:"turn,omitempty"`
	Rosters    *[2]engine.Roster `json:"rosters,omitempty"`
	FreeSwitch *[2]bool          `json:"freeSwitch,omitempty"`
	Actions    []engine.Action   `json:"actions,omitempty"`
	Log        []string          `json:"log,omitempty"`

	Winner string `json:"winner,omitempty"`
	From   string `json:"from,omitempty"`
	Text   string `json:"text,omitempty"`
	Reason string `json:"reason,omitempty"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}
