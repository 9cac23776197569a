package match

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"go.uber.org/zap"
)

var ErrMatchFull = errors.New("match is full")
var ErrUnknownSeat = errors.New("identity has no seat in this match")
var ErrDuplicateSubmission = errors.New("move already submitted this turn")
var ErrNotTeamSelection = errors.New("team selection is closed")
var ErrSeatConnected = errors.New("seat already has a live connection")
var ErrReconnectExpired = errors.New("reconnect window has closed")
var ErrMatchOver = errors.New("match is over")
var ErrMatchClosed = errors.New("match closed")

type Msg interface{ isMatchMsg() }

type Join struct {
	Identity string
	ConnID   string
	Outbox   chan Event // where this connection receives events; closed by the match
	Reply    chan JoinResult
}

func (Join) isMatchMsg() {}

type JoinResult struct {
	Side engine.Side
	Err  error
}

type Leave struct{ ConnID string }

func (Leave) isMatchMsg() {}

type SubmitRoster struct {
	Identity string
	Fighters []engine.Fighter
	Reply    chan error
}

func (SubmitRoster) isMatchMsg() {}

type SubmitMove struct {
	Identity string
	Move     engine.PendingMove
	Reply    chan error
}

func (SubmitMove) isMatchMsg() {}

type Chat struct {
	Identity string
	Text     string
}

func (Chat) isMatchMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isMatchMsg() {}

type Shutdown struct{}

func (Shutdown) isMatchMsg() {}

type timerKind int

const (
	turnTimer timerKind = iota
	graceTimer
)

type timerFired struct {
	kind timerKind
	side engine.Side
	gen  int
}

func (timerFired) isMatchMsg() {}

type EventType string

const (
	EvtSeatAssigned         EventType = "SeatAssigned"
	EvtOpponentJoined       EventType = "OpponentJoined"
	EvtBattleStart          EventType = "BattleStart"
	EvtWaitingOnOpponent    EventType = "WaitingOnOpponent"
	EvtTurnOutcome          EventType = "TurnOutcome"
	EvtMatchOver            EventType = "MatchOver"
	EvtMatchAborted         EventType = "MatchAborted"
	EvtOpponentDisconnected EventType = "OpponentDisconnected"
	EvtOpponentLeft         EventType = "OpponentLeft"
	EvtChat                 EventType = "Chat"
)

// Event is what a seat's connection receives. Only the fields relevant to Type are set.
type Event struct {
	Type        EventType
	Version     int
	MatchID     string
	Side        engine.Side // recipient seat for SeatAssigned, sender for Chat, winner for MatchOver
	PendingSide engine.Side
	Phase       engine.Phase
	Options     []engine.Fighter
	State       engine.State
	Outcome     *engine.Outcome
	Winner      string
	From        string
	Text        string
	Reason      string
}

type SeatView struct {
	Identity  string `json:"identity"`
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
	Submitted bool   `json:"submitted"`
}

type View struct {
	ID      string       `json:"id"`
	Version int          `json:"version"`
	Phase   engine.Phase `json:"phase"`
	Seats   [2]SeatView  `json:"seats"`
	State   engine.State `json:"state"`
	Winner  string       `json:"winner,omitempty"`
}

// Result summarises a finished match for recording.
type Result struct {
	MatchID     string
	Identities  [2]string
	WinningSide engine.Side
	Winner      string
	Loser       string
	Reason      string
	Turns       int
	Log         []string
	StartedAt   time.Time
	FinishedAt  time.Time
}

type Config struct {
	Rules    engine.Rules
	Resolver engine.Resolver

	// Options returns the fighters a seat may build its team from.
	Options func() []engine.Fighter
	// VerifyRoster runs after engine.ValidateRoster, e.g. against a catalog.
	VerifyRoster func([]engine.Fighter) error

	// TurnTimeout forfeits a side that leaves its opponent waiting this long. Zero disables it.
	TurnTimeout time.Duration
	// ReconnectGrace is how long a dropped seat may be rebound by identity. Zero means never.
	ReconnectGrace time.Duration

	OnFinish func(Result)
	// OnIdle reports whether every bound seat is currently disconnected.
	OnIdle func(idle bool)

	Logger *zap.Logger
	Now    func() time.Time
}

type seat struct {
	identity       string
	connID         string
	outbox         chan Event
	connected      bool
	disconnectedAt time.Time
	roster         []engine.Fighter
	ready          bool
	pending        engine.PendingMove
}

type Match struct {
	id      string
	cfg     Config
	log     *zap.Logger
	inbox   chan Msg
	state   engine.State
	version int
	seats   [2]*seat
	idle    bool

	turnTimer  *time.Timer
	turnGen    int
	graceTimer [2]*time.Timer
	graceGen   [2]int

	transcript []string
	startedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, id string, cfg Config) *Match {
	m := newMatch(parent, id, cfg)
	go m.loop()
	return m
}

func newMatch(parent context.Context, id string, cfg Config) *Match {
	ctx, cancel := context.WithCancel(parent)

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Resolver.Damage == nil {
		cfg.Resolver = engine.NewResolver(nil)
	}
	if cfg.Rules == (engine.Rules{}) {
		cfg.Rules = engine.DefaultRules()
	}

	m := &Match{
		id:     id,
		cfg:    cfg,
		log:    cfg.Logger.With(zap.String("match_id", id)),
		inbox:  make(chan Msg, 64),
		state:  engine.NewEmptyState(),
		idle:   true, // no connections yet
		ctx:    ctx,
		cancel: cancel,
	}
	return m
}

func (m *Match) ID() string { return m.id }

// Inbox exposes the command queue so tests or the gateway can send messages directly.
func (m *Match) Inbox() chan<- Msg { return m.inbox }

// Done is closed once the match actor has stopped.
func (m *Match) Done() <-chan struct{} { return m.ctx.Done() }

func (m *Match) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case Join:
				side, err := m.handleJoin(msg)
				msg.Reply <- JoinResult{Side: side, Err: err}

			case Leave:
				for i, s := range m.seats {
					if s != nil && s.connected && s.connID == msg.ConnID {
						m.disconnect(i)
					}
				}

			case SubmitRoster:
				msg.Reply <- m.handleRoster(msg)

			case SubmitMove:
				msg.Reply <- m.handleMove(msg)

			case Chat:
				m.handleChat(msg)

			case timerFired:
				m.handleTimer(msg)

			case GetState:
				// reflect internal state without data races
				msg.Reply <- m.view()

			case Shutdown:
				m.shutdown()
				return
			}
		}
	}
}

func (m *Match) shutdown() {
	m.stopTurnTimer()
	for i, s := range m.seats {
		m.stopGraceTimer(i)
		if s != nil && s.outbox != nil {
			close(s.outbox) // Tell client no more events
			s.outbox = nil
			s.connected = false
		}
	}
	m.cancel()
}

func (m *Match) view() View {
	v := View{
		ID:      m.id,
		Version: m.version,
		Phase:   m.state.Phase,
		State:   m.state.Clone(),
	}
	for i, s := range m.seats {
		if s == nil {
			continue
		}
		v.Seats[i] = SeatView{
			Identity:  s.identity,
			Connected: s.connected,
			Ready:     s.ready,
			Submitted: !s.pending.IsZero(),
		}
	}
	if m.state.Winner.Valid() && m.seats[m.state.Winner.Index()] != nil {
		v.Winner = m.seats[m.state.Winner.Index()].identity
	}
	return v
}

func (m *Match) seatOf(identity string) (int, *seat) {
	for i, s := range m.seats {
		if s != nil && s.identity == identity {
			return i, s
		}
	}
	return -1, nil
}

// send delivers ev to one seat. A full outbox means the client is too slow and gets dropped.
func (m *Match) send(i int, ev Event) {
	s := m.seats[i]
	if s == nil || !s.connected || s.outbox == nil {
		return
	}
	ev.MatchID = m.id
	ev.Version = m.version
	select {
	case s.outbox <- ev:
	default:
		m.log.Warn("dropping slow connection", zap.String("side", string(engine.Sides[i])), zap.String("identity", s.identity))
		m.disconnect(i)
	}
}

func (m *Match) broadcast(ev Event) {
	for i := range m.seats {
		m.send(i, ev)
	}
}

func (m *Match) disconnect(i int) {
	s := m.seats[i]
	if s == nil || !s.connected {
		return
	}
	close(s.outbox)
	s.outbox = nil
	s.connID = ""
	s.connected = false
	s.disconnectedAt = m.cfg.Now()
	m.log.Info("seat disconnected", zap.String("side", string(engine.Sides[i])), zap.String("identity", s.identity))

	m.send(1-i, Event{Type: EvtOpponentDisconnected, Side: engine.Sides[i]})
	switch m.state.Phase {
	case engine.PhaseTeamSelection, engine.PhaseBattling:
		// zero grace fires on the next loop turn, never inside a broadcast
		m.armGraceTimer(i)
	}
	m.updateIdle()
}

func (m *Match) updateIdle() {
	idle := true
	for _, s := range m.seats {
		if s != nil && s.connected {
			idle = false
		}
	}
	if idle == m.idle {
		return
	}
	m.idle = idle
	if m.cfg.OnIdle != nil {
		m.cfg.OnIdle(idle)
	}
}
