package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/DoyleJ11/duel-backend/internal/store"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("match not found")
var ErrMatchExists = errors.New("match id already in use")
var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type EnsureMatch struct {
	ID    string
	Reply chan *match.Match
}

type GetMatch struct {
	ID    string
	Reply chan *match.Match // nil if unknown
}

type CreateMatch struct {
	ID    string
	Reply chan error
}

type RemoveMatch struct {
	ID string
}

type ListMatches struct {
	Reply chan []*match.Match
}

// MatchFinished and MatchIdle are sent by the hooks the hub installs on each match.
type MatchFinished struct {
	ID     string
	Result match.Result
}

type MatchIdle struct {
	ID   string
	Idle bool
	Seq  int64
}

type Sweep struct {
	Now   time.Time
	Reply chan []string
}

type ShutdownHub struct{}

func (EnsureMatch) isHubMsg()   {}
func (GetMatch) isHubMsg()      {}
func (CreateMatch) isHubMsg()   {}
func (RemoveMatch) isHubMsg()   {}
func (ListMatches) isHubMsg()   {}
func (MatchFinished) isHubMsg() {}
func (MatchIdle) isHubMsg()     {}
func (Sweep) isHubMsg()         {}
func (ShutdownHub) isHubMsg()   {}

type Config struct {
	// Match is the template every new match is built from. The hub installs its own
	// OnFinish and OnIdle hooks.
	Match match.Config

	// Recorder receives every finished match. Nil disables recording.
	Recorder      store.Recorder
	RecordTimeout time.Duration

	// FinishedGrace is how long a finished or abandoned match stays addressable before the sweep evicts it.
	FinishedGrace time.Duration

	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

type entry struct {
	m          *match.Match
	finished   bool
	finishedAt time.Time
	idle       bool
	idleSince  time.Time
	idleSeq    int64
}

type Hub struct {
	cfg     Config
	log     *zap.Logger
	inbox   chan HubMsg
	matches map[string]*entry

	recording sync.WaitGroup
	sched     gocron.Scheduler
	stopped   chan struct{}
	stopOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		cfg:     cfg,
		log:     cfg.Logger,
		inbox:   make(chan HubMsg, 64),
		matches: make(map[string]*entry),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.stopped)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureMatch:
				if e := h.matches[msg.ID]; e != nil {
					msg.Reply <- e.m
					break
				}
				msg.Reply <- h.create(msg.ID)

			case GetMatch:
				if e := h.matches[msg.ID]; e != nil {
					msg.Reply <- e.m
					break
				}
				msg.Reply <- nil

			case CreateMatch:
				if h.matches[msg.ID] != nil {
					msg.Reply <- ErrMatchExists
					break
				}
				h.create(msg.ID)
				msg.Reply <- nil

			case RemoveMatch:
				if e := h.matches[msg.ID]; e != nil {
					e.m.Shutdown()
					delete(h.matches, msg.ID)
				}

			case ListMatches:
				out := make([]*match.Match, 0, len(h.matches))
				for _, e := range h.matches {
					out = append(out, e.m)
				}
				msg.Reply <- out

			case MatchFinished:
				h.handleFinished(msg)

			case MatchIdle:
				e := h.matches[msg.ID]
				if e == nil || msg.Seq <= e.idleSeq {
					break
				}
				e.idleSeq = msg.Seq
				e.idle = msg.Idle
				if msg.Idle {
					e.idleSince = h.cfg.Now()
				}

			case Sweep:
				evicted := h.sweep(msg.Now)
				if msg.Reply != nil {
					msg.Reply <- evicted
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(id string) *match.Match {
	cfg := h.cfg.Match
	cfg.Logger = h.log
	var seq int64 // only touched from the match goroutine
	cfg.OnFinish = func(res match.Result) {
		h.notify(MatchFinished{ID: id, Result: res})
	}
	cfg.OnIdle = func(idle bool) {
		seq++
		h.notify(MatchIdle{ID: id, Idle: idle, Seq: seq})
	}

	m := match.New(h.ctx, id, cfg)
	// nobody is connected yet, so a match that is never joined is abandoned after the grace period
	h.matches[id] = &entry{m: m, idle: true, idleSince: h.cfg.Now()}
	h.log.Info("match created", zap.String("match_id", id))
	return m
}

// notify delivers a message from a match goroutine without ever blocking it on the hub.
func (h *Hub) notify(msg HubMsg) {
	go func() {
		select {
		case h.inbox <- msg:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) handleFinished(msg MatchFinished) {
	if e := h.matches[msg.ID]; e != nil {
		e.finished = true
		e.finishedAt = h.cfg.Now()
	}
	if h.cfg.Recorder == nil {
		return
	}

	h.recording.Add(1)
	go func() {
		defer h.recording.Done()
		// recording outlives hub shutdown; bounded by RecordTimeout instead
		ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), h.cfg.RecordTimeout)
		defer cancel()
		if err := h.cfg.Recorder.Record(ctx, msg.Result); err != nil {
			h.log.Error("failed to record match result", zap.String("match_id", msg.ID), zap.Error(err))
			return
		}
		h.log.Debug("match result recorded", zap.String("match_id", msg.ID))
	}()
}

func (h *Hub) sweep(now time.Time) []string {
	var evicted []string
	for id, e := range h.matches {
		switch {
		case e.finished && now.Sub(e.finishedAt) >= h.cfg.FinishedGrace:
		case e.idle && now.Sub(e.idleSince) >= h.cfg.FinishedGrace:
		default:
			continue
		}
		e.m.Shutdown()
		delete(h.matches, id)
		evicted = append(evicted, id)
	}
	if len(evicted) > 0 {
		h.log.Info("evicted matches", zap.Strings("match_ids", evicted))
	}
	return evicted
}

func (h *Hub) shutdown() {
	for _, e := range h.matches {
		e.m.Shutdown()
	}
	clear(h.matches)
	h.cancel()
}

// StartReaper runs Sweep every interval until Shutdown.
func (h *Hub) StartReaper(interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := h.Sweep(h.ctx); err != nil && !errors.Is(err, ErrHubClosed) {
				h.log.Warn("sweep failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	sched.Start()
	h.sched = sched
	return nil
}
