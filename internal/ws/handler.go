package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/duel-backend/internal/hub"
	"github.com/DoyleJ11/duel-backend/internal/identity"
	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/DoyleJ11/duel-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	OutboxSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxChatLen     int
	OriginPatterns []string
}

func (c Config) withDefaults() Config {
	if c.OutboxSize <= 0 {
		c.OutboxSize = 16
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.MaxChatLen <= 0 {
		c.MaxChatLen = 500
	}
	return c
}

type session struct {
	conn     *websocket.Conn
	hub      *hub.Hub
	cfg      Config
	log      *zap.Logger
	identity string
	connID   string

	ctx    context.Context
	cancel context.CancelFunc
	match  *match.Match // set once JoinMatch succeeds; only touched by the reader loop
}

func Handler(h *hub.Hub, idp identity.Provider, log *zap.Logger, cfg Config) http.HandlerFunc {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := idp.Identify(r)
		if err != nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s := &session{
			conn:     conn,
			hub:      h,
			cfg:      cfg,
			identity: ident,
			connID:   uuid.NewString(),
			ctx:      ctx,
			cancel:   cancel,
		}
		s.log = log.With(zap.String("identity", ident), zap.String("conn_id", s.connID))
		s.log.Debug("connection opened")

		defer func() {
			if s.match == nil {
				return
			}
			leaveCtx, leaveCancel := context.WithTimeout(context.Background(), time.Second)
			defer leaveCancel()
			if err := s.match.Leave(leaveCtx, s.connID); err != nil && !errors.Is(err, match.ErrMatchClosed) {
				s.log.Warn("leave failed", zap.Error(err))
			}
		}()

		go s.heartbeat(s.log)
		s.readLoop()
	}
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// Treat clean close/going-away as normal:
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if s.ctx.Err() == nil {
					s.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.writeError(codeBadRequest, errors.New("bad json"))
			continue
		}
		s.dispatch(cm)
	}
}

func (s *session) dispatch(cm types.ClientMessage) {
	if cm.Identity != "" && cm.Identity != s.identity {
		s.writeError(codeUnauthenticated, errors.New("identity does not match connection"))
		return
	}

	if cm.Type == types.MsgJoinMatch {
		s.join(cm)
		return
	}

	if s.match == nil {
		s.writeError(codeFor(match.ErrUnknownSeat), errors.New("join a match first"))
		return
	}
	if cm.MatchID != "" && cm.MatchID != s.match.ID() {
		s.writeError(codeBadRequest, errors.New("connection is bound to another match"))
		return
	}

	var err error
	switch cm.Type {
	case types.MsgSubmitRoster:
		err = s.match.SubmitRoster(s.ctx, s.identity, cm.Roster)

	case types.MsgSubmitMove:
		mv, perr := toPendingMove(cm)
		if perr != nil {
			s.writeError(codeBadRequest, perr)
			return
		}
		err = s.match.SubmitMove(s.ctx, s.identity, mv)

	case types.MsgChat:
		if err := validChat(cm.Text, s.cfg.MaxChatLen); err != nil {
			s.writeError(codeBadRequest, err)
			return
		}
		if err := s.match.Chat(s.ctx, s.identity, cm.Text); err != nil {
			s.writeError(codeFor(err), err)
		}
		return

	default:
		s.writeError(codeBadRequest, errors.New("unknown type"))
		return
	}

	if err != nil {
		s.writeError(codeFor(err), err)
		return
	}
	_ = s.write(types.ServerMessage{Type: types.MsgAck, MatchID: s.match.ID()})
}

func (s *session) join(cm types.ClientMessage) {
	if s.match != nil {
		s.writeError(codeBadRequest, errors.New("already joined a match"))
		return
	}

	out := make(chan match.Event, s.cfg.OutboxSize)
	m, side, err := s.hub.Join(s.ctx, cm.MatchID, s.identity, s.connID, out)
	if errors.Is(err, match.ErrMatchFull) {
		_ = s.write(types.ServerMessage{Type: types.MsgMatchFull, MatchID: cm.MatchID, Reason: err.Error()})
		return
	}
	if err != nil {
		s.writeError(codeFor(err), err)
		return
	}

	s.match = m
	s.log = s.log.With(zap.String("match_id", m.ID()), zap.String("side", string(side)))
	s.log.Info("joined match")
	go s.writeLoop(out)
}

// writeLoop drains the seat outbox. The match closes it when the seat is unbound
// (slow consumer, newer connection for the same identity, eviction), which ends the session.
func (s *session) writeLoop(out <-chan match.Event) {
	for ev := range out {
		if err := s.write(fromEvent(ev)); err != nil {
			s.cancel()
			return
		}
	}
	if s.ctx.Err() == nil {
		s.log.Info("seat released, closing connection")
		s.conn.Close(websocket.StatusGoingAway, "seat released")
		s.cancel()
	}
}

func (s *session) heartbeat(log *zap.Logger) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				s.cancel()
				return
			}
		}
	}
}

// validChat bounds chat text in characters, not bytes.
func validChat(text string, maxLen int) error {
	switch {
	case text == "":
		return errors.New("chat text is empty")
	case !utf8.ValidString(text):
		return errors.New("chat text is not valid UTF-8")
	case utf8.RuneCountInString(text) > maxLen:
		return fmt.Errorf("chat text longer than %d characters", maxLen)
	}
	return nil
}

func (s *session) write(msg types.ServerMessage) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, msg)
}

func (s *session) writeError(code string, err error) {
	_ = s.write(types.ServerMessage{Type: types.MsgError, Code: code, Error: err.Error()})
}
