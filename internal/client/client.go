package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/types"
	"github.com/gorilla/websocket"
)

// Client is a single player connection to /ws. It is not safe for concurrent use.
type Client struct {
	Conn     *websocket.Conn
	Identity string
	MatchID  string
}

// Dial connects to a duel server. serverURL may be http(s) or ws(s); the /ws path is appended
// when missing. The identity travels in the X-User-ID header.
func Dial(ctx context.Context, serverURL, identity string, header http.Header) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("X-User-ID", identity)

	c, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &Client{Conn: c, Identity: identity}, nil
}

func (c *Client) Send(msg types.ClientMessage) error {
	if msg.MatchID == "" {
		msg.MatchID = c.MatchID
	}
	return c.Conn.WriteJSON(msg)
}

func (c *Client) Join(matchID string) error {
	c.MatchID = matchID
	return c.Send(types.ClientMessage{Type: types.MsgJoinMatch, Identity: c.Identity})
}

func (c *Client) SubmitRoster(roster []engine.Fighter) error {
	return c.Send(types.ClientMessage{Type: types.MsgSubmitRoster, Roster: roster})
}

func (c *Client) Attack(moveIndex int) error {
	return c.Send(types.ClientMessage{Type: types.MsgSubmitMove, Kind: types.KindAttack, MoveIndex: &moveIndex})
}

func (c *Client) Switch(rosterIndex int, free bool) error {
	return c.Send(types.ClientMessage{Type: types.MsgSubmitMove, Kind: types.KindSwitch, RosterIndex: &rosterIndex, Free: free})
}

func (c *Client) Chat(text string) error {
	return c.Send(types.ClientMessage{Type: types.MsgChat, Text: text})
}

// Next reads one server message, waiting at most timeout.
func (c *Client) Next(timeout time.Duration) (types.ServerMessage, error) {
	var msg types.ServerMessage
	if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return msg, err
	}
	err := c.Conn.ReadJSON(&msg)
	return msg, err
}

// Await reads until a message of one of the given types arrives. Messages of other types are skipped,
// except Error, which is returned as an error unless it was asked for.
func (c *Client) Await(timeout time.Duration, want ...string) (types.ServerMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return types.ServerMessage{}, fmt.Errorf("timed out waiting for %v", want)
		}
		msg, err := c.Next(remaining)
		if err != nil {
			return msg, err
		}
		if slices.Contains(want, msg.Type) {
			return msg, nil
		}
		if msg.Type == types.MsgError {
			return msg, fmt.Errorf("server error %s: %s", msg.Code, msg.Error)
		}
	}
}

func (c *Client) Close() error {
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	return c.Conn.Close()
}
