package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/client"
	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/hub"
	"github.com/DoyleJ11/duel-backend/internal/identity"
	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/DoyleJ11/duel-backend/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

func fighter(name string, health, speed int) engine.Fighter {
	return engine.Fighter{
		Name: name, MaxHealth: health, Health: health,
		Attack: 50, SpecialAttack: 50, Defense: 50, SpecialDefense: 50, Speed: speed,
		Moves: []engine.Move{{Name: "Tackle", Category: engine.CategoryPhysical, Power: 40}},
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Config{
		Match: match.Config{
			Resolver: engine.NewResolver(func(engine.Fighter, engine.Fighter, engine.Move) int { return 100 }),
		},
	})
	srv := httptest.NewServer(Handler(h, identity.Header{}, nil, Config{}))
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, ident string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), srv.URL, ident, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func await(t *testing.T, c *client.Client, want ...string) types.ServerMessage {
	t.Helper()
	msg, err := c.Await(wait, want...)
	require.NoError(t, err)
	return msg
}

func TestHandler_RejectsUnauthenticated(t *testing.T) {
	srv := newServer(t)
	_, err := client.Dial(context.Background(), srv.URL, "", nil)
	require.Error(t, err)
}

func TestHandler_FullBattle(t *testing.T) {
	srv := newServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	require.NoError(t, alice.Join("duel-1"))
	seat := await(t, alice, "SeatAssigned")
	assert.Equal(t, engine.SideA, seat.Side)
	assert.Equal(t, "duel-1", seat.MatchID)

	require.NoError(t, bob.Join("duel-1"))
	seat = await(t, bob, "SeatAssigned")
	assert.Equal(t, engine.SideB, seat.Side)
	await(t, alice, "OpponentJoined")

	carol := dial(t, srv, "carol")
	require.NoError(t, carol.Join("duel-1"))
	await(t, carol, types.MsgMatchFull)

	require.NoError(t, alice.SubmitRoster([]engine.Fighter{fighter("Gengar", 300, 110)}))
	require.NoError(t, bob.SubmitRoster([]engine.Fighter{fighter("Caterpie", 50, 10), fighter("Metapod", 50, 5)}))
	start := await(t, alice, "BattleStart")
	require.NotNil(t, start.Rosters)
	assert.Equal(t, "Caterpie", start.Rosters[1].Fighters[0].Name)
	await(t, bob, "BattleStart")

	// barrier: only the submitter hears about waiting
	require.NoError(t, alice.Attack(0))
	waiting := await(t, alice, "WaitingOnOpponent")
	assert.Equal(t, engine.SideB, waiting.PendingSide)

	require.NoError(t, bob.Attack(0))
	out := await(t, bob, "TurnOutcome")
	assert.Equal(t, 1, out.Turn)
	require.NotNil(t, out.FreeSwitch)
	assert.True(t, out.FreeSwitch[1])
	assert.Equal(t, engine.NoActive, out.Rosters[1].Active)
	await(t, alice, "TurnOutcome")

	require.NoError(t, alice.Attack(0))
	errMsg := await(t, alice, types.MsgError)
	assert.Equal(t, "awaiting_switch", errMsg.Code)

	require.NoError(t, bob.Switch(1, true))
	out = await(t, alice, "TurnOutcome")
	assert.Equal(t, 1, out.Rosters[1].Active)
	assert.Len(t, out.Log, 1)
	await(t, bob, "TurnOutcome")

	require.NoError(t, alice.Attack(0))
	require.NoError(t, bob.Attack(0))
	over := await(t, alice, "MatchOver")
	assert.Equal(t, "alice", over.Winner)
	assert.Equal(t, "knockout", over.Reason)
	over = await(t, bob, "MatchOver")
	assert.Equal(t, "alice", over.Winner)
}

func TestHandler_ProtocolErrors(t *testing.T) {
	srv := newServer(t)
	alice := dial(t, srv, "alice")

	require.NoError(t, alice.Attack(0))
	msg := await(t, alice, types.MsgError)
	assert.Equal(t, "unknown_seat", msg.Code)

	require.NoError(t, alice.Conn.WriteMessage(1, []byte("{not json")))
	msg = await(t, alice, types.MsgError)
	assert.Equal(t, "bad_request", msg.Code)

	require.NoError(t, alice.Send(types.ClientMessage{Type: types.MsgJoinMatch, MatchID: "x", Identity: "mallory"}))
	msg = await(t, alice, types.MsgError)
	assert.Equal(t, "unauthenticated", msg.Code)

	require.NoError(t, alice.Join("x"))
	await(t, alice, "SeatAssigned")

	require.NoError(t, alice.Attack(0))
	msg = await(t, alice, types.MsgError)
	assert.Equal(t, "not_your_turn_phase", msg.Code)

	require.NoError(t, alice.Send(types.ClientMessage{Type: types.MsgSubmitMove, Kind: "run"}))
	msg = await(t, alice, types.MsgError)
	assert.Equal(t, "bad_request", msg.Code)

	require.NoError(t, alice.SubmitRoster(nil))
	msg = await(t, alice, types.MsgError)
	assert.Equal(t, "invalid_roster", msg.Code)

	require.NoError(t, alice.SubmitRoster([]engine.Fighter{fighter("Eevee", 100, 55)}))
	await(t, alice, types.MsgAck)
}

func TestHandler_ChatAndDisconnectNotice(t *testing.T) {
	srv := newServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	require.NoError(t, alice.Join("lounge"))
	await(t, alice, "SeatAssigned")
	require.NoError(t, bob.Join("lounge"))
	await(t, bob, "SeatAssigned")

	require.NoError(t, bob.Chat("gl hf"))
	chat := await(t, alice, "Chat")
	assert.Equal(t, "bob", chat.From)
	assert.Equal(t, "gl hf", chat.Text)

	require.NoError(t, bob.Close())
	gone := await(t, alice, "OpponentDisconnected")
	assert.Equal(t, engine.SideB, gone.Side)
}

func TestValidChat(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "empty", text: "", wantErr: true},
		{name: "ascii at limit", text: "hello", wantErr: false},
		{name: "ascii over limit", text: "hello!", wantErr: true},
		{name: "multibyte at limit", text: "ポケモン!", wantErr: false},
		{name: "multibyte over limit", text: "ポケモンだ!", wantErr: true},
		{name: "invalid utf8", text: "ab\xffc", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validChat(tc.text, 5)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHandler_ChatLimitCountsCharacters(t *testing.T) {
	srv := newServer(t)
	alice := dial(t, srv, "alice")
	require.NoError(t, alice.Join("lounge"))
	await(t, alice, "SeatAssigned")

	// 200 characters, 600 bytes: under the default limit of 500 characters
	text := strings.Repeat("ピ", 200)
	require.NoError(t, alice.Chat(text))
	chat := await(t, alice, "Chat")
	assert.Equal(t, text, chat.Text)

	require.NoError(t, alice.Chat(strings.Repeat("ピ", 501)))
	msg := await(t, alice, types.MsgError)
	assert.Equal(t, "bad_request", msg.Code)
}

func TestCodeFor(t *testing.T) {
	assert.Equal(t, "duplicate_submission", codeFor(match.ErrDuplicateSubmission))
	assert.Equal(t, "invalid_switch", codeFor(engine.ErrInvalidSwitch))
	assert.Equal(t, "not_found", codeFor(hub.ErrNotFound))
	assert.Equal(t, "internal", codeFor(engine.ErrInvariant))
}
