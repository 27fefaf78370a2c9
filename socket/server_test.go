package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/events"
	"colorgame/domain/services"
	"colorgame/domain/testhelpers"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type liveRounds struct {
	round *entities.Round
}

func (r *liveRounds) CurrentRound(roomID int) *entities.Round {
	if r.round == nil || r.round.RoomID != roomID {
		return nil
	}
	return r.round.Clone()
}

type serverFixture struct {
	clock    *testhelpers.ManualClock
	wallet   *testhelpers.FakeWallet
	sessions *testhelpers.MemorySessionStore
	catalog  *services.RoomCatalog
	hub      *Hub
	round    *entities.Round
	http     *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rules := entities.DefaultGameRules()
	f := &serverFixture{
		clock:    testhelpers.NewManualClock(start),
		wallet:   testhelpers.NewFakeWallet(),
		sessions: testhelpers.NewMemorySessionStore(),
		catalog:  services.NewRoomCatalog(nil, entities.DefaultRooms()),
		hub:      NewHub(),
	}

	identity := new(testhelpers.MockIdentityService)
	for _, player := range []string{"alice", "bob"} {
		identity.On("LookupSession", mock.Anything, "tok-"+player, "color").Return(&entities.PlayerProfile{
			PlayerID:   player,
			OperatorID: "op",
			Balance:    decimal.NewFromInt(1000),
		}, nil).Maybe()
		f.wallet.SetBalance(entities.PlayerKey{OperatorID: "op", PlayerID: player}, decimal.NewFromInt(1000))
	}
	identity.On("LookupSession", mock.Anything, "bad", "color").Return(nil, errors.New("unauthorized")).Maybe()

	f.round = entities.NewRound(101, start)
	f.round.Status = entities.RoundBetting
	f.round.BettingEndsAt = start.Add(rules.BettingDuration)
	rounds := &liveRounds{round: f.round}

	ledger := services.NewBetLedger(rules.AllowRepeatBets)
	ledger.Open(101, f.round.ID, f.round.BettingEndsAt)
	stats := services.NewStatsService(nil, rules.HistorySize)
	gateway := services.NewWalletGateway(f.wallet, f.wallet, time.Second, f.clock, nil)

	lobby := services.NewLobbyService(identity, f.sessions, f.catalog, rounds, ledger, stats, f.clock)
	betting := services.NewBettingService(services.BettingDeps{
		Rules:    rules,
		Clock:    f.clock,
		Sessions: f.sessions,
		Catalog:  f.catalog,
		Rounds:   rounds,
		Ledger:   ledger,
		Wallet:   gateway,
	})

	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(ctx, Deps{
		Hub:     f.hub,
		Lobby:   lobby,
		Betting: betting,
		Catalog: f.catalog,
		Stats:   stats,
		Rounds:  rounds,
	})
	f.http = httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		cancel()
		f.http.Close()
	})
	return f
}

func (f *serverFixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?token=" + token + "&game_id=color"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func (f *serverFixture) connect(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := f.dial(t, token)
	require.NoError(t, err)
	expectEvent(t, conn, events.EventTypeInfo)
	expectEvent(t, conn, events.EventTypeRooms)
	return conn
}

type frame struct {
	Event events.EventType `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

// expectEvent reads frames until one of the wanted type arrives
func expectEvent(t *testing.T, conn *websocket.Conn, want events.EventType) json.RawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", want)
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Event == want {
			return f.Data
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: payload}))
}

func TestServer_RejectsUnknownToken(t *testing.T) {
	f := newServerFixture(t)

	_, resp, err := f.dial(t, "bad")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_GreetsConnection(t *testing.T) {
	f := newServerFixture(t)

	conn, _, err := f.dial(t, "tok-alice")
	require.NoError(t, err)

	var info events.InfoEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeInfo), &info))
	assert.Equal(t, "alice", info.PlayerID)
	assert.True(t, info.Balance.Equal(decimal.NewFromInt(1000)))

	var rooms events.RoomsEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeRooms), &rooms))
	assert.Len(t, rooms.Rooms, 4)
}

func TestServer_JoinAndPlaceBet(t *testing.T) {
	f := newServerFixture(t)
	conn := f.connect(t, "tok-alice")

	send(t, conn, InJoinRoom, JoinRoomMessage{RoomID: 101})
	var joined events.RoomJoinedEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeRoomJoined), &joined))
	assert.Equal(t, 101, joined.RoomID)
	require.NotNil(t, joined.Round)
	assert.Equal(t, f.round.ID, joined.Round.ID)
	assert.Equal(t, int64(1), f.catalog.Occupancy(101))

	send(t, conn, InPlaceBet, PlaceBetMessage{
		LobbyID:    f.round.ID,
		Selections: []SelectionMessage{{Selection: "3", Amount: decimal.NewFromInt(100)}},
	})
	var accepted events.BetAcceptedEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeBetAccepted), &accepted))
	assert.Equal(t, f.round.ID, accepted.RoundID)
	assert.True(t, accepted.Balance.Equal(decimal.NewFromInt(900)))
	assert.True(t, f.wallet.Balance(entities.PlayerKey{OperatorID: "op", PlayerID: "alice"}).Equal(decimal.NewFromInt(900)))

	send(t, conn, InLeaveRoom, nil)
	var left events.RoomLeftEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeRoomLeft), &left))
	assert.Equal(t, 101, left.RoomID)
	assert.Zero(t, f.catalog.Occupancy(101))
}

func TestServer_BetErrors(t *testing.T) {
	f := newServerFixture(t)
	conn := f.connect(t, "tok-alice")

	tests := []struct {
		name    string
		event   string
		data    any
		wantMsg string
	}{
		{
			name:    "not in a room",
			event:   InPlaceBet,
			data:    PlaceBetMessage{LobbyID: f.round.ID, Selections: []SelectionMessage{{Selection: "3", Amount: decimal.NewFromInt(100)}}},
			wantMsg: "Join a room first",
		},
		{
			name:    "zero amount fails validation",
			event:   InPlaceBet,
			data:    PlaceBetMessage{LobbyID: f.round.ID, Selections: []SelectionMessage{{Selection: "3", Amount: decimal.Zero}}},
			wantMsg: "Invalid bet",
		},
		{
			name:    "missing selections",
			event:   InPlaceBet,
			data:    map[string]any{"lobbyId": f.round.ID},
			wantMsg: "Invalid bet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.event, tt.data)
			var berr events.BetErrorEvent
			require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeBetError), &berr))
			assert.Equal(t, tt.wantMsg, berr.Message)
		})
	}

	send(t, conn, InJoinRoom, JoinRoomMessage{RoomID: 101})
	expectEvent(t, conn, events.EventTypeRoomJoined)

	send(t, conn, InPlaceBet, PlaceBetMessage{
		LobbyID:    "stale",
		Selections: []SelectionMessage{{Selection: "3", Amount: decimal.NewFromInt(100)}},
	})
	var stale events.BetErrorEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeBetError), &stale))
	assert.Equal(t, "Invalid lobby", stale.Message)
	assert.Equal(t, "stale", stale.RoundID)
}

func TestServer_JoinErrors(t *testing.T) {
	f := newServerFixture(t)
	conn := f.connect(t, "tok-alice")

	send(t, conn, InJoinRoom, JoinRoomMessage{RoomID: 999})
	var rerr events.RoomErrorEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeRoomError), &rerr))
	assert.Equal(t, "Invalid room", rerr.Message)

	send(t, conn, InLeaveRoom, nil)
	require.NoError(t, json.Unmarshal(expectEvent(t, conn, events.EventTypeRoomError), &rerr))
	assert.Equal(t, "Join a room first", rerr.Message)
}

func TestServer_SecondConnectionTakesOver(t *testing.T) {
	f := newServerFixture(t)
	first := f.connect(t, "tok-alice")

	send(t, first, InJoinRoom, JoinRoomMessage{RoomID: 102})
	expectEvent(t, first, events.EventTypeRoomJoined)

	second, _, err := f.dial(t, "tok-alice")
	require.NoError(t, err)
	var info events.InfoEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, second, events.EventTypeInfo), &info))
	assert.Equal(t, 102, info.RoomID)
	expectEvent(t, second, events.EventTypeRoomJoined)

	// the replaced connection is closed by the server
	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	assert.Eventually(t, func() bool {
		return f.hub.Members(102) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), f.catalog.Occupancy(102))
}

func TestServer_RoomBroadcastReachesMembersOnly(t *testing.T) {
	f := newServerFixture(t)
	alice := f.connect(t, "tok-alice")
	bob := f.connect(t, "tok-bob")

	send(t, alice, InJoinRoom, JoinRoomMessage{RoomID: 101})
	expectEvent(t, alice, events.EventTypeRoomJoined)
	require.Eventually(t, func() bool { return f.hub.Members(101) == 1 }, 2*time.Second, 10*time.Millisecond)

	f.hub.BroadcastRoom(101, events.OutcomeEvent{RoomID: 101, RoundID: f.round.ID, Outcome: entities.Outcome{1, 2, 3}})
	f.hub.BroadcastRoom(102, events.OutcomeEvent{RoomID: 102, RoundID: "other", Outcome: entities.Outcome{4, 5, 6}})
	f.hub.BroadcastAll(events.LeaderboardsEvent{})

	var outcome events.OutcomeEvent
	require.NoError(t, json.Unmarshal(expectEvent(t, alice, events.EventTypeOutcome), &outcome))
	assert.Equal(t, f.round.ID, outcome.RoundID)

	// bob sees the global broadcast and nothing from either room
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := bob.ReadMessage()
		require.NoError(t, err)
		var fr frame
		require.NoError(t, json.Unmarshal(raw, &fr))
		require.NotEqual(t, events.EventTypeOutcome, fr.Event)
		if fr.Event == events.EventTypeLeaderboards {
			break
		}
	}
}

func TestServer_HTTPRoutes(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/api/rooms", http.StatusOK, `"roomId":101`},
		{"/api/history", http.StatusOK, `"rooms"`},
		{"/api/history?room_id=102", http.StatusOK, `"roomId":102`},
		{"/api/history?room_id=abc", http.StatusBadRequest, "invalid room_id"},
		{"/api/history?room_id=999", http.StatusNotFound, "unknown room"},
		{"/api/winners", http.StatusOK, "{"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(f.http.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			var body strings.Builder
			_, err = body.ReadFrom(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, body.String(), tt.wantBody)
		})
	}
}
