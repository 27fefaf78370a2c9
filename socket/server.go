package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/events"
	"colorgame/domain/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Deps groups the services the transport drives
type Deps struct {
	Hub     *Hub
	Lobby   *services.LobbyService
	Betting *services.BettingService
	Catalog *services.RoomCatalog
	Stats   *services.StatsService
	Rounds  services.RoundSource
}

// Server exposes the game over websocket plus a few read-only HTTP routes
type Server struct {
	hub      *Hub
	lobby    *services.LobbyService
	betting  *services.BettingService
	catalog  *services.RoomCatalog
	stats    *services.StatsService
	rounds   services.RoundSource
	validate *validator.Validate
	upgrader websocket.Upgrader
	engine   *gin.Engine

	// base context for work started by inbound frames
	ctx context.Context
}

// NewServer builds the gin engine and its routes
func NewServer(ctx context.Context, deps Deps) *Server {
	s := &Server{
		hub:      deps.Hub,
		lobby:    deps.Lobby,
		betting:  deps.Betting,
		catalog:  deps.Catalog,
		stats:    deps.Stats,
		rounds:   deps.Rounds,
		validate: newValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx: ctx,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health", s.health)
	engine.GET("/ws", s.serveWS)

	api := engine.Group("/api")
	api.GET("/rooms", s.rooms)
	api.GET("/history", s.history)
	api.GET("/winners", s.winners)

	s.engine = engine
	return s
}

// Handler returns the http handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.catalog.Views()})
}

func (s *Server) history(c *gin.Context) {
	if c.Query("refresh") == "1" {
		if err := s.stats.Seed(c.Request.Context()); err != nil {
			log.WithError(err).Warn("Failed to reseed history")
		}
	}

	if raw := c.Query("room_id"); raw != "" {
		roomID, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
			return
		}
		if _, ok := s.catalog.GetRoom(roomID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
			return
		}
		c.JSON(http.StatusOK, s.stats.RoomStats(roomID))
		return
	}

	all := make([]*entities.RoomStats, 0)
	for _, room := range s.catalog.Rooms() {
		all = append(all, s.stats.RoomStats(room.ID))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": all})
}

func (s *Server) winners(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Leaderboards())
}

// serveWS authenticates before upgrading so a bad token gets a plain 401
func (s *Server) serveWS(c *gin.Context) {
	token := c.Query("token")
	gameID := c.Query("game_id")
	if token == "" || gameID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token and game_id are required"})
		return
	}

	sessionID := uuid.NewString()
	res, err := s.lobby.Connect(c.Request.Context(), sessionID, token, gameID, c.ClientIP())
	if err != nil {
		log.WithField("ip", c.ClientIP()).WithError(err).Warn("Connection refused")
		c.JSON(http.StatusUnauthorized, gin.H{"error": entities.UserMessage(err)})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithField("session_id", sessionID).WithError(err).Warn("Websocket upgrade failed")
		s.lobby.Disconnect(context.Background(), sessionID)
		return
	}

	client := newClient(sessionID, conn)
	s.hub.Register(client)
	if res.PreviousSessionID != "" && res.PreviousSessionID != sessionID {
		s.hub.Kick(res.PreviousSessionID)
	}
	go client.writePump()

	sess := res.Session
	client.enqueueEvent(events.InfoEvent{
		PlayerID:   sess.PlayerID,
		OperatorID: sess.OperatorID,
		Balance:    sess.Balance,
		RoomID:     sess.RoomID,
	})
	client.enqueueEvent(events.RoomsEvent{Rooms: s.catalog.Views()})
	if sess.InRoom() {
		s.hub.Join(sessionID, sess.RoomID)
		client.enqueueEvent(events.RoomJoinedEvent{
			RoomID:  sess.RoomID,
			Round:   s.currentRound(sess.RoomID),
			Stats:   s.stats.RoomStats(sess.RoomID),
			Message: "Rejoined room",
		})
	}

	client.readPump(s.handleFrame)

	s.hub.Unregister(client)
	s.lobby.Disconnect(context.Background(), sessionID)
	s.hub.BroadcastAll(events.RoomsEvent{Rooms: s.catalog.Views()})
}

func (s *Server) currentRound(roomID int) *entities.Round {
	if s.rounds == nil {
		return nil
	}
	return s.rounds.CurrentRound(roomID)
}

// handleFrame dispatches one inbound frame; handlers run on the read goroutine
// so a connection's requests are processed in order
func (s *Server) handleFrame(c *Client, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || s.validate.Struct(env) != nil {
		log.WithField("session_id", c.sessionID).Debug("Ignoring malformed frame")
		return
	}

	switch env.Event {
	case InPlaceBet:
		s.placeBet(c, env.Data)
	case InJoinRoom:
		s.joinRoom(c, env.Data)
	case InLeaveRoom:
		s.leaveRoom(c)
	default:
		log.WithFields(log.Fields{
			"session_id": c.sessionID,
			"event":      env.Event,
		}).Debug("Ignoring unknown event")
	}
}

func (s *Server) placeBet(c *Client, data json.RawMessage) {
	var msg PlaceBetMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.enqueueEvent(events.BetErrorEvent{Message: "Invalid bet"})
		return
	}
	if err := s.validate.Struct(msg); err != nil {
		c.enqueueEvent(events.BetErrorEvent{Message: "Invalid bet", RoundID: msg.LobbyID})
		return
	}

	receipt, err := s.betting.PlaceBet(s.ctx, c.sessionID, msg.request())
	if err != nil {
		c.enqueueEvent(events.BetErrorEvent{Message: entities.UserMessage(err), RoundID: msg.LobbyID})
		return
	}

	bet := receipt.Bet
	c.enqueueEvent(events.BetAcceptedEvent{
		Message:    "Bet placed successfully",
		BetID:      bet.ID.String(),
		RoundID:    bet.RoundID,
		StakeTotal: bet.StakeTotal,
		Balance:    receipt.Balance,
		Wagers:     bet.Wagers,
	})
}

func (s *Server) joinRoom(c *Client, data json.RawMessage) {
	var msg JoinRoomMessage
	if err := json.Unmarshal(data, &msg); err != nil || s.validate.Struct(msg) != nil {
		c.enqueueEvent(events.RoomErrorEvent{Message: entities.UserMessage(entities.ErrInvalidRoom)})
		return
	}

	joined, err := s.lobby.JoinRoom(s.ctx, c.sessionID, msg.RoomID)
	if err != nil {
		c.enqueueEvent(events.RoomErrorEvent{Message: entities.UserMessage(err)})
		return
	}

	s.hub.Join(c.sessionID, joined.Room.ID)
	c.enqueueEvent(events.RoomJoinedEvent{
		RoomID:  joined.Room.ID,
		Round:   joined.Round,
		Stats:   joined.Stats,
		Message: "Joined room",
	})
	s.hub.BroadcastAll(events.RoomsEvent{Rooms: s.catalog.Views()})
}

func (s *Server) leaveRoom(c *Client) {
	roomID, err := s.lobby.LeaveRoom(s.ctx, c.sessionID)
	if err != nil {
		c.enqueueEvent(events.RoomErrorEvent{Message: entities.UserMessage(err)})
		return
	}

	s.hub.Leave(c.sessionID, roomID)
	c.enqueueEvent(events.RoomLeftEvent{RoomID: roomID, Message: "Left room"})
	s.hub.BroadcastAll(events.RoomsEvent{Rooms: s.catalog.Views()})
}
