package services

import (
	"context"
	"errors"
	"fmt"

	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// ConnectResult is the outcome of a connection handshake
type ConnectResult struct {
	Session *entities.PlayerSession

	// PreviousSessionID is the session this connection took over, if any
	PreviousSessionID string
}

// JoinResult carries what a client needs right after joining a room
type JoinResult struct {
	Room  *entities.Room
	Round *entities.Round
	Stats *entities.RoomStats
}

// LobbyService manages sessions and room membership. A player is a member
// of at most one room at a time, across all of their connections.
type LobbyService struct {
	identity interfaces.IdentityService
	sessions interfaces.SessionStore
	catalog  *RoomCatalog
	rounds   RoundSource
	ledger   *BetLedger
	stats    *StatsService
	clock    interfaces.Clock
}

// NewLobbyService creates a new lobby service
func NewLobbyService(identity interfaces.IdentityService, sessions interfaces.SessionStore, catalog *RoomCatalog, rounds RoundSource, ledger *BetLedger, stats *StatsService, clock interfaces.Clock) *LobbyService {
	return &LobbyService{
		identity: identity,
		sessions: sessions,
		catalog:  catalog,
		rounds:   rounds,
		ledger:   ledger,
		stats:    stats,
		clock:    clock,
	}
}

// Connect resolves the token, caches the session and, for a returning
// player, takes over their previous session: room membership is restored
// and unsettled bets are redirected to the new session.
func (s *LobbyService) Connect(ctx context.Context, sessionID, token, gameID, ip string) (*ConnectResult, error) {
	profile, err := s.identity.LookupSession(ctx, token, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if profile == nil {
		return nil, entities.ErrSessionNotFound
	}

	sess := &entities.PlayerSession{
		SessionID:   sessionID,
		Token:       token,
		GameID:      gameID,
		PlayerID:    profile.PlayerID,
		OperatorID:  profile.OperatorID,
		Balance:     profile.Balance,
		IP:          ip,
		ConnectedAt: s.clock.Now(),
	}
	key := sess.Key()

	previous, err := s.sessions.BindPlayer(ctx, key, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to bind player session: %w", err)
	}

	// A live previous session already counts toward occupancy; its record
	// is removed so its own disconnect does not count the player out.
	counted := false
	if previous != "" && previous != sessionID {
		if old, err := s.sessions.Get(ctx, previous); err == nil {
			counted = old.InRoom()
			if err := s.sessions.Delete(ctx, previous); err != nil {
				log.WithField("session_id", previous).WithError(err).Warn("Failed to drop previous session")
			}
		}
	}

	roomID, err := s.sessions.CurrentRoom(ctx, key)
	if err != nil {
		log.WithField("player", key.String()).WithError(err).Warn("Failed to read room membership")
		roomID = 0
	}
	if roomID != 0 {
		if _, ok := s.catalog.GetRoom(roomID); ok {
			sess.RoomID = roomID
			if !counted {
				s.catalog.AddOccupant(roomID)
			}
		} else {
			_ = s.sessions.ReleaseRoom(ctx, key, roomID)
		}
	}

	if n := s.ledger.RebindSession(key, sessionID); n > 0 {
		log.WithFields(log.Fields{
			"player":     key.String(),
			"session_id": sessionID,
			"bets":       n,
		}).Info("Pending bets moved to new session")
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	log.WithFields(log.Fields{
		"player":     key.String(),
		"session_id": sessionID,
		"room_id":    sess.RoomID,
		"previous":   previous,
	}).Info("Player connected")

	return &ConnectResult{Session: sess, PreviousSessionID: previous}, nil
}

// JoinRoom makes the session's player a member of a room
func (s *LobbyService) JoinRoom(ctx context.Context, sessionID string, roomID int) (*JoinResult, error) {
	result, err := s.joinRoom(ctx, sessionID, roomID)
	if err != nil {
		failedJoinLog.WithFields(log.Fields{
			"session_id": sessionID,
			"room_id":    roomID,
		}).WithError(err).Warn("Join room failed")
		return nil, err
	}
	return result, nil
}

func (s *LobbyService) joinRoom(ctx context.Context, sessionID string, roomID int) (*JoinResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	room, ok := s.catalog.GetRoom(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", entities.ErrInvalidRoom, roomID)
	}

	if sess.InRoom() {
		if sess.RoomID == roomID {
			return s.joinResult(room), nil
		}
		return nil, fmt.Errorf("%w: room %d", entities.ErrAlreadyInRoom, sess.RoomID)
	}

	if err := s.sessions.ClaimRoom(ctx, sess.Key(), roomID); err != nil {
		return nil, err
	}

	if err := s.sessions.SetRoom(ctx, sessionID, roomID); err != nil {
		_ = s.sessions.ReleaseRoom(ctx, sess.Key(), roomID)
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	s.catalog.AddOccupant(roomID)

	log.WithFields(log.Fields{
		"player":  sess.Key().String(),
		"room_id": roomID,
	}).Debug("Player joined room")
	return s.joinResult(room), nil
}

func (s *LobbyService) joinResult(room *entities.Room) *JoinResult {
	result := &JoinResult{Room: room}
	if s.rounds != nil {
		result.Round = s.rounds.CurrentRound(room.ID)
	}
	if s.stats != nil {
		result.Stats = s.stats.RoomStats(room.ID)
	}
	return result
}

// LeaveRoom ends the player's membership. Bets already placed in the room
// are still settled.
func (s *LobbyService) LeaveRoom(ctx context.Context, sessionID string) (int, error) {
	roomID, err := s.leaveRoom(ctx, sessionID)
	if err != nil {
		failedExitLog.WithField("session_id", sessionID).WithError(err).Warn("Leave room failed")
		return 0, err
	}
	return roomID, nil
}

func (s *LobbyService) leaveRoom(ctx context.Context, sessionID string) (int, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !sess.InRoom() {
		return 0, entities.ErrNotInRoom
	}

	roomID := sess.RoomID
	if err := s.sessions.ReleaseRoom(ctx, sess.Key(), roomID); err != nil {
		return 0, fmt.Errorf("failed to release room: %w", err)
	}
	if err := s.sessions.SetRoom(ctx, sessionID, 0); err != nil {
		return 0, fmt.Errorf("failed to update session: %w", err)
	}
	s.catalog.RemoveOccupant(roomID)
	return roomID, nil
}

// Disconnect drops a session. Room membership survives so a reconnecting
// player lands back in the same room; only the occupancy count drops.
func (s *LobbyService) Disconnect(ctx context.Context, sessionID string) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, entities.ErrSessionNotFound) {
			log.WithField("session_id", sessionID).WithError(err).Warn("Failed to load session on disconnect")
		}
		return
	}

	if sess.InRoom() {
		s.catalog.RemoveOccupant(sess.RoomID)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		log.WithField("session_id", sessionID).WithError(err).Warn("Failed to delete session")
	}

	log.WithFields(log.Fields{
		"player":     sess.Key().String(),
		"session_id": sessionID,
	}).Debug("Player disconnected")
}

// Session returns the cached session
func (s *LobbyService) Session(ctx context.Context, sessionID string) (*entities.PlayerSession, error) {
	return s.sessions.Get(ctx, sessionID)
}
