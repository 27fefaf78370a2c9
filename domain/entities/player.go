package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PlayerKey identifies a player within an operator (tenant)
type PlayerKey struct {
	OperatorID string `json:"operatorId"`
	PlayerID   string `json:"userId"`
}

// String renders the key for cache keys and log fields
func (k PlayerKey) String() string {
	return fmt.Sprintf("%s:%s", k.OperatorID, k.PlayerID)
}

// PlayerSession is the cached state of one connected player
type PlayerSession struct {
	SessionID   string          `json:"sessionId"`
	Token       string          `json:"token"`
	GameID      string          `json:"gameId"`
	PlayerID    string          `json:"userId"`
	OperatorID  string          `json:"operatorId"`
	Balance     decimal.Decimal `json:"balance"`
	IP          string          `json:"ip"`
	RoomID      int             `json:"roomId,omitempty"`
	ConnectedAt time.Time       `json:"connectedAt"`
}

// Key returns the player's identity
func (s *PlayerSession) Key() PlayerKey {
	return PlayerKey{OperatorID: s.OperatorID, PlayerID: s.PlayerID}
}

// InRoom reports whether the session holds a room membership
func (s *PlayerSession) InRoom() bool {
	return s.RoomID != 0
}

// PlayerProfile is what the identity service returns for a token
type PlayerProfile struct {
	PlayerID   string          `json:"user_id"`
	OperatorID string          `json:"operatorId"`
	Balance    decimal.Decimal `json:"balance"`
}
