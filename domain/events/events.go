package events

import (
	"colorgame/domain/entities"

	"github.com/shopspring/decimal"
)

// EventType is the outbound message name seen by clients
type EventType string

const (
	EventTypeInfo         EventType = "info"
	EventTypeRooms        EventType = "rooms"
	EventTypeRoomJoined   EventType = "room-joined"
	EventTypeRoomLeft     EventType = "room-left"
	EventTypeRoomError    EventType = "room-error"
	EventTypeBetAccepted  EventType = "bet-accepted"
	EventTypeBetError     EventType = "bet-error"
	EventTypeRoundTick    EventType = "round"
	EventTypeBonus        EventType = "bonus"
	EventTypeOutcome      EventType = "outcome"
	EventTypeSettlement   EventType = "settlement"
	EventTypeHistory      EventType = "history"
	EventTypeLeaderboards EventType = "winners"
)

// Event is the base interface for all outbound messages
type Event interface {
	Type() EventType
}

// InfoEvent greets a connection with its cached profile
type InfoEvent struct {
	PlayerID   string          `json:"userId"`
	OperatorID string          `json:"operatorId"`
	Balance    decimal.Decimal `json:"balance"`
	RoomID     int             `json:"roomId,omitempty"`
}

func (e InfoEvent) Type() EventType { return EventTypeInfo }

// RoomsEvent lists rooms with occupancy
type RoomsEvent struct {
	Rooms []entities.RoomView `json:"rooms"`
}

func (e RoomsEvent) Type() EventType { return EventTypeRooms }

// RoomJoinedEvent confirms membership and carries the live round
type RoomJoinedEvent struct {
	RoomID  int                 `json:"roomId"`
	Round   *entities.Round     `json:"round,omitempty"`
	Stats   *entities.RoomStats `json:"stats,omitempty"`
	Message string              `json:"message"`
}

func (e RoomJoinedEvent) Type() EventType { return EventTypeRoomJoined }

// RoomLeftEvent confirms a leave
type RoomLeftEvent struct {
	RoomID  int    `json:"roomId"`
	Message string `json:"message"`
}

func (e RoomLeftEvent) Type() EventType { return EventTypeRoomLeft }

// RoomErrorEvent reports a failed join or leave
type RoomErrorEvent struct {
	Message string `json:"message"`
}

func (e RoomErrorEvent) Type() EventType { return EventTypeRoomError }

// BetAcceptedEvent confirms a placement
type BetAcceptedEvent struct {
	Message    string           `json:"message"`
	BetID      string           `json:"betId"`
	RoundID    string           `json:"lobbyId"`
	StakeTotal decimal.Decimal  `json:"stakeTotal"`
	Balance    decimal.Decimal  `json:"balance"`
	Wagers     []entities.Wager `json:"selections"`
}

func (e BetAcceptedEvent) Type() EventType { return EventTypeBetAccepted }

// BetErrorEvent reports a rejected placement
type BetErrorEvent struct {
	Message string `json:"message"`
	RoundID string `json:"lobbyId,omitempty"`
}

func (e BetErrorEvent) Type() EventType { return EventTypeBetError }

// RoundTickEvent is the once-per-second phase countdown
type RoundTickEvent struct {
	RoomID    int                  `json:"roomId"`
	RoundID   string               `json:"lobbyId"`
	Status    entities.RoundStatus `json:"status"`
	Remaining int                  `json:"remaining"`
}

func (e RoundTickEvent) Type() EventType { return EventTypeRoundTick }

// BonusEvent announces the bonus identifiers before the outcome
type BonusEvent struct {
	RoomID   int               `json:"roomId"`
	RoundID  string            `json:"lobbyId"`
	BonusSet entities.BonusSet `json:"bonus"`
}

func (e BonusEvent) Type() EventType { return EventTypeBonus }

// OutcomeEvent announces the drawn symbols
type OutcomeEvent struct {
	RoomID  int              `json:"roomId"`
	RoundID string           `json:"lobbyId"`
	Outcome entities.Outcome `json:"outcome"`
}

func (e OutcomeEvent) Type() EventType { return EventTypeOutcome }

// SettlementEvent is the per-player WIN/LOSS message
type SettlementEvent struct {
	RoomID    int                        `json:"roomId"`
	RoundID   string                     `json:"lobbyId"`
	Status    entities.SettlementStatus  `json:"status"`
	Amount    decimal.Decimal            `json:"amount"`
	Outcome   entities.Outcome           `json:"outcome"`
	Breakdown []entities.SelectionResult `json:"breakdown"`
	Balance   *decimal.Decimal           `json:"balance,omitempty"`
}

func (e SettlementEvent) Type() EventType { return EventTypeSettlement }

// HistoryEvent carries the rolling outcome history of a room
type HistoryEvent struct {
	entities.RoomStats
}

func (e HistoryEvent) Type() EventType { return EventTypeHistory }

// LeaderboardsEvent carries the masked top winners
type LeaderboardsEvent struct {
	entities.Leaderboards
}

func (e LeaderboardsEvent) Type() EventType { return EventTypeLeaderboards }
