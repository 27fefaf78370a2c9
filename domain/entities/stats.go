package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryEntry is one finished round kept for statistics
type HistoryEntry struct {
	RoundID  string    `json:"roundId"`
	RoomID   int       `json:"roomId"`
	Outcome  Outcome   `json:"outcome"`
	BonusSet BonusSet  `json:"bonusSet,omitempty"`
	ClosedAt time.Time `json:"closedAt"`
}

// RoomStats is the rolling history of a room plus symbol frequencies
type RoomStats struct {
	RoomID      int                `json:"roomId"`
	History     []Outcome          `json:"history"`
	Percentages map[Symbol]float64 `json:"percentages"`
}

// Winner is one leaderboard row
type Winner struct {
	PlayerID   string          `json:"userId"`
	OperatorID string          `json:"-"`
	WinAmount  decimal.Decimal `json:"winAmt"`
	Multiplier decimal.Decimal `json:"mult"`
}

// Leaderboards holds the two global top lists
type Leaderboards struct {
	BiggestWins     []Winner `json:"biggestWinners"`
	HighestMultiple []Winner `json:"highestWinners"`
}

// MaskPlayerID shortens an id to its first and last character, e.g. "a***z"
func MaskPlayerID(id string) string {
	r := []rune(id)
	if len(r) == 0 {
		return "***"
	}
	return string(r[0]) + "***" + string(r[len(r)-1])
}
