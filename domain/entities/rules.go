package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameRules carries the tunable parameters of one game variant
type GameRules struct {
	SingleBaseMultiplier decimal.Decimal
	PairMultiplier       decimal.Decimal
	BonusFactor          decimal.Decimal

	MinBet     decimal.Decimal
	MaxBet     decimal.Decimal
	MaxCashout decimal.Decimal

	OpeningDuration time.Duration
	BettingDuration time.Duration
	ResultDuration  time.Duration
	TickInterval    time.Duration

	BonusSetSize    int
	AllowRepeatBets bool
	HistorySize     int
}

// DefaultGameRules returns the live color game rule set
func DefaultGameRules() GameRules {
	return GameRules{
		SingleBaseMultiplier: decimal.NewFromInt(2),
		PairMultiplier:       decimal.NewFromInt(5),
		BonusFactor:          decimal.NewFromInt(2),
		MinBet:               decimal.NewFromInt(10),
		MaxBet:               decimal.NewFromInt(20000),
		MaxCashout:           decimal.NewFromInt(500000),
		OpeningDuration:      5 * time.Second,
		BettingDuration:      15 * time.Second,
		ResultDuration:       6 * time.Second,
		TickInterval:         time.Second,
		BonusSetSize:         2,
		AllowRepeatBets:      true,
		HistorySize:          100,
	}
}
