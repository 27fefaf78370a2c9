package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus is the result of a selection or a whole bet
type SettlementStatus string

const (
	SettlementWin  SettlementStatus = "WIN"
	SettlementLoss SettlementStatus = "LOSS"
)

// SelectionResult is the evaluated result of one wager
type SelectionResult struct {
	Selection  Selection        `json:"selection"`
	Stake      decimal.Decimal  `json:"stake"`
	Multiplier decimal.Decimal  `json:"mult"`
	WinAmount  decimal.Decimal  `json:"winAmt"`
	IsBonus    bool             `json:"isBonus"`
	Status     SettlementStatus `json:"status"`
}

// SettlementResult is the immutable per-bet settlement record
type SettlementResult struct {
	ID          int64             `db:"id" json:"-"`
	Bet         *Bet              `json:"bet"`
	Outcome     Outcome           `db:"outcome" json:"outcome"`
	BonusSet    BonusSet          `db:"bonus_set" json:"bonusSet"`
	Results     []SelectionResult `db:"selections" json:"results"`
	WinAmount   decimal.Decimal   `db:"win_amount" json:"winAmount"`
	Multiplier  decimal.Decimal   `db:"multiplier" json:"multiplier"`
	Status      SettlementStatus  `db:"status" json:"status"`
	CreditTxnID *uuid.UUID        `db:"credit_txn_id" json:"creditTxnId,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
}

// PlayerSettlement aggregates one player's bets within a round
type PlayerSettlement struct {
	Player     PlayerKey
	SessionRef string
	Bets       []*SettlementResult
	StakeTotal decimal.Decimal
	WinAmount  decimal.Decimal
	Multiplier decimal.Decimal
}

// CorrelationTxnID returns the debit txn id the credit refers back to
func (p *PlayerSettlement) CorrelationTxnID() uuid.UUID {
	if len(p.Bets) == 0 {
		return uuid.Nil
	}
	return p.Bets[0].Bet.DebitTxnID
}

// Status is WIN when anything was won
func (p *PlayerSettlement) Status() SettlementStatus {
	if p.WinAmount.IsPositive() {
		return SettlementWin
	}
	return SettlementLoss
}

// RoundSettlement summarizes one settle pass
type RoundSettlement struct {
	RoundID        string
	RoomID         int
	BetCount       int
	PlayerCount    int
	TotalStake     decimal.Decimal
	TotalWin       decimal.Decimal
	TotalCredited  decimal.Decimal
	CreditFailures int
	Players        []*PlayerSettlement
}
