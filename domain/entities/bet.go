package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wager is one (selection, stake) pair inside a bet
type Wager struct {
	Selection Selection       `json:"selection"`
	Amount    decimal.Decimal `json:"amount"`
}

// BetStatus tracks a persisted bet through settlement or refund
type BetStatus string

const (
	BetPlaced   BetStatus = "PLACED"
	BetSettled  BetStatus = "SETTLED"
	BetRefunded BetStatus = "REFUNDED"
)

// Bet is one player's accepted wager set for one round. It is created only
// after its debit succeeded and only SessionRef changes afterwards.
type Bet struct {
	ID         uuid.UUID       `db:"bet_id" json:"betId"`
	RoundID    string          `db:"round_id" json:"roundId"`
	RoomID     int             `db:"room_id" json:"roomId"`
	PlayerID   string          `db:"player_id" json:"userId"`
	OperatorID string          `db:"operator_id" json:"operatorId"`
	StakeTotal decimal.Decimal `db:"stake_total" json:"stakeTotal"`
	Wagers     []Wager         `db:"selections" json:"selections"`
	DebitTxnID uuid.UUID       `db:"debit_txn_id" json:"debitTxnId"`
	SessionRef string          `db:"session_ref" json:"-"`
	GameID     string          `db:"game_id" json:"-"`
	Token      string          `db:"token" json:"-"`
	IP         string          `db:"ip" json:"-"`
	Status     BetStatus       `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// PlayerKey returns the owner of the bet
func (b *Bet) PlayerKey() PlayerKey {
	return PlayerKey{OperatorID: b.OperatorID, PlayerID: b.PlayerID}
}

// SumWagers totals the selection stakes
func SumWagers(wagers []Wager) decimal.Decimal {
	total := decimal.Zero
	for _, w := range wagers {
		total = total.Add(w.Amount)
	}
	return total
}

// FailedBet is an audit record of a rejected placement
type FailedBet struct {
	ID         int64     `db:"id"`
	PlayerID   string    `db:"player_id"`
	OperatorID string    `db:"operator_id"`
	RoomID     int       `db:"room_id"`
	RoundID    string    `db:"round_id"`
	Reason     string    `db:"reason"`
	Request    any       `db:"request"`
	CreatedAt  time.Time `db:"created_at"`
}
