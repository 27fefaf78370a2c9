package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxnType is the wallet direction as understood by the operator service
type TxnType int

const (
	TxnDebit  TxnType = 0
	TxnCredit TxnType = 1
)

// WalletTransaction is one balance mutation request sent upstream
type WalletTransaction struct {
	TxnID            uuid.UUID       `json:"txn_id"`
	Type             TxnType         `json:"txn_type"`
	CorrelationTxnID uuid.UUID       `json:"txn_ref_id,omitempty"`
	PlayerID         string          `json:"user_id"`
	OperatorID       string          `json:"operator_id"`
	GameID           string          `json:"game_id"`
	Token            string          `json:"-"`
	IP               string          `json:"ip"`
	Amount           decimal.Decimal `json:"amount"`
	RoundID          string          `json:"round_id"`
	BetID            uuid.UUID       `json:"bet_id"`
	Description      string          `json:"description"`
	CreatedAt        time.Time       `json:"created_at"`
}
