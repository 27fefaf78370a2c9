package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Namespaces for name-based transaction ids. Retrying a credit or refund for
// the same settlement derives the same id, which the wallet deduplicates.
var (
	creditNamespace = uuid.MustParse("6f1c2a52-6d0e-4b8e-9a55-3e7a1f0c9d11")
	refundNamespace = uuid.MustParse("b2d4e8f0-1a3c-4e5f-8b7d-9c0e2f4a6b8d")
)

// DebitRequest describes the stake to take from a player's wallet
type DebitRequest struct {
	Player  entities.PlayerKey
	Token   string
	GameID  string
	IP      string
	RoundID string
	BetID   uuid.UUID
	Amount  decimal.Decimal
}

// CreditRequest describes a payout owed to a player for a round
type CreditRequest struct {
	Player           entities.PlayerKey
	Token            string
	GameID           string
	IP               string
	RoundID          string
	BetID            uuid.UUID
	Amount           decimal.Decimal
	CorrelationTxnID uuid.UUID
}

// WalletGateway turns bets and settlements into wallet transactions. Debits
// are synchronous and fail closed; credits go through the durable queue.
type WalletGateway struct {
	client       interfaces.WalletClient
	queue        interfaces.CreditQueue
	debitTimeout time.Duration
	clock        interfaces.Clock
	metrics      interfaces.Metrics
}

// NewWalletGateway creates a new wallet gateway
func NewWalletGateway(client interfaces.WalletClient, queue interfaces.CreditQueue, debitTimeout time.Duration, clock interfaces.Clock, metrics interfaces.Metrics) *WalletGateway {
	return &WalletGateway{
		client:       client,
		queue:        queue,
		debitTimeout: debitTimeout,
		clock:        clock,
		metrics:      metricsOrNop(metrics),
	}
}

// Debit takes the stake synchronously. Any failure, timeout included, means
// the bet is rejected.
func (g *WalletGateway) Debit(ctx context.Context, req DebitRequest) (*entities.WalletTransaction, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: debit amount must be positive", entities.ErrInvalidBet)
	}

	txnID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate debit txn id: %w", err)
	}

	txn := &entities.WalletTransaction{
		TxnID:       txnID,
		Type:        entities.TxnDebit,
		PlayerID:    req.Player.PlayerID,
		OperatorID:  req.Player.OperatorID,
		GameID:      req.GameID,
		Token:       req.Token,
		IP:          req.IP,
		Amount:      req.Amount,
		RoundID:     req.RoundID,
		BetID:       req.BetID,
		Description: fmt.Sprintf("%s debited for color game round %s", req.Amount.StringFixed(2), req.RoundID),
		CreatedAt:   g.clock.Now(),
	}

	debitCtx, cancel := context.WithTimeout(ctx, g.debitTimeout)
	defer cancel()

	start := time.Now()
	err = g.client.Post(debitCtx, txn)
	g.metrics.RecordDebit(time.Since(start), err == nil)

	if err != nil {
		fields := log.Fields{
			"txn_id":    txnID,
			"player":    req.Player.String(),
			"round_id":  req.RoundID,
			"amount":    req.Amount.String(),
			"timed_out": errors.Is(err, context.DeadlineExceeded),
		}
		log.WithFields(fields).WithError(err).Warn("Wallet debit failed")
		return nil, fmt.Errorf("%w: %v", entities.ErrDebitRejected, err)
	}

	return txn, nil
}

// CreditTxnID derives the credit id for a player's payout in a round
func CreditTxnID(roundID string, player entities.PlayerKey) uuid.UUID {
	return uuid.NewSHA1(creditNamespace, []byte(roundID+"|"+player.String()))
}

// RefundTxnID derives the refund id for a debit
func RefundTxnID(debitTxnID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(refundNamespace, debitTxnID[:])
}

// Credit enqueues a payout. The transaction id is derived from the round and
// player so a retried settlement never produces a second credit.
func (g *WalletGateway) Credit(ctx context.Context, req CreditRequest) (*entities.WalletTransaction, error) {
	txn := &entities.WalletTransaction{
		TxnID:            CreditTxnID(req.RoundID, req.Player),
		Type:             entities.TxnCredit,
		CorrelationTxnID: req.CorrelationTxnID,
		PlayerID:         req.Player.PlayerID,
		OperatorID:       req.Player.OperatorID,
		GameID:           req.GameID,
		Token:            req.Token,
		IP:               req.IP,
		Amount:           req.Amount,
		RoundID:          req.RoundID,
		BetID:            req.BetID,
		Description:      fmt.Sprintf("%s credited for color game round %s", req.Amount.StringFixed(2), req.RoundID),
		CreatedAt:        g.clock.Now(),
	}
	return txn, g.enqueue(ctx, txn, "payout")
}

// Refund enqueues a compensating credit for a debited bet that will never be
// settled.
func (g *WalletGateway) Refund(ctx context.Context, bet *entities.Bet, reason string) (*entities.WalletTransaction, error) {
	txn := &entities.WalletTransaction{
		TxnID:            RefundTxnID(bet.DebitTxnID),
		Type:             entities.TxnCredit,
		CorrelationTxnID: bet.DebitTxnID,
		PlayerID:         bet.PlayerID,
		OperatorID:       bet.OperatorID,
		GameID:           bet.GameID,
		Token:            bet.Token,
		IP:               bet.IP,
		Amount:           bet.StakeTotal,
		RoundID:          bet.RoundID,
		BetID:            bet.ID,
		Description:      fmt.Sprintf("%s refunded for color game round %s: %s", bet.StakeTotal.StringFixed(2), bet.RoundID, reason),
		CreatedAt:        g.clock.Now(),
	}
	return txn, g.enqueue(ctx, txn, "refund")
}

func (g *WalletGateway) enqueue(ctx context.Context, txn *entities.WalletTransaction, kind string) error {
	err := g.queue.Publish(ctx, txn)
	g.metrics.RecordCredit(kind, err == nil)
	if err != nil {
		creditQueueLog.WithFields(log.Fields{
			"txn_id":     txn.TxnID,
			"txn_ref_id": txn.CorrelationTxnID,
			"player_id":  txn.PlayerID,
			"round_id":   txn.RoundID,
			"amount":     txn.Amount.String(),
			"kind":       kind,
		}).WithError(err).Error("Failed to enqueue wallet credit")
		return fmt.Errorf("failed to enqueue %s: %w", kind, err)
	}
	return nil
}
