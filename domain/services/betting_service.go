package services

import (
	"context"
	"errors"
	"fmt"

	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// RoundSource exposes the live round of every room
type RoundSource interface {
	CurrentRound(roomID int) *entities.Round
}

// WagerRequest is one raw selection as received from a client
type WagerRequest struct {
	Selection string          `json:"selection"`
	Amount    decimal.Decimal `json:"amount"`
}

// PlaceBetRequest is a client's bet for the round it believes is live
type PlaceBetRequest struct {
	RoundID string         `json:"lobbyId"`
	Wagers  []WagerRequest `json:"selections"`
}

// BetReceipt confirms an accepted bet
type BetReceipt struct {
	Bet     *entities.Bet
	Balance decimal.Decimal
}

// BettingService validates, debits and records bet placements
type BettingService struct {
	rules    entities.GameRules
	clock    interfaces.Clock
	sessions interfaces.SessionStore
	catalog  *RoomCatalog
	rounds   RoundSource
	ledger   *BetLedger
	wallet   *WalletGateway
	bets     interfaces.BetRepository
	failed   interfaces.FailedBetRepository
	metrics  interfaces.Metrics
}

// BettingDeps groups the collaborators of a BettingService
type BettingDeps struct {
	Rules    entities.GameRules
	Clock    interfaces.Clock
	Sessions interfaces.SessionStore
	Catalog  *RoomCatalog
	Rounds   RoundSource
	Ledger   *BetLedger
	Wallet   *WalletGateway
	Bets     interfaces.BetRepository
	Failed   interfaces.FailedBetRepository
	Metrics  interfaces.Metrics
}

// NewBettingService creates a new betting service
func NewBettingService(deps BettingDeps) *BettingService {
	return &BettingService{
		rules:    deps.Rules,
		clock:    deps.Clock,
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		rounds:   deps.Rounds,
		ledger:   deps.Ledger,
		wallet:   deps.Wallet,
		bets:     deps.Bets,
		failed:   deps.Failed,
		metrics:  metricsOrNop(deps.Metrics),
	}
}

// PlaceBet accepts a bet only after the wallet debit succeeded. The placement
// time is taken on entry, so a request that arrives before the betting
// window closes is judged by that time even if the debit finishes later.
func (s *BettingService) PlaceBet(ctx context.Context, sessionID string, req PlaceBetRequest) (*BetReceipt, error) {
	at := s.clock.Now()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, entities.ErrSessionNotFound) {
			return nil, s.reject(ctx, nil, req, err)
		}
		return nil, s.reject(ctx, nil, req, fmt.Errorf("failed to load session: %w", err))
	}
	if !sess.InRoom() {
		return nil, s.reject(ctx, sess, req, entities.ErrNotInRoom)
	}

	room, ok := s.catalog.GetRoom(sess.RoomID)
	if !ok {
		return nil, s.reject(ctx, sess, req, fmt.Errorf("%w: %d", entities.ErrInvalidRoom, sess.RoomID))
	}

	round := s.rounds.CurrentRound(room.ID)
	if round == nil || round.ID != req.RoundID {
		return nil, s.reject(ctx, sess, req, fmt.Errorf("%w: %q", entities.ErrInvalidLobby, req.RoundID))
	}
	if !round.AcceptsBets(at) {
		return nil, s.reject(ctx, sess, req, entities.ErrRoundClosed)
	}

	wagers, err := s.validateWagers(room, req.Wagers)
	if err != nil {
		return nil, s.reject(ctx, sess, req, err)
	}
	total := entities.SumWagers(wagers)
	if total.GreaterThan(sess.Balance) {
		return nil, s.reject(ctx, sess, req, entities.ErrInsufficientBalance)
	}

	reservation, err := s.ledger.Reserve(room.ID, round.ID, sess.Key(), at)
	if err != nil {
		return nil, s.reject(ctx, sess, req, err)
	}

	betID := uuid.New()
	debit, err := s.wallet.Debit(ctx, DebitRequest{
		Player:  sess.Key(),
		Token:   sess.Token,
		GameID:  sess.GameID,
		IP:      sess.IP,
		RoundID: round.ID,
		BetID:   betID,
		Amount:  total,
	})
	if err != nil {
		reservation.Abort()
		return nil, s.reject(ctx, sess, req, err)
	}

	bet := &entities.Bet{
		ID:         betID,
		RoundID:    round.ID,
		RoomID:     room.ID,
		PlayerID:   sess.PlayerID,
		OperatorID: sess.OperatorID,
		StakeTotal: total,
		Wagers:     wagers,
		DebitTxnID: debit.TxnID,
		SessionRef: sess.SessionID,
		GameID:     sess.GameID,
		Token:      sess.Token,
		IP:         sess.IP,
		Status:     entities.BetPlaced,
		CreatedAt:  at,
	}

	// Must precede Commit: the pending reservation holds the drain until the row exists
	persisted := s.persist(ctx, bet)

	if err := reservation.Commit(bet); err != nil {
		// The round was drained while the debit was in flight
		if _, refundErr := s.wallet.Refund(ctx, bet, "round closed during debit"); refundErr != nil {
			log.WithField("bet_id", bet.ID).WithError(refundErr).Error("Failed to refund late bet")
		} else if persisted {
			if err := s.bets.UpdateStatus(ctx, []uuid.UUID{bet.ID}, entities.BetRefunded); err != nil {
				log.WithField("bet_id", bet.ID).WithError(err).Error("Failed to mark late bet refunded")
			}
		}
		return nil, s.reject(ctx, sess, req, err)
	}

	balance, err := s.sessions.AdjustBalance(ctx, sess.SessionID, total.Neg())
	if err != nil {
		log.WithField("session_id", sess.SessionID).WithError(err).Warn("Cached balance not updated after debit")
		balance = sess.Balance.Sub(total)
	}

	s.metrics.RecordBetPlaced(room.ID, total)
	log.WithFields(log.Fields{
		"bet_id":   bet.ID,
		"round_id": bet.RoundID,
		"room_id":  bet.RoomID,
		"player":   sess.Key().String(),
		"stake":    total.String(),
		"txn_id":   debit.TxnID,
	}).Info("Bet placed")

	return &BetReceipt{Bet: bet, Balance: balance}, nil
}

// persist records the bet row, reporting whether it was written
func (s *BettingService) persist(ctx context.Context, bet *entities.Bet) bool {
	if s.bets == nil {
		return false
	}
	if err := s.bets.Create(ctx, bet); err != nil {
		log.WithFields(log.Fields{
			"bet_id":   bet.ID,
			"round_id": bet.RoundID,
		}).WithError(err).Error("Failed to persist bet")
		return false
	}
	return true
}

// validateWagers parses selections, merges repeats of the same selection and
// checks every stake against the room's bounds and the total against the
// game limits.
func (s *BettingService) validateWagers(room *entities.Room, raw []WagerRequest) ([]entities.Wager, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no selections", entities.ErrInvalidBet)
	}

	index := make(map[entities.Selection]int)
	var wagers []entities.Wager
	for _, w := range raw {
		sel, err := entities.ParseSelection(w.Selection)
		if err != nil {
			return nil, err
		}
		if !w.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: amount %s", entities.ErrStakeOutOfBounds, w.Amount)
		}
		if i, ok := index[sel]; ok {
			wagers[i].Amount = wagers[i].Amount.Add(w.Amount)
			continue
		}
		index[sel] = len(wagers)
		wagers = append(wagers, entities.Wager{Selection: sel, Amount: w.Amount})
	}

	for _, w := range wagers {
		if !room.BoundsFor(w.Selection.Kind()).Contains(w.Amount) {
			return nil, fmt.Errorf("%w: %s on %s", entities.ErrStakeOutOfBounds, w.Amount, w.Selection)
		}
	}

	total := entities.SumWagers(wagers)
	if total.LessThan(s.rules.MinBet) || total.GreaterThan(s.rules.MaxBet) {
		return nil, fmt.Errorf("%w: total %s", entities.ErrStakeOutOfBounds, total)
	}
	return wagers, nil
}

// reject records a refused placement and returns err unchanged
func (s *BettingService) reject(ctx context.Context, sess *entities.PlayerSession, req PlaceBetRequest, err error) error {
	reason := entities.UserMessage(err)
	s.metrics.RecordBetRejected(reason)

	failed := &entities.FailedBet{
		RoundID:   req.RoundID,
		Reason:    err.Error(),
		Request:   req,
		CreatedAt: s.clock.Now(),
	}
	fields := log.Fields{
		"round_id": req.RoundID,
		"reason":   reason,
	}
	if sess != nil {
		failed.PlayerID = sess.PlayerID
		failed.OperatorID = sess.OperatorID
		failed.RoomID = sess.RoomID
		fields["player"] = sess.Key().String()
		fields["room_id"] = sess.RoomID
	}
	failedBetLog.WithFields(fields).WithError(err).Warn("Bet rejected")

	if s.failed != nil {
		if recErr := s.failed.Record(ctx, failed); recErr != nil {
			log.WithError(recErr).Warn("Failed to record rejected bet")
		}
	}
	return err
}
