package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/events"
	"colorgame/domain/interfaces"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// SettlementService pays out a round once its outcome is known
type SettlementService struct {
	ledger      *BetLedger
	rules       *PayoutRules
	wallet      *WalletGateway
	sessions    interfaces.SessionStore
	broadcaster interfaces.Broadcaster
	uowFactory  interfaces.UnitOfWorkFactory
	audit       interfaces.AuditIndexer
	stats       *StatsService
	metrics     interfaces.Metrics
	clock       interfaces.Clock
}

// SettlementDeps groups the collaborators of a SettlementService
type SettlementDeps struct {
	Ledger      *BetLedger
	Rules       *PayoutRules
	Wallet      *WalletGateway
	Sessions    interfaces.SessionStore
	Broadcaster interfaces.Broadcaster
	UnitOfWork  interfaces.UnitOfWorkFactory
	Audit       interfaces.AuditIndexer // optional
	Stats       *StatsService
	Metrics     interfaces.Metrics // optional
	Clock       interfaces.Clock
}

// NewSettlementService creates a new settlement service
func NewSettlementService(deps SettlementDeps) *SettlementService {
	return &SettlementService{
		ledger:      deps.Ledger,
		rules:       deps.Rules,
		wallet:      deps.Wallet,
		sessions:    deps.Sessions,
		broadcaster: deps.Broadcaster,
		uowFactory:  deps.UnitOfWork,
		audit:       deps.Audit,
		stats:       deps.Stats,
		metrics:     metricsOrNop(deps.Metrics),
		clock:       deps.Clock,
	}
}

// Settle drains the room's ledger and pays out every bet against the
// round's outcome. It never aborts part way: wallet, cache and persistence
// failures are logged and counted and the remaining players still settle.
func (s *SettlementService) Settle(ctx context.Context, round *entities.Round) (*entities.RoundSettlement, error) {
	if !round.IsDrawn() {
		return nil, fmt.Errorf("round %s has no outcome", round.ID)
	}
	bets := s.ledger.DrainAndClear(ctx, round.RoomID)
	return s.SettleBets(ctx, round, bets), nil
}

// SettleBets settles an explicit bet set. Recovery uses it for bets that were
// persisted but never settled; credit ids are derived from the round and
// player, so settling the same bets again cannot pay twice.
func (s *SettlementService) SettleBets(ctx context.Context, round *entities.Round, bets []*entities.Bet) *entities.RoundSettlement {
	start := time.Now()
	summary := &entities.RoundSettlement{
		RoundID:       round.ID,
		RoomID:        round.RoomID,
		BetCount:      len(bets),
		TotalStake:    decimal.Zero,
		TotalWin:      decimal.Zero,
		TotalCredited: decimal.Zero,
	}
	if len(bets) == 0 {
		s.metrics.RecordSettlement(round.RoomID, 0, time.Since(start))
		return summary
	}

	players := s.evaluate(round, bets)
	summary.Players = players
	summary.PlayerCount = len(players)

	var results []*entities.SettlementResult
	for _, p := range players {
		summary.TotalStake = summary.TotalStake.Add(p.StakeTotal)
		summary.TotalWin = summary.TotalWin.Add(p.WinAmount)

		if p.WinAmount.IsPositive() {
			if s.payWinner(ctx, round, p) {
				summary.TotalCredited = summary.TotalCredited.Add(p.WinAmount)
			} else {
				summary.CreditFailures++
			}
		} else {
			s.notifyLoss(ctx, round, p)
		}
		results = append(results, p.Bets...)
	}

	s.persist(ctx, round, results)
	s.index(ctx, round, results)

	if s.stats != nil {
		s.stats.RecordWinners(players)
	}
	s.metrics.RecordSettlement(round.RoomID, len(bets), time.Since(start))

	settlementLog.WithFields(log.Fields{
		"round_id":        round.ID,
		"room_id":         round.RoomID,
		"bets":            summary.BetCount,
		"players":         summary.PlayerCount,
		"total_stake":     summary.TotalStake.String(),
		"total_win":       summary.TotalWin.String(),
		"total_credited":  summary.TotalCredited.String(),
		"credit_failures": summary.CreditFailures,
	}).Info("Round settled")

	return summary
}

// evaluate scores every bet and groups the results by player in first-bet order
func (s *SettlementService) evaluate(round *entities.Round, bets []*entities.Bet) []*entities.PlayerSettlement {
	now := s.clock.Now()
	byPlayer := make(map[entities.PlayerKey]*entities.PlayerSettlement)
	var ordered []*entities.PlayerSettlement

	for _, bet := range bets {
		result := s.rules.EvaluateBet(bet, round.Outcome, round.BonusSet)
		result.CreatedAt = now

		key := bet.PlayerKey()
		p, ok := byPlayer[key]
		if !ok {
			p = &entities.PlayerSettlement{
				Player:     key,
				StakeTotal: decimal.Zero,
				WinAmount:  decimal.Zero,
				Multiplier: decimal.Zero,
			}
			byPlayer[key] = p
			ordered = append(ordered, p)
		}
		// the newest bet carries the most recent session
		p.SessionRef = bet.SessionRef
		p.Bets = append(p.Bets, result)
		p.StakeTotal = p.StakeTotal.Add(bet.StakeTotal)
		p.WinAmount = p.WinAmount.Add(result.WinAmount)
		p.Multiplier = p.Multiplier.Add(result.Multiplier)
	}
	return ordered
}

// payWinner enqueues the aggregated credit and, only when it was accepted,
// updates the cached balance and notifies the player.
func (s *SettlementService) payWinner(ctx context.Context, round *entities.Round, p *entities.PlayerSettlement) bool {
	first := p.Bets[0].Bet
	txn, err := s.wallet.Credit(ctx, CreditRequest{
		Player:           p.Player,
		Token:            first.Token,
		GameID:           first.GameID,
		IP:               first.IP,
		RoundID:          round.ID,
		BetID:            first.ID,
		Amount:           p.WinAmount,
		CorrelationTxnID: p.CorrelationTxnID(),
	})
	if err != nil {
		settlementLog.WithFields(log.Fields{
			"round_id": round.ID,
			"player":   p.Player.String(),
			"amount":   p.WinAmount.String(),
		}).WithError(err).Error("Credit failed, player not paid")
		return false
	}

	creditID := txn.TxnID
	for _, r := range p.Bets {
		if r.WinAmount.IsPositive() {
			id := creditID
			r.CreditTxnID = &id
		}
	}

	// The credit stands even if the cache write fails. It is never retried here.
	sessionID := s.currentSession(ctx, p.Player, p.SessionRef)
	var balance *decimal.Decimal
	if sessionID != "" {
		newBalance, err := s.sessions.AdjustBalance(ctx, sessionID, p.WinAmount)
		if err != nil {
			entry := settlementLog.WithFields(log.Fields{
				"round_id":   round.ID,
				"player":     p.Player.String(),
				"session_id": sessionID,
			}).WithError(err)
			if errors.Is(err, entities.ErrSessionNotFound) {
				entry.Debug("Session gone, cached balance not updated")
			} else {
				entry.Warn("Cached balance update failed after credit")
			}
		} else {
			balance = &newBalance
		}
	}

	s.emit(sessionID, p, events.SettlementEvent{
		RoomID:    round.RoomID,
		RoundID:   round.ID,
		Status:    entities.SettlementWin,
		Amount:    p.WinAmount,
		Outcome:   round.Outcome,
		Breakdown: breakdown(p),
		Balance:   balance,
	})
	return true
}

func (s *SettlementService) notifyLoss(ctx context.Context, round *entities.Round, p *entities.PlayerSettlement) {
	s.emit(s.currentSession(ctx, p.Player, p.SessionRef), p, events.SettlementEvent{
		RoomID:    round.RoomID,
		RoundID:   round.ID,
		Status:    entities.SettlementLoss,
		Amount:    p.StakeTotal,
		Outcome:   round.Outcome,
		Breakdown: breakdown(p),
	})
}

// currentSession returns the session now serving the player. Bets loaded by
// recovery, or drained before a reconnect, still name the old one.
func (s *SettlementService) currentSession(ctx context.Context, player entities.PlayerKey, fallback string) string {
	id, err := s.sessions.PlayerSessionID(ctx, player)
	if err != nil {
		log.WithField("player", player.String()).WithError(err).Debug("Session binding lookup failed")
		return fallback
	}
	if id == "" {
		return fallback
	}
	return id
}

func (s *SettlementService) emit(sessionID string, p *entities.PlayerSettlement, event events.SettlementEvent) {
	if s.broadcaster == nil || sessionID == "" {
		return
	}
	if !s.broadcaster.EmitToSession(sessionID, event) {
		log.WithFields(log.Fields{
			"player":     p.Player.String(),
			"session_id": sessionID,
			"status":     event.Status,
		}).Debug("Player not connected, settlement message skipped")
	}
}

func breakdown(p *entities.PlayerSettlement) []entities.SelectionResult {
	var out []entities.SelectionResult
	for _, r := range p.Bets {
		out = append(out, r.Results...)
	}
	return out
}

// persist writes settlement rows and flips the bets to SETTLED in one transaction
func (s *SettlementService) persist(ctx context.Context, round *entities.Round, results []*entities.SettlementResult) {
	if s.uowFactory == nil || len(results) == 0 {
		return
	}

	betIDs := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		betIDs = append(betIDs, r.Bet.ID)
	}

	err := func() error {
		uow := s.uowFactory.Create()
		if err := uow.Begin(ctx); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = uow.Rollback()
		}()

		if err := uow.SettlementRepository().CreateBatch(ctx, results); err != nil {
			return fmt.Errorf("failed to store settlements: %w", err)
		}
		if err := uow.BetRepository().UpdateStatus(ctx, betIDs, entities.BetSettled); err != nil {
			return fmt.Errorf("failed to mark bets settled: %w", err)
		}
		if err := uow.Commit(); err != nil {
			return fmt.Errorf("failed to commit settlements: %w", err)
		}
		return nil
	}()
	if err != nil {
		settlementLog.WithFields(log.Fields{
			"round_id": round.ID,
			"rows":     len(results),
		}).WithError(err).Error("Settlement records not persisted")
	}
}

func (s *SettlementService) index(ctx context.Context, round *entities.Round, results []*entities.SettlementResult) {
	if s.audit == nil || len(results) == 0 {
		return
	}
	if err := s.audit.IndexSettlements(ctx, results); err != nil {
		settlementLog.WithField("round_id", round.ID).WithError(err).Warn("Failed to index settlements")
	}
}

// RefundBets returns the stake of debited bets that will never be settled,
// for example when a room's round is abandoned before its draw.
func (s *SettlementService) RefundBets(ctx context.Context, bets []*entities.Bet, reason string) int {
	refunded := make([]uuid.UUID, 0, len(bets))
	for _, bet := range bets {
		if _, err := s.wallet.Refund(ctx, bet, reason); err != nil {
			settlementLog.WithFields(log.Fields{
				"bet_id":   bet.ID,
				"round_id": bet.RoundID,
				"player":   bet.PlayerKey().String(),
				"amount":   bet.StakeTotal.String(),
			}).WithError(err).Error("Refund failed")
			continue
		}
		refunded = append(refunded, bet.ID)

		if sessionID := s.currentSession(ctx, bet.PlayerKey(), bet.SessionRef); sessionID != "" {
			if _, err := s.sessions.AdjustBalance(ctx, sessionID, bet.StakeTotal); err != nil {
				log.WithField("session_id", sessionID).WithError(err).Debug("Cached balance not updated after refund")
			}
		}
	}

	if len(refunded) > 0 && s.uowFactory != nil {
		err := func() error {
			uow := s.uowFactory.Create()
			if err := uow.Begin(ctx); err != nil {
				return err
			}
			defer func() {
				_ = uow.Rollback()
			}()
			if err := uow.BetRepository().UpdateStatus(ctx, refunded, entities.BetRefunded); err != nil {
				return err
			}
			return uow.Commit()
		}()
		if err != nil {
			settlementLog.WithField("bets", len(refunded)).WithError(err).Error("Failed to mark bets refunded")
		}
	}

	if len(bets) > 0 {
		settlementLog.WithFields(log.Fields{
			"bets":     len(bets),
			"refunded": len(refunded),
			"reason":   reason,
		}).Warn("Bets refunded")
	}
	return len(refunded)
}
