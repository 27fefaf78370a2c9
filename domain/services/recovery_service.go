package services

import (
	"context"
	"fmt"

	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// RecoveryReport summarizes one recovery pass
type RecoveryReport struct {
	Rounds    int
	Refunded  int
	Resettled int
	Skipped   int
}

// RecoveryService finishes bets a previous process accepted but never
// settled. Bets of rounds that were never drawn are refunded; bets of drawn
// rounds are settled against the stored outcome.
type RecoveryService struct {
	bets       interfaces.BetRepository
	rounds     interfaces.RoundRepository
	settlement *SettlementService
}

// NewRecoveryService creates a new recovery service
func NewRecoveryService(bets interfaces.BetRepository, rounds interfaces.RoundRepository, settlement *SettlementService) *RecoveryService {
	return &RecoveryService{
		bets:       bets,
		rounds:     rounds,
		settlement: settlement,
	}
}

// Recover must run before any room starts taking bets
func (s *RecoveryService) Recover(ctx context.Context) (*RecoveryReport, error) {
	placed, err := s.bets.GetPlaced(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unsettled bets: %w", err)
	}

	report := &RecoveryReport{}
	if len(placed) == 0 {
		return report, nil
	}

	byRound := make(map[string][]*entities.Bet)
	var order []string
	for _, bet := range placed {
		if _, ok := byRound[bet.RoundID]; !ok {
			order = append(order, bet.RoundID)
		}
		byRound[bet.RoundID] = append(byRound[bet.RoundID], bet)
	}

	for _, roundID := range order {
		bets := byRound[roundID]
		report.Rounds++

		round, err := s.rounds.GetByID(ctx, roundID)
		if err != nil {
			// left PLACED for the next pass
			log.WithField("round_id", roundID).WithError(err).Error("Failed to load round for recovery")
			report.Skipped += len(bets)
			continue
		}

		if round == nil || !round.IsDrawn() {
			report.Refunded += s.settlement.RefundBets(ctx, bets, "round interrupted by restart")
			continue
		}

		s.settlement.SettleBets(ctx, round, bets)
		report.Resettled += len(bets)
	}

	log.WithFields(log.Fields{
		"rounds":    report.Rounds,
		"refunded":  report.Refunded,
		"resettled": report.Resettled,
		"skipped":   report.Skipped,
	}).Info("Recovered unsettled bets")
	return report, nil
}
