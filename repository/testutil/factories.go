package testutil

import (
	"time"

	"colorgame/domain/entities"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateTestRound creates a drawn round in room 101
func CreateTestRound(openedAt time.Time, outcome entities.Outcome) *entities.Round {
	round := entities.NewRound(101, openedAt)
	round.BettingEndsAt = openedAt.Add(20 * time.Second)
	round.BonusSet = entities.BonusSet{3, 9}
	if outcome != nil {
		drawnAt := openedAt.Add(21 * time.Second)
		round.Outcome = outcome
		round.DrawnAt = &drawnAt
		round.Status = entities.RoundCalculating
	}
	return round
}

// CreateTestBet creates a PLACED bet on a round
func CreateTestBet(round *entities.Round, playerID string, wagers ...entities.Wager) *entities.Bet {
	if len(wagers) == 0 {
		wagers = []entities.Wager{{Selection: entities.Single(3), Amount: decimal.NewFromInt(100)}}
	}
	return &entities.Bet{
		ID:         uuid.New(),
		RoundID:    round.ID,
		RoomID:     round.RoomID,
		PlayerID:   playerID,
		OperatorID: "op",
		StakeTotal: entities.SumWagers(wagers),
		Wagers:     wagers,
		DebitTxnID: uuid.New(),
		SessionRef: "sess-" + playerID,
		GameID:     "color",
		Token:      "tok-" + playerID,
		IP:         "10.0.0.1",
		Status:     entities.BetPlaced,
		CreatedAt:  round.OpenedAt.Add(5 * time.Second),
	}
}
