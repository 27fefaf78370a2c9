package services

import (
	"context"
	"testing"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/testhelpers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixtureStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// gameFixture wires the domain services against in-memory collaborators
type gameFixture struct {
	rules       entities.GameRules
	clock       *testhelpers.ManualClock
	wallet      *testhelpers.FakeWallet
	sessions    *testhelpers.MemorySessionStore
	broadcaster *testhelpers.RecordingBroadcaster
	uow         *testhelpers.MockUnitOfWork
	failed      *testhelpers.MockFailedBetRepository
	catalog     *RoomCatalog
	ledger      *BetLedger
	gateway     *WalletGateway
	stats       *StatsService
	settlement  *SettlementService
}

func newGameFixture(t *testing.T) *gameFixture {
	t.Helper()

	f := &gameFixture{
		rules:       entities.DefaultGameRules(),
		clock:       testhelpers.NewManualClock(fixtureStart),
		wallet:      testhelpers.NewFakeWallet(),
		sessions:    testhelpers.NewMemorySessionStore(),
		broadcaster: testhelpers.NewRecordingBroadcaster(),
		uow:         testhelpers.NewMockUnitOfWork(),
		failed:      new(testhelpers.MockFailedBetRepository),
	}

	f.uow.On("Begin", mock.Anything).Return(nil).Maybe()
	f.uow.On("Commit").Return(nil).Maybe()
	f.uow.On("Rollback").Return(nil).Maybe()
	f.uow.Settlements.On("CreateBatch", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.uow.Bets.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.uow.Bets.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.uow.Rounds.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.uow.Rounds.On("MarkClosed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.failed.On("Record", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.catalog = NewRoomCatalog(nil, entities.DefaultRooms())
	f.ledger = NewBetLedger(f.rules.AllowRepeatBets)
	f.gateway = NewWalletGateway(f.wallet, f.wallet, time.Second, f.clock, nil)
	f.stats = NewStatsService(nil, f.rules.HistorySize)
	f.settlement = NewSettlementService(SettlementDeps{
		Ledger:      f.ledger,
		Rules:       NewPayoutRules(f.rules),
		Wallet:      f.gateway,
		Sessions:    f.sessions,
		Broadcaster: f.broadcaster,
		UnitOfWork:  &testhelpers.MockUnitOfWorkFactory{UnitOfWork: f.uow},
		Stats:       f.stats,
		Clock:       f.clock,
	})
	return f
}

// addPlayer seeds a connected session and the matching wallet balance
func (f *gameFixture) addPlayer(t *testing.T, playerID, balance string) *entities.PlayerSession {
	t.Helper()

	sess := &entities.PlayerSession{
		SessionID:   "sess-" + playerID,
		Token:       "tok-" + playerID,
		GameID:      "color",
		PlayerID:    playerID,
		OperatorID:  "op",
		Balance:     dec(balance),
		IP:          "10.0.0.1",
		ConnectedAt: f.clock.Now(),
	}
	require.NoError(t, f.sessions.Save(context.Background(), sess))
	f.wallet.SetBalance(sess.Key(), dec(balance))
	return sess
}

// drawnRound returns a round already past its draw
func (f *gameFixture) drawnRound(t *testing.T, roomID int, outcome entities.Outcome, bonus entities.BonusSet) *entities.Round {
	t.Helper()

	round := entities.NewRound(roomID, f.clock.Now())
	round.BettingEndsAt = f.clock.Now().Add(time.Minute)
	round.BonusSet = bonus
	require.NoError(t, round.SetOutcome(outcome, f.clock.Now()))
	round.Status = entities.RoundCalculating
	f.ledger.Open(roomID, round.ID, round.BettingEndsAt)
	return round
}

// placeDebited builds a bet as if its debit already happened and appends it to the ledger
func (f *gameFixture) placeDebited(t *testing.T, round *entities.Round, sess *entities.PlayerSession, wagers ...entities.Wager) *entities.Bet {
	t.Helper()

	bet := &entities.Bet{
		ID:         uuid.New(),
		RoundID:    round.ID,
		RoomID:     round.RoomID,
		PlayerID:   sess.PlayerID,
		OperatorID: sess.OperatorID,
		StakeTotal: entities.SumWagers(wagers),
		Wagers:     wagers,
		DebitTxnID: uuid.New(),
		SessionRef: sess.SessionID,
		GameID:     sess.GameID,
		Token:      sess.Token,
		IP:         sess.IP,
		Status:     entities.BetPlaced,
		CreatedAt:  f.clock.Now(),
	}
	require.NoError(t, f.ledger.Append(round.RoomID, bet, f.clock.Now()))
	return bet
}

func wager(sel entities.Selection, amount string) entities.Wager {
	return entities.Wager{Selection: sel, Amount: dec(amount)}
}
