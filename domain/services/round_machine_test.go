package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/events"
	"colorgame/domain/interfaces"
	"colorgame/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type machineFixture struct {
	*gameFixture
	registry *RoundRegistry
	machine  *RoundMachine
	betting  *BettingService
	player   *entities.PlayerSession
}

func newMachineFixture(t *testing.T, random interfaces.RandomSource) *machineFixture {
	t.Helper()

	f := &machineFixture{gameFixture: newGameFixture(t), registry: NewRoundRegistry()}
	f.machine = NewRoundMachine(101, RoundMachineDeps{
		Rules:       f.rules,
		Clock:       f.clock,
		Random:      random,
		Broadcaster: f.broadcaster,
		Ledger:      f.ledger,
		Settlement:  f.settlement,
		Stats:       f.stats,
		Rounds:      f.uow.Rounds,
	})
	require.True(t, f.registry.Register(f.machine))

	f.betting = NewBettingService(BettingDeps{
		Rules:    f.rules,
		Clock:    f.clock,
		Sessions: f.sessions,
		Catalog:  f.catalog,
		Rounds:   f.registry,
		Ledger:   f.ledger,
		Wallet:   f.gateway,
		Failed:   f.failed,
	})

	f.player = f.addPlayer(t, "alice", "1000")
	f.player.RoomID = 101
	require.NoError(t, f.sessions.Save(context.Background(), f.player))
	return f
}

func (f *machineFixture) step(t *testing.T, want entities.RoundStatus) *entities.Round {
	t.Helper()
	require.NoError(t, f.machine.Step(context.Background()))
	round := f.machine.Snapshot()
	require.NotNil(t, round)
	require.Equal(t, want, round.Status)
	return round
}

func (f *machineFixture) bet(sel, amount string) (*BetReceipt, error) {
	round := f.registry.CurrentRound(101)
	return f.betting.PlaceBet(context.Background(), f.player.SessionID, PlaceBetRequest{
		RoundID: round.ID,
		Wagers:  []WagerRequest{wreq(sel, amount)},
	})
}

// bonus draws pick ids 1 and 2, the outcome is 2, 2, 5
func fixedDraws() *testhelpers.SequenceRandom {
	return testhelpers.NewSequenceRandom(0, 0, 1, 1, 4)
}

func TestRoundMachine_FullCycle(t *testing.T) {
	t.Parallel()

	f := newMachineFixture(t, fixedDraws())
	assert.Nil(t, f.registry.CurrentRound(101))

	opened := f.step(t, entities.RoundOpening)
	assert.Equal(t, fixtureStart, opened.OpenedAt)
	assert.Equal(t, fixtureStart.Add(20*time.Second), opened.BettingEndsAt)

	_, err := f.bet("2", "100")
	require.ErrorIs(t, err, entities.ErrRoundClosed, "no bets while opening")

	f.step(t, entities.RoundBetting)
	assert.Equal(t, fixtureStart.Add(5*time.Second), f.clock.Now())
	assert.Len(t, f.broadcaster.OfType(events.EventTypeRoundTick), 5)

	_, err = f.bet("2", "100")
	require.NoError(t, err)

	f.step(t, entities.RoundDrawing)
	assert.Equal(t, opened.BettingEndsAt, f.clock.Now())

	drawn := f.step(t, entities.RoundCalculating)
	assert.Equal(t, entities.BonusSet{1, 2}, drawn.BonusSet)
	assert.Equal(t, entities.Outcome{2, 2, 5}, drawn.Outcome)
	require.NotNil(t, drawn.DrawnAt)
	f.uow.Rounds.AssertCalled(t, "Create", mock.Anything, mock.Anything)

	f.step(t, entities.RoundSettled)
	assert.Empty(t, f.ledger.Peek(101))
	// single 2 drawn twice pays 3x, doubled by bonus id 2
	assert.True(t, f.wallet.Balance(f.player.Key()).Equal(dec("1500")))

	closed := f.step(t, entities.RoundClosed)
	require.NotNil(t, closed.ClosedAt)
	f.uow.Rounds.AssertCalled(t, "MarkClosed", mock.Anything, opened.ID, mock.Anything)

	history := f.broadcaster.OfType(events.EventTypeHistory)
	require.Len(t, history, 1)
	stats := history[0].Event.(events.HistoryEvent)
	assert.Equal(t, []entities.Outcome{{2, 2, 5}}, stats.History)
	assert.Len(t, f.broadcaster.OfType(events.EventTypeLeaderboards), 1)

	next := f.step(t, entities.RoundOpening)
	assert.NotEqual(t, opened.ID, next.ID)

	types := f.broadcaster.Types()
	bonusAt, outcomeAt := -1, -1
	for i, typ := range types {
		switch typ {
		case events.EventTypeBonus:
			bonusAt = i
		case events.EventTypeOutcome:
			outcomeAt = i
		}
	}
	assert.True(t, bonusAt >= 0 && bonusAt < outcomeAt, "bonus is announced before the outcome")
}

func TestRoundMachine_NoLeakAcrossWindowEnd(t *testing.T) {
	t.Parallel()

	f := newMachineFixture(t, fixedDraws())
	f.step(t, entities.RoundOpening)
	f.step(t, entities.RoundBetting)

	var accepted, rejected int
	f.clock.OnSleep(func(_, _ time.Time) {
		if _, err := f.bet("6", "50"); err != nil {
			assert.ErrorIs(t, err, entities.ErrRoundClosed)
			rejected++
			return
		}
		accepted++
	})
	f.step(t, entities.RoundDrawing)
	f.clock.OnSleep(nil)

	// one bet after each of the 15 ticks; the last lands exactly on the cutoff
	assert.Equal(t, 14, accepted)
	assert.Equal(t, 1, rejected)

	f.clock.Advance(time.Millisecond)
	_, err := f.bet("6", "50")
	require.ErrorIs(t, err, entities.ErrRoundClosed)

	f.step(t, entities.RoundCalculating)
	require.Len(t, f.ledger.Peek(101), 14)
	f.step(t, entities.RoundSettled)

	loss := settlementFor(t, f.broadcaster, f.player.SessionID)
	assert.Equal(t, entities.SettlementLoss, loss.Status)
	assert.True(t, loss.Amount.Equal(dec("700")))
}

func TestRoundMachine_AbandonBeforeDrawRefunds(t *testing.T) {
	t.Parallel()

	f := newMachineFixture(t, testhelpers.NewSequenceRandom())
	f.step(t, entities.RoundOpening)
	f.step(t, entities.RoundBetting)
	_, err := f.bet("3", "200")
	require.NoError(t, err)
	assert.True(t, f.wallet.Balance(f.player.Key()).Equal(dec("800")))

	f.step(t, entities.RoundDrawing)
	err = f.machine.Step(context.Background())
	require.Error(t, err, "draw fails without randomness")

	f.machine.abandon(context.Background(), err.Error())
	assert.Nil(t, f.machine.Snapshot())
	assert.True(t, f.wallet.Balance(f.player.Key()).Equal(dec("1000")))
	f.uow.Bets.AssertCalled(t, "UpdateStatus", mock.Anything, mock.Anything, entities.BetRefunded)

	f.step(t, entities.RoundOpening)
}

func TestRoundMachine_AbandonAfterDrawSettles(t *testing.T) {
	t.Parallel()

	f := newMachineFixture(t, fixedDraws())
	f.step(t, entities.RoundOpening)
	f.step(t, entities.RoundBetting)
	_, err := f.bet("5", "100")
	require.NoError(t, err)
	f.step(t, entities.RoundDrawing)
	f.step(t, entities.RoundCalculating)

	f.machine.abandon(context.Background(), "settlement crashed")

	// single 5 drawn once pays 2x
	assert.True(t, f.wallet.Balance(f.player.Key()).Equal(dec("1100")))
	assert.Equal(t, entities.SettlementWin, settlementFor(t, f.broadcaster, f.player.SessionID).Status)
}

// panicOnce panics on its first draw and then delegates
type panicOnce struct {
	fired atomic.Bool
	next  interfaces.RandomSource
}

func (p *panicOnce) Intn(n int) (int, error) {
	if p.fired.CompareAndSwap(false, true) {
		panic("entropy source exploded")
	}
	return p.next.Intn(n)
}

func TestRoundMachine_RunRestartsAfterPanic(t *testing.T) {
	t.Parallel()

	random := &panicOnce{next: fixedDraws()}
	f := newMachineFixture(t, random)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.clock.OnSleep(func(_, _ time.Time) {
		if len(f.broadcaster.OfType(events.EventTypeHistory)) >= 2 {
			cancel()
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.machine.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("round machine did not stop")
	}

	assert.True(t, random.fired.Load())
	assert.GreaterOrEqual(t, len(f.broadcaster.OfType(events.EventTypeHistory)), 2)
}

func TestRoundMachine_BonusSetIsDistinct(t *testing.T) {
	t.Parallel()

	f := newGameFixture(t)
	rules := f.rules
	rules.BonusSetSize = 5
	m := NewRoundMachine(101, RoundMachineDeps{
		Rules:  rules,
		Clock:  f.clock,
		Random: testhelpers.NewSequenceRandom(3, 3, 3, 3, 3),
		Ledger: f.ledger,
	})

	set, err := m.drawBonusSet()
	require.NoError(t, err)
	require.Len(t, set, 5)

	seen := map[int]bool{}
	for _, id := range set {
		assert.False(t, seen[id], "bonus id %d repeated", id)
		assert.True(t, id >= 1 && id <= entities.MaxBonusID)
		seen[id] = true
	}
}

func TestRoundRegistry(t *testing.T) {
	t.Parallel()

	f := newGameFixture(t)
	registry := NewRoundRegistry()
	m := NewRoundMachine(102, RoundMachineDeps{Rules: f.rules, Clock: f.clock, Ledger: f.ledger})

	assert.True(t, registry.Register(m))
	assert.False(t, registry.Register(m))
	assert.Equal(t, []int{102}, registry.RoomIDs())
	assert.Nil(t, registry.CurrentRound(102))

	require.NoError(t, m.Step(context.Background()))
	assert.Equal(t, entities.RoundOpening, registry.CurrentRound(102).Status)

	registry.Remove(102)
	assert.Nil(t, registry.CurrentRound(102))
}
