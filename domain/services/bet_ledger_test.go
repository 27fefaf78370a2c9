package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"colorgame/domain/entities"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerBet(roundID string, player string) *entities.Bet {
	return &entities.Bet{
		ID:         uuid.New(),
		RoundID:    roundID,
		RoomID:     101,
		PlayerID:   player,
		OperatorID: "op",
		StakeTotal: dec("100"),
		Wagers:     []entities.Wager{{Selection: entities.Single(1), Amount: dec("100")}},
		DebitTxnID: uuid.Must(uuid.NewV7()),
		SessionRef: "sess-" + player,
	}
}

func TestBetLedger_RejectsBeforeOpenAndAfterCutoff(t *testing.T) {
	t.Parallel()

	ledger := NewBetLedger(true)
	start := time.Now()
	cutoff := start.Add(15 * time.Second)
	player := entities.PlayerKey{OperatorID: "op", PlayerID: "p1"}

	_, err := ledger.Reserve(101, "r1", player, start)
	assert.ErrorIs(t, err, entities.ErrRoundClosed, "room never opened")

	ledger.Open(101, "r1", cutoff)

	_, err = ledger.Reserve(101, "r1", player, cutoff)
	assert.ErrorIs(t, err, entities.ErrRoundClosed, "cutoff instant is closed")

	_, err = ledger.Reserve(101, "r1", player, cutoff.Add(time.Millisecond))
	assert.ErrorIs(t, err, entities.ErrRoundClosed)

	_, err = ledger.Reserve(101, "r0", player, start)
	assert.ErrorIs(t, err, entities.ErrRoundClosed, "stale round id")

	res, err := ledger.Reserve(101, "r1", player, cutoff.Add(-time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, res.Commit(ledgerBet("r1", "p1")))
	assert.Len(t, ledger.Peek(101), 1)
}

func TestBetLedger_DrainWaitsForInFlightReservation(t *testing.T) {
	t.Parallel()

	ledger := NewBetLedger(true)
	start := time.Now()
	ledger.Open(101, "r1", start.Add(time.Second))

	res, err := ledger.Reserve(101, "r1", entities.PlayerKey{OperatorID: "op", PlayerID: "slow"}, start)
	require.NoError(t, err)

	drained := make(chan []*entities.Bet)
	go func() {
		drained <- ledger.DrainAndClear(context.Background(), 101)
	}()

	select {
	case <-drained:
		t.Fatal("drain returned while a debit was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	// no new reservations once the drain has started
	_, err = ledger.Reserve(101, "r1", entities.PlayerKey{OperatorID: "op", PlayerID: "late"}, start)
	assert.ErrorIs(t, err, entities.ErrRoundClosed)

	require.NoError(t, res.Commit(ledgerBet("r1", "slow")))

	select {
	case bets := <-drained:
		require.Len(t, bets, 1)
		assert.Equal(t, "slow", bets[0].PlayerID)
	case <-time.After(time.Second):
		t.Fatal("drain did not complete after commit")
	}

	assert.Empty(t, ledger.Peek(101))
}

func TestBetLedger_CommitAfterInterruptedDrainFails(t *testing.T) {
	t.Parallel()

	ledger := NewBetLedger(true)
	start := time.Now()
	ledger.Open(101, "r1", start.Add(time.Second))

	res, err := ledger.Reserve(101, "r1", entities.PlayerKey{OperatorID: "op", PlayerID: "p"}, start)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bets := ledger.DrainAndClear(ctx, 101)
	assert.Empty(t, bets)

	err = res.Commit(ledgerBet("r1", "p"))
	assert.ErrorIs(t, err, entities.ErrRoundClosed)
	assert.Empty(t, ledger.Peek(101))
}

func TestBetLedger_AbortReleasesSlot(t *testing.T) {
	t.Parallel()

	ledger := NewBetLedger(false)
	start := time.Now()
	player := entities.PlayerKey{OperatorID: "op", PlayerID: "p"}
	ledger.Open(101, "r1", start.Add(time.Second))

	res, err := ledger.Reserve(101, "r1", player, start)
	require.NoError(t, err)

	_, err = ledger.Reserve(101, "r1", player, start)
	assert.ErrorIs(t, err, entities.ErrAlreadyPlaced)

	res.Abort()
	res.Abort()

	res, err = ledger.Reserve(101, "r1", player, start)
	require.NoError(t, err)
	require.NoError(t, res.Commit(ledgerBet("r1", "p")))

	assert.Len(t, ledger.DrainAndClear(context.Background(), 101), 1)
}

func TestBetLedger_RepeatBetsAllowed(t *testing.T) {
	t.Parallel()

	ledger := NewBetLedger(true)
	start := time.Now()
	ledger.Open(101, "r1", start.Add(time.Second))

	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.Append(101, ledgerBet("r1", "p"), start))
	}
	assert.Len(t, ledger.Peek(101), 3)
}

func TestBetLedger_NoAppendAfterDrain(t *testing.T) {
	t.Parallel()

	ledger := NewBetLedger(true)
	start := time.Now()
	ledger.Open(101, "r1", start.Add(time.Second))
	require.NoError(t, ledger.Append(101, ledgerBet("r1", "a"), start))

	bets := ledger.DrainAndClear(context.Background(), 101)
	require.Len(t, bets, 1)

	err := ledger.Append(101, ledgerBet("r1", "b"), start)
	assert.ErrorIs(t, err, entities.ErrRoundClosed)
	assert.Empty(t, ledger.DrainAndClear(context.Background(), 101))
}

func TestBetLedger_RoomsAreIsolated(t *testing.T) {
	t.Parallel()

	ledger := NewBetLedger(true)
	start := time.Now()
	ledger.Open(101, "r101", start.Add(time.Second))
	ledger.Open(102, "r102", start.Add(time.Second))

	res, err := ledger.Reserve(101, "r101", entities.PlayerKey{OperatorID: "op", PlayerID: "hold"}, start)
	require.NoError(t, err)

	// an in-flight reservation in 101 must not block draining 102
	require.NoError(t, ledger.Append(102, ledgerBet("r102", "x"), start))
	done := make(chan struct{})
	go func() {
		ledger.DrainAndClear(context.Background(), 102)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("room 102 drain blocked by room 101")
	}

	res.Abort()
}

func TestBetLedger_RebindSession(t *testing.T) {
	t.Parallel()

	ledger := NewBetLedger(true)
	start := time.Now()
	ledger.Open(101, "r1", start.Add(time.Second))
	require.NoError(t, ledger.Append(101, ledgerBet("r1", "p"), start))
	require.NoError(t, ledger.Append(101, ledgerBet("r1", "other"), start))

	n := ledger.RebindSession(entities.PlayerKey{OperatorID: "op", PlayerID: "p"}, "new-session")
	assert.Equal(t, 1, n)

	for _, b := range ledger.Peek(101) {
		if b.PlayerID == "p" {
			assert.Equal(t, "new-session", b.SessionRef)
		} else {
			assert.Equal(t, "sess-other", b.SessionRef)
		}
	}
}

func TestBetLedger_ConcurrentAppendsAreAllKept(t *testing.T) {
	t.Parallel()

	const bettors = 500
	ledger := NewBetLedger(true)
	start := time.Now()
	ledger.Open(101, "r1", start.Add(time.Minute))

	var wg sync.WaitGroup
	errs := make(chan error, bettors)
	for i := 0; i < bettors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- ledger.Append(101, ledgerBet("r1", fmt.Sprintf("p%d", i)), start)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	bets := ledger.DrainAndClear(context.Background(), 101)
	assert.Len(t, bets, bettors)

	seen := make(map[string]bool, bettors)
	for _, b := range bets {
		seen[b.PlayerID] = true
	}
	assert.Len(t, seen, bettors)
}

// Bets stamped before the cutoff are always settled and bets stamped at or
// after it never are, whatever the interleaving with the drain.
func TestBetLedger_NoLeakAcrossCutoff(t *testing.T) {
	t.Parallel()

	for iteration := 0; iteration < 20; iteration++ {
		ledger := NewBetLedger(true)
		start := time.Now()
		cutoff := start.Add(100 * time.Millisecond)
		ledger.Open(101, "r1", cutoff)

		rng := rand.New(rand.NewSource(int64(iteration)))
		const bettors = 200

		type attempt struct {
			player   string
			stamp    time.Time
			accepted bool
		}
		attempts := make([]*attempt, bettors)

		var wg sync.WaitGroup
		for i := 0; i < bettors; i++ {
			offset := time.Duration(rng.Intn(200)-50) * time.Millisecond
			a := &attempt{player: fmt.Sprintf("p%d", i), stamp: cutoff.Add(offset)}
			if i%10 == 0 {
				a.stamp = cutoff
			}
			attempts[i] = a
			delay := time.Duration(rng.Intn(3)) * time.Millisecond

			wg.Add(1)
			go func(a *attempt) {
				defer wg.Done()
				res, err := ledger.Reserve(101, "r1", entities.PlayerKey{OperatorID: "op", PlayerID: a.player}, a.stamp)
				if err != nil {
					return
				}
				time.Sleep(delay) // simulated debit
				a.accepted = res.Commit(ledgerBet("r1", a.player)) == nil
			}(a)
		}
		wg.Wait()

		bets := ledger.DrainAndClear(context.Background(), 101)
		settled := make(map[string]bool, len(bets))
		for _, b := range bets {
			settled[b.PlayerID] = true
		}

		for _, a := range attempts {
			if a.stamp.Before(cutoff) {
				assert.True(t, settled[a.player], "bet stamped before cutoff missing: %s", a.player)
				assert.True(t, a.accepted)
			} else {
				assert.False(t, settled[a.player], "bet stamped at/after cutoff leaked: %s", a.player)
			}
		}
	}
}

// With the drain racing placements, every bet whose Commit succeeded is in
// the drained set and every rejected one is not.
func TestBetLedger_DrainRacingPlacements(t *testing.T) {
	t.Parallel()

	for iteration := 0; iteration < 20; iteration++ {
		ledger := NewBetLedger(true)
		start := time.Now()
		ledger.Open(101, "r1", start.Add(time.Minute))

		const bettors = 200
		accepted := make([]bool, bettors)

		var wg sync.WaitGroup
		for i := 0; i < bettors; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				player := fmt.Sprintf("p%d", i)
				res, err := ledger.Reserve(101, "r1", entities.PlayerKey{OperatorID: "op", PlayerID: player}, start)
				if err != nil {
					return
				}
				if i%7 == 0 {
					time.Sleep(time.Millisecond)
				}
				accepted[i] = res.Commit(ledgerBet("r1", player)) == nil
			}(i)
		}

		bets := ledger.DrainAndClear(context.Background(), 101)
		wg.Wait()

		settled := make(map[string]bool, len(bets))
		for _, b := range bets {
			settled[b.PlayerID] = true
		}
		for i := 0; i < bettors; i++ {
			assert.Equal(t, accepted[i], settled[fmt.Sprintf("p%d", i)], "player p%d", i)
		}
	}
}
