package services

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/events"
	"colorgame/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const restartDelay = time.Second

// RoundMachine runs the endless round cycle of one room. It is the only
// writer of its rounds' status and outcome.
type RoundMachine struct {
	roomID      int
	rules       entities.GameRules
	clock       interfaces.Clock
	random      interfaces.RandomSource
	broadcaster interfaces.Broadcaster
	ledger      *BetLedger
	settlement  *SettlementService
	stats       *StatsService
	rounds      interfaces.RoundRepository
	metrics     interfaces.Metrics

	mu    sync.RWMutex
	round *entities.Round
}

// RoundMachineDeps groups the collaborators shared by every room's machine
type RoundMachineDeps struct {
	Rules       entities.GameRules
	Clock       interfaces.Clock
	Random      interfaces.RandomSource
	Broadcaster interfaces.Broadcaster
	Ledger      *BetLedger
	Settlement  *SettlementService
	Stats       *StatsService
	Rounds      interfaces.RoundRepository
	Metrics     interfaces.Metrics
}

// NewRoundMachine creates an idle machine for a room. The first Step opens a round.
func NewRoundMachine(roomID int, deps RoundMachineDeps) *RoundMachine {
	return &RoundMachine{
		roomID:      roomID,
		rules:       deps.Rules,
		clock:       deps.Clock,
		random:      deps.Random,
		broadcaster: deps.Broadcaster,
		ledger:      deps.Ledger,
		settlement:  deps.Settlement,
		stats:       deps.Stats,
		rounds:      deps.Rounds,
		metrics:     metricsOrNop(deps.Metrics),
	}
}

// RoomID returns the room this machine drives
func (m *RoundMachine) RoomID() int {
	return m.roomID
}

// Snapshot returns a copy of the current round, or nil before the first open
func (m *RoundMachine) Snapshot() *entities.Round {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.round == nil {
		return nil
	}
	return m.round.Clone()
}

func (m *RoundMachine) setStatus(status entities.RoundStatus) {
	m.mu.Lock()
	m.round.Status = status
	m.mu.Unlock()
}

// current returns the live round; only the machine goroutine may mutate it
func (m *RoundMachine) current() *entities.Round {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.round
}

// Run drives the room until ctx ends. A failed or panicking step abandons the
// round and the loop starts over from OPENING.
func (m *RoundMachine) Run(ctx context.Context) {
	log.WithField("room_id", m.roomID).Info("Round machine started")
	defer log.WithField("room_id", m.roomID).Info("Round machine stopped")

	for ctx.Err() == nil {
		err := m.safeStep(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		log.WithFields(log.Fields{
			"room_id": m.roomID,
		}).WithError(err).Error("Round step failed, restarting room")
		m.abandon(ctx, err.Error())

		if err := m.clock.Sleep(ctx, restartDelay); err != nil {
			return
		}
	}
}

func (m *RoundMachine) safeStep(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"room_id": m.roomID,
				"panic":   r,
				"stack":   string(debug.Stack()),
			}).Error("Round step panicked")
			err = fmt.Errorf("panic in room %d: %v", m.roomID, r)
		}
	}()
	return m.Step(ctx)
}

// Step performs exactly one transition of the current round
func (m *RoundMachine) Step(ctx context.Context) error {
	round := m.current()
	if round == nil || round.Status == entities.RoundClosed {
		m.open()
		return nil
	}

	switch round.Status {
	case entities.RoundOpening:
		if err := m.countdown(ctx, round, round.OpenedAt.Add(m.rules.OpeningDuration)); err != nil {
			return err
		}
		m.setStatus(entities.RoundBetting)
	case entities.RoundBetting:
		if err := m.countdown(ctx, round, round.BettingEndsAt); err != nil {
			return err
		}
		m.setStatus(entities.RoundDrawing)
	case entities.RoundDrawing:
		if err := m.draw(ctx, round); err != nil {
			return err
		}
		m.setStatus(entities.RoundCalculating)
	case entities.RoundCalculating:
		if _, err := m.settlement.Settle(ctx, m.Snapshot()); err != nil {
			return fmt.Errorf("failed to settle round %s: %w", round.ID, err)
		}
		m.setStatus(entities.RoundSettled)
	case entities.RoundSettled:
		if err := m.countdown(ctx, round, m.clock.Now().Add(m.rules.ResultDuration)); err != nil {
			return err
		}
		m.close(ctx, round)
	default:
		return fmt.Errorf("round %s in unknown status %q", round.ID, round.Status)
	}
	return nil
}

func (m *RoundMachine) open() {
	now := m.clock.Now()
	round := entities.NewRound(m.roomID, now)
	round.BettingEndsAt = now.Add(m.rules.OpeningDuration + m.rules.BettingDuration)

	m.ledger.Open(m.roomID, round.ID, round.BettingEndsAt)

	m.mu.Lock()
	m.round = round
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"room_id":         m.roomID,
		"round_id":        round.ID,
		"betting_ends_at": round.BettingEndsAt,
	}).Debug("Round opened")
}

// countdown ticks once per interval until the deadline
func (m *RoundMachine) countdown(ctx context.Context, round *entities.Round, until time.Time) error {
	tick := m.rules.TickInterval
	if tick <= 0 {
		tick = time.Second
	}

	for {
		remaining := until.Sub(m.clock.Now())
		if remaining <= 0 {
			return nil
		}

		m.broadcast(events.RoundTickEvent{
			RoomID:    m.roomID,
			RoundID:   round.ID,
			Status:    round.Status,
			Remaining: int(math.Ceil(remaining.Seconds())),
		})

		if err := m.clock.Sleep(ctx, min(tick, remaining)); err != nil {
			return err
		}
	}
}

// draw picks the bonus set and the outcome, persists the round and announces both
func (m *RoundMachine) draw(ctx context.Context, round *entities.Round) error {
	bonus, err := m.drawBonusSet()
	if err != nil {
		return fmt.Errorf("failed to draw bonus set: %w", err)
	}
	m.mu.Lock()
	round.BonusSet = bonus
	m.mu.Unlock()

	m.broadcast(events.BonusEvent{RoomID: m.roomID, RoundID: round.ID, BonusSet: bonus})

	outcome := make(entities.Outcome, entities.OutcomeLength)
	for i := range outcome {
		n, err := m.random.Intn(int(entities.MaxSymbol))
		if err != nil {
			return fmt.Errorf("failed to draw outcome: %w", err)
		}
		outcome[i] = entities.Symbol(n + 1)
	}

	m.mu.Lock()
	err = round.SetOutcome(outcome, m.clock.Now())
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if m.rounds != nil {
		if err := m.rounds.Create(ctx, m.Snapshot()); err != nil {
			log.WithFields(log.Fields{
				"room_id":  m.roomID,
				"round_id": round.ID,
			}).WithError(err).Error("Failed to persist round")
		}
	}

	m.broadcast(events.OutcomeEvent{RoomID: m.roomID, RoundID: round.ID, Outcome: outcome})
	log.WithFields(log.Fields{
		"room_id":  m.roomID,
		"round_id": round.ID,
		"outcome":  outcome,
		"bonus":    bonus,
	}).Info("Round drawn")
	return nil
}

// drawBonusSet picks distinct bonus ids without replacement
func (m *RoundMachine) drawBonusSet() (entities.BonusSet, error) {
	size := min(m.rules.BonusSetSize, entities.MaxBonusID)
	if size <= 0 {
		return entities.BonusSet{}, nil
	}

	pool := make([]int, entities.MaxBonusID)
	for i := range pool {
		pool[i] = i + 1
	}

	set := make(entities.BonusSet, 0, size)
	for i := 0; i < size; i++ {
		j, err := m.random.Intn(len(pool) - i)
		if err != nil {
			return nil, err
		}
		j += i
		pool[i], pool[j] = pool[j], pool[i]
		set = append(set, pool[i])
	}
	return set, nil
}

func (m *RoundMachine) close(ctx context.Context, round *entities.Round) {
	now := m.clock.Now()
	m.mu.Lock()
	round.Close(now)
	m.mu.Unlock()

	if m.rounds != nil {
		if err := m.rounds.MarkClosed(ctx, round.ID, now); err != nil {
			log.WithField("round_id", round.ID).WithError(err).Warn("Failed to mark round closed")
		}
	}

	if m.stats != nil {
		m.stats.RecordOutcome(m.roomID, round.Outcome)
		m.broadcast(events.HistoryEvent{RoomStats: *m.stats.RoomStats(m.roomID)})
		if m.broadcaster != nil {
			m.broadcaster.BroadcastAll(events.LeaderboardsEvent{Leaderboards: m.stats.Leaderboards()})
		}
	}
	m.metrics.RecordRoundCompleted(m.roomID, now.Sub(round.OpenedAt))
}

func (m *RoundMachine) broadcast(event events.Event) {
	if m.broadcaster != nil {
		m.broadcaster.BroadcastRoom(m.roomID, event)
	}
}

// abandon settles or refunds whatever the failed round left in the ledger.
// Bets of a drawn round are paid against its outcome; bets of an undrawn
// round get their stake back.
func (m *RoundMachine) abandon(ctx context.Context, reason string) {
	round := m.Snapshot()

	m.mu.Lock()
	m.round = nil
	m.mu.Unlock()

	if round == nil {
		return
	}

	bets := m.ledger.DrainAndClear(ctx, m.roomID)
	fields := log.Fields{
		"room_id":  m.roomID,
		"round_id": round.ID,
		"status":   round.Status,
		"bets":     len(bets),
	}
	if len(bets) == 0 {
		log.WithFields(fields).Warn("Round abandoned")
		return
	}

	if round.IsDrawn() {
		log.WithFields(fields).Warn("Round abandoned after draw, settling collected bets")
		m.settlement.SettleBets(ctx, round, bets)
		return
	}

	log.WithFields(fields).Warn("Round abandoned before draw, refunding collected bets")
	m.settlement.RefundBets(ctx, bets, "round abandoned: "+reason)
}
