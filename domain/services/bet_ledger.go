package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"colorgame/domain/entities"

	log "github.com/sirupsen/logrus"
)

// BetLedger collects accepted bets per room for the room's current round.
// Every room has its own lock; rooms never contend with each other.
//
// Placement is two-phase: Reserve claims a slot before the wallet debit and
// Commit inserts the debited bet. DrainAndClear waits for outstanding
// reservations, so a bet reserved before the cutoff is never lost and
// nothing can be added once the drain has started.
type BetLedger struct {
	mu          sync.RWMutex
	rooms       map[int]*roomLedger
	allowRepeat bool
}

type roomLedger struct {
	mu         sync.Mutex
	roundID    string
	cutoff     time.Time
	generation uint64
	drained    bool
	bets       []*entities.Bet
	players    map[entities.PlayerKey]int
	pending    int
	idle       chan struct{}
}

// Reservation is a claimed ledger slot awaiting its debit result
type Reservation struct {
	ledger     *roomLedger
	generation uint64
	roomID     int
	roundID    string
	player     entities.PlayerKey
	done       bool
}

// NewBetLedger creates an empty ledger
func NewBetLedger(allowRepeat bool) *BetLedger {
	return &BetLedger{
		rooms:       make(map[int]*roomLedger),
		allowRepeat: allowRepeat,
	}
}

func (l *BetLedger) room(roomID int) *roomLedger {
	l.mu.RLock()
	r, ok := l.rooms[roomID]
	l.mu.RUnlock()
	if ok {
		return r
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok = l.rooms[roomID]; !ok {
		r = &roomLedger{drained: true}
		l.rooms[roomID] = r
	}
	return r
}

// Open starts collecting bets for a new round. Bets stamped at or after
// cutoff are refused.
func (l *BetLedger) Open(roomID int, roundID string, cutoff time.Time) {
	r := l.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.bets) > 0 {
		log.WithFields(log.Fields{
			"room_id":        roomID,
			"stale_round_id": r.roundID,
			"bets":           len(r.bets),
		}).Error("Opening ledger over undrained bets")
	}

	r.generation++
	r.roundID = roundID
	r.cutoff = cutoff
	r.drained = false
	r.bets = nil
	r.players = make(map[entities.PlayerKey]int)
	r.pending = 0
	r.idle = nil
}

// Reserve claims a slot for a bet stamped at the given time
func (l *BetLedger) Reserve(roomID int, roundID string, player entities.PlayerKey, at time.Time) (*Reservation, error) {
	r := l.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.drained || r.roundID != roundID || !at.Before(r.cutoff) {
		return nil, fmt.Errorf("room %d round %s: %w", roomID, roundID, entities.ErrRoundClosed)
	}
	if !l.allowRepeat && r.players[player] > 0 {
		return nil, fmt.Errorf("player %s round %s: %w", player, roundID, entities.ErrAlreadyPlaced)
	}

	r.pending++
	r.players[player]++
	return &Reservation{
		ledger:     r,
		generation: r.generation,
		roomID:     roomID,
		roundID:    roundID,
		player:     player,
	}, nil
}

// Commit inserts the debited bet. It fails with ErrRoundClosed when the
// round was already drained, in which case the caller owns the refund.
func (res *Reservation) Commit(bet *entities.Bet) error {
	r := res.ledger
	r.mu.Lock()
	defer r.mu.Unlock()

	if res.done {
		return fmt.Errorf("reservation for round %s already completed", res.roundID)
	}
	res.done = true

	if r.generation != res.generation {
		return fmt.Errorf("room %d round %s: %w", res.roomID, res.roundID, entities.ErrRoundClosed)
	}

	r.bets = append(r.bets, bet)
	r.release()
	return nil
}

// Abort gives the slot back after a failed debit
func (res *Reservation) Abort() {
	r := res.ledger
	r.mu.Lock()
	defer r.mu.Unlock()

	if res.done {
		return
	}
	res.done = true

	if r.generation != res.generation {
		return
	}
	if r.players[res.player] > 0 {
		r.players[res.player]--
	}
	r.release()
}

// release must be called with r.mu held
func (r *roomLedger) release() {
	r.pending--
	if r.pending == 0 && r.idle != nil {
		close(r.idle)
		r.idle = nil
	}
}

// DrainAndClear seals the room's round, waits for reservations taken before
// the seal to finish, then removes and returns every committed bet. If ctx
// ends first, reservations still in flight are abandoned and their Commit
// fails.
func (l *BetLedger) DrainAndClear(ctx context.Context, roomID int) []*entities.Bet {
	r := l.room(roomID)

	r.mu.Lock()
	r.drained = true
	var wait chan struct{}
	if r.pending > 0 {
		r.idle = make(chan struct{})
		wait = r.idle
	}
	r.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			log.WithField("room_id", roomID).Warn("Ledger drain interrupted with reservations in flight")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bets := r.bets
	r.bets = nil
	r.players = make(map[entities.PlayerKey]int)
	r.pending = 0
	r.idle = nil
	r.generation++
	return bets
}

// Peek returns a copy of the room's committed bets
func (l *BetLedger) Peek(roomID int) []*entities.Bet {
	r := l.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*entities.Bet, len(r.bets))
	copy(out, r.bets)
	return out
}

// RebindSession points every pending bet of a player at a new session
func (l *BetLedger) RebindSession(player entities.PlayerKey, sessionID string) int {
	l.mu.RLock()
	rooms := make([]*roomLedger, 0, len(l.rooms))
	for _, r := range l.rooms {
		rooms = append(rooms, r)
	}
	l.mu.RUnlock()

	updated := 0
	for _, r := range rooms {
		r.mu.Lock()
		for _, b := range r.bets {
			if b.PlayerKey() == player {
				b.SessionRef = sessionID
				updated++
			}
		}
		r.mu.Unlock()
	}
	return updated
}

// Append reserves and commits in one step for bets whose debit already happened
func (l *BetLedger) Append(roomID int, bet *entities.Bet, at time.Time) error {
	res, err := l.Reserve(roomID, bet.RoundID, bet.PlayerKey(), at)
	if err != nil {
		return err
	}
	return res.Commit(bet)
}
