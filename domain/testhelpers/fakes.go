package testhelpers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ManualClock is a Clock whose Sleep advances time instantly
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	onSleep func(from, to time.Time)
}

// NewManualClock creates a clock frozen at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	from := c.now
	c.now = c.now.Add(d)
	to := c.now
	hook := c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(from, to)
	}
	return ctx.Err()
}

// Advance moves the clock forward
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// OnSleep installs a hook run after every Sleep with the covered interval
func (c *ManualClock) OnSleep(fn func(from, to time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSleep = fn
}

// SequenceRandom replays a fixed sequence of draws
type SequenceRandom struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewSequenceRandom creates a source cycling through values
func NewSequenceRandom(values ...int) *SequenceRandom {
	return &SequenceRandom{values: values}
}

func (r *SequenceRandom) Intn(n int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 0, errors.New("sequence random has no values")
	}
	v := r.values[r.next%len(r.values)]
	r.next++
	return v % n, nil
}

// FakeWallet is an in-memory operator wallet. It applies each transaction id
// at most once, and also acts as the credit queue.
type FakeWallet struct {
	mu        sync.Mutex
	balances  map[entities.PlayerKey]decimal.Decimal
	applied   map[uuid.UUID]*entities.WalletTransaction
	published []*entities.WalletTransaction
	posts     int

	DebitDelay     time.Duration
	DebitErr       error
	PublishErr     error
	DeliverCredits bool
}

// NewFakeWallet creates an empty wallet that delivers credits immediately
func NewFakeWallet() *FakeWallet {
	return &FakeWallet{
		balances:       make(map[entities.PlayerKey]decimal.Decimal),
		applied:        make(map[uuid.UUID]*entities.WalletTransaction),
		DeliverCredits: true,
	}
}

// SetBalance seeds a player's balance
func (w *FakeWallet) SetBalance(player entities.PlayerKey, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[player] = amount
}

// Balance returns a player's balance
func (w *FakeWallet) Balance(player entities.PlayerKey) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[player]
}

// Applied returns the number of distinct transactions applied
func (w *FakeWallet) Applied() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.applied)
}

// Posts returns how many Post calls were made
func (w *FakeWallet) Posts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.posts
}

// Published returns every transaction handed to the queue
func (w *FakeWallet) Published() []*entities.WalletTransaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*entities.WalletTransaction, len(w.published))
	copy(out, w.published)
	return out
}

func (w *FakeWallet) Post(ctx context.Context, txn *entities.WalletTransaction) error {
	w.mu.Lock()
	w.posts++
	delay := w.DebitDelay
	debitErr := w.DebitErr
	w.mu.Unlock()

	if txn.Type == entities.TxnDebit {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if debitErr != nil {
			return debitErr
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, seen := w.applied[txn.TxnID]; seen {
		return nil
	}

	player := entities.PlayerKey{OperatorID: txn.OperatorID, PlayerID: txn.PlayerID}
	balance := w.balances[player]
	switch txn.Type {
	case entities.TxnDebit:
		if balance.LessThan(txn.Amount) {
			return fmt.Errorf("insufficient funds for %s", player)
		}
		w.balances[player] = balance.Sub(txn.Amount)
	case entities.TxnCredit:
		w.balances[player] = balance.Add(txn.Amount)
	}
	w.applied[txn.TxnID] = txn
	return nil
}

func (w *FakeWallet) Publish(ctx context.Context, txn *entities.WalletTransaction) error {
	w.mu.Lock()
	if w.PublishErr != nil {
		err := w.PublishErr
		w.mu.Unlock()
		return err
	}
	w.published = append(w.published, txn)
	deliver := w.DeliverCredits
	w.mu.Unlock()

	if deliver {
		return w.Post(ctx, txn)
	}
	return nil
}

// RecordedEvent is one message captured by RecordingBroadcaster
type RecordedEvent struct {
	RoomID    int
	SessionID string
	Event     events.Event
}

// RecordingBroadcaster captures outbound messages
type RecordingBroadcaster struct {
	mu           sync.Mutex
	events       []RecordedEvent
	disconnected map[string]bool
}

// NewRecordingBroadcaster creates a broadcaster treating every session as connected
func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{disconnected: make(map[string]bool)}
}

// Disconnect makes EmitToSession report sessionID as gone
func (b *RecordingBroadcaster) Disconnect(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected[sessionID] = true
}

func (b *RecordingBroadcaster) BroadcastRoom(roomID int, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, RecordedEvent{RoomID: roomID, Event: event})
}

func (b *RecordingBroadcaster) BroadcastAll(event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, RecordedEvent{Event: event})
}

func (b *RecordingBroadcaster) EmitToSession(sessionID string, event events.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disconnected[sessionID] {
		return false
	}
	b.events = append(b.events, RecordedEvent{SessionID: sessionID, Event: event})
	return true
}

// OfType returns captured messages of one event type in order
func (b *RecordingBroadcaster) OfType(t events.EventType) []RecordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []RecordedEvent
	for _, e := range b.events {
		if e.Event.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// ForSession returns messages emitted to one session
func (b *RecordingBroadcaster) ForSession(sessionID string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.SessionID == sessionID {
			out = append(out, e.Event)
		}
	}
	return out
}

// Types returns the sequence of event types captured
func (b *RecordingBroadcaster) Types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Event.Type()
	}
	return out
}

// MemorySessionStore is an in-memory SessionStore
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*entities.PlayerSession
	rooms    map[entities.PlayerKey]int
	bindings map[entities.PlayerKey]string

	AdjustErr error
}

// NewMemorySessionStore creates an empty store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*entities.PlayerSession),
		rooms:    make(map[entities.PlayerKey]int),
		bindings: make(map[entities.PlayerKey]string),
	}
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*entities.PlayerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, entities.ErrSessionNotFound
	}
	c := *sess
	return &c, nil
}

func (s *MemorySessionStore) Save(_ context.Context, session *entities.PlayerSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *session
	s.sessions[session.SessionID] = &c
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemorySessionStore) AdjustBalance(_ context.Context, sessionID string, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AdjustErr != nil {
		return decimal.Zero, s.AdjustErr
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return decimal.Zero, entities.ErrSessionNotFound
	}
	sess.Balance = sess.Balance.Add(delta)
	return sess.Balance, nil
}

func (s *MemorySessionStore) SetRoom(_ context.Context, sessionID string, roomID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return entities.ErrSessionNotFound
	}
	sess.RoomID = roomID
	return nil
}

func (s *MemorySessionStore) ClaimRoom(_ context.Context, player entities.PlayerKey, roomID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.rooms[player]; ok && held != 0 {
		return entities.ErrAlreadyInRoom
	}
	s.rooms[player] = roomID
	return nil
}

func (s *MemorySessionStore) ReleaseRoom(_ context.Context, player entities.PlayerKey, roomID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[player] == roomID {
		delete(s.rooms, player)
	}
	return nil
}

func (s *MemorySessionStore) CurrentRoom(_ context.Context, player entities.PlayerKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[player], nil
}

func (s *MemorySessionStore) BindPlayer(_ context.Context, player entities.PlayerKey, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.bindings[player]
	s.bindings[player] = sessionID
	return prev, nil
}

func (s *MemorySessionStore) PlayerSessionID(_ context.Context, player entities.PlayerKey) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindings[player], nil
}
