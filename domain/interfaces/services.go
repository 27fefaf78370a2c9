package interfaces

import (
	"context"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/events"

	"github.com/shopspring/decimal"
)

// Clock abstracts wall time so phase transitions can be driven by tests
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

// RandomSource draws uniform integers in [0, n)
type RandomSource interface {
	Intn(n int) (int, error)
}

// Broadcaster delivers display messages to connected players. Delivery is
// best effort: a dropped broadcast is never a correctness failure.
type Broadcaster interface {
	// BroadcastRoom sends to every member of a room
	BroadcastRoom(roomID int, event events.Event)

	// BroadcastAll sends to every connected session
	BroadcastAll(event events.Event)

	// EmitToSession sends to one session, reporting whether it was connected
	EmitToSession(sessionID string, event events.Event) bool
}

// WalletClient performs one balance mutation against the operator wallet.
// The wallet deduplicates on TxnID.
type WalletClient interface {
	Post(ctx context.Context, txn *entities.WalletTransaction) error
}

// CreditQueue durably enqueues credits for asynchronous delivery
type CreditQueue interface {
	Publish(ctx context.Context, txn *entities.WalletTransaction) error
}

// SessionStore is the key-value cache holding sessions and room membership
type SessionStore interface {
	// Get returns the session or entities.ErrSessionNotFound
	Get(ctx context.Context, sessionID string) (*entities.PlayerSession, error)

	// Save writes the session and refreshes its TTL
	Save(ctx context.Context, session *entities.PlayerSession) error

	// Delete removes the session
	Delete(ctx context.Context, sessionID string) error

	// AdjustBalance applies delta to the cached balance and returns the new value
	AdjustBalance(ctx context.Context, sessionID string, delta decimal.Decimal) (decimal.Decimal, error)

	// SetRoom updates only the session's room field
	SetRoom(ctx context.Context, sessionID string, roomID int) error

	// ClaimRoom sets the player's membership marker, failing with
	// entities.ErrAlreadyInRoom when another room is held
	ClaimRoom(ctx context.Context, player entities.PlayerKey, roomID int) error

	// ReleaseRoom clears the membership marker if it still points at roomID
	ReleaseRoom(ctx context.Context, player entities.PlayerKey, roomID int) error

	// CurrentRoom returns the held room or 0
	CurrentRoom(ctx context.Context, player entities.PlayerKey) (int, error)

	// BindPlayer records which session currently serves the player
	BindPlayer(ctx context.Context, player entities.PlayerKey, sessionID string) (previous string, err error)

	// PlayerSessionID returns the session currently serving the player, or ""
	PlayerSessionID(ctx context.Context, player entities.PlayerKey) (string, error)
}

// IdentityService resolves a connection token to a player profile
type IdentityService interface {
	LookupSession(ctx context.Context, token, gameID string) (*entities.PlayerProfile, error)
}

// AuditIndexer mirrors settlement records into a search index
type AuditIndexer interface {
	IndexSettlements(ctx context.Context, results []*entities.SettlementResult) error
}

// Metrics receives domain measurements
type Metrics interface {
	RecordBetPlaced(roomID int, amount decimal.Decimal)
	RecordBetRejected(reason string)
	RecordDebit(duration time.Duration, ok bool)
	RecordCredit(kind string, ok bool)
	RecordRoundCompleted(roomID int, duration time.Duration)
	RecordSettlement(roomID int, bets int, duration time.Duration)
}
