package interfaces

import (
	"context"
	"time"

	"colorgame/domain/entities"

	"github.com/google/uuid"
)

// RoundRepository defines the interface for round history
type RoundRepository interface {
	// Create records a drawn round with its outcome and bonus set
	Create(ctx context.Context, round *entities.Round) error

	// MarkClosed stamps the closing time of a round
	MarkClosed(ctx context.Context, roundID string, closedAt time.Time) error

	// GetByID retrieves a round, returning nil if it was never recorded
	GetByID(ctx context.Context, roundID string) (*entities.Round, error)

	// RecentOutcomes returns the newest drawn rounds across all rooms
	RecentOutcomes(ctx context.Context, limit int) ([]*entities.HistoryEntry, error)
}

// BetRepository defines the interface for accepted bets
type BetRepository interface {
	// Create records an accepted bet in PLACED status
	Create(ctx context.Context, bet *entities.Bet) error

	// UpdateStatus moves the given bets to a new status
	UpdateStatus(ctx context.Context, betIDs []uuid.UUID, status entities.BetStatus) error

	// GetPlaced returns every bet still waiting for settlement or refund
	GetPlaced(ctx context.Context) ([]*entities.Bet, error)
}

// SettlementRepository defines the interface for settlement records
type SettlementRepository interface {
	// CreateBatch inserts one settlement row per bet
	CreateBatch(ctx context.Context, results []*entities.SettlementResult) error

	// GetByRound returns the settlement rows of a round
	GetByRound(ctx context.Context, roundID string) ([]*entities.SettlementResult, error)
}

// FailedBetRepository records rejected placements
type FailedBetRepository interface {
	Record(ctx context.Context, failed *entities.FailedBet) error
}

// RoomTemplateRepository reads room definitions from the config store
type RoomTemplateRepository interface {
	// GetActive returns every active room template
	GetActive(ctx context.Context) ([]*entities.Room, error)
}

// UnitOfWork groups repository writes into one transaction
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	RoundRepository() RoundRepository
	BetRepository() BetRepository
	SettlementRepository() SettlementRepository
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
