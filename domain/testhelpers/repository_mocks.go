package testhelpers

import (
	"context"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockRoundRepository is a mock implementation of RoundRepository
type MockRoundRepository struct {
	mock.Mock
}

func (m *MockRoundRepository) Create(ctx context.Context, round *entities.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundRepository) MarkClosed(ctx context.Context, roundID string, closedAt time.Time) error {
	args := m.Called(ctx, roundID, closedAt)
	return args.Error(0)
}

func (m *MockRoundRepository) GetByID(ctx context.Context, roundID string) (*entities.Round, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Round), args.Error(1)
}

func (m *MockRoundRepository) RecentOutcomes(ctx context.Context, limit int) ([]*entities.HistoryEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.HistoryEntry), args.Error(1)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *entities.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) UpdateStatus(ctx context.Context, betIDs []uuid.UUID, status entities.BetStatus) error {
	args := m.Called(ctx, betIDs, status)
	return args.Error(0)
}

func (m *MockBetRepository) GetPlaced(ctx context.Context) ([]*entities.Bet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

// MockSettlementRepository is a mock implementation of SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) CreateBatch(ctx context.Context, results []*entities.SettlementResult) error {
	args := m.Called(ctx, results)
	return args.Error(0)
}

func (m *MockSettlementRepository) GetByRound(ctx context.Context, roundID string) ([]*entities.SettlementResult, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.SettlementResult), args.Error(1)
}

// MockFailedBetRepository is a mock implementation of FailedBetRepository
type MockFailedBetRepository struct {
	mock.Mock
}

func (m *MockFailedBetRepository) Record(ctx context.Context, failed *entities.FailedBet) error {
	args := m.Called(ctx, failed)
	return args.Error(0)
}

// MockRoomTemplateRepository is a mock implementation of RoomTemplateRepository
type MockRoomTemplateRepository struct {
	mock.Mock
}

func (m *MockRoomTemplateRepository) GetActive(ctx context.Context) ([]*entities.Room, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Room), args.Error(1)
}

// MockUnitOfWork hands out the embedded repository mocks
type MockUnitOfWork struct {
	mock.Mock
	Rounds      *MockRoundRepository
	Bets        *MockBetRepository
	Settlements *MockSettlementRepository
}

// NewMockUnitOfWork creates a unit of work with fresh repository mocks
func NewMockUnitOfWork() *MockUnitOfWork {
	return &MockUnitOfWork{
		Rounds:      new(MockRoundRepository),
		Bets:        new(MockBetRepository),
		Settlements: new(MockSettlementRepository),
	}
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) RoundRepository() interfaces.RoundRepository {
	return m.Rounds
}

func (m *MockUnitOfWork) BetRepository() interfaces.BetRepository {
	return m.Bets
}

func (m *MockUnitOfWork) SettlementRepository() interfaces.SettlementRepository {
	return m.Settlements
}

// MockUnitOfWorkFactory always returns the same unit of work
type MockUnitOfWorkFactory struct {
	UnitOfWork *MockUnitOfWork
}

func (f *MockUnitOfWorkFactory) Create() interfaces.UnitOfWork {
	return f.UnitOfWork
}
