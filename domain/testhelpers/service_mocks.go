package testhelpers

import (
	"context"

	"colorgame/domain/entities"

	"github.com/stretchr/testify/mock"
)

// MockWalletClient is a mock implementation of WalletClient
type MockWalletClient struct {
	mock.Mock
}

func (m *MockWalletClient) Post(ctx context.Context, txn *entities.WalletTransaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

// MockCreditQueue is a mock implementation of CreditQueue
type MockCreditQueue struct {
	mock.Mock
}

func (m *MockCreditQueue) Publish(ctx context.Context, txn *entities.WalletTransaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

// MockIdentityService is a mock implementation of IdentityService
type MockIdentityService struct {
	mock.Mock
}

func (m *MockIdentityService) LookupSession(ctx context.Context, token, gameID string) (*entities.PlayerProfile, error) {
	args := m.Called(ctx, token, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PlayerProfile), args.Error(1)
}

// MockAuditIndexer is a mock implementation of AuditIndexer
type MockAuditIndexer struct {
	mock.Mock
}

func (m *MockAuditIndexer) IndexSettlements(ctx context.Context, results []*entities.SettlementResult) error {
	args := m.Called(ctx, results)
	return args.Error(0)
}
