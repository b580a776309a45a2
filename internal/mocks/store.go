package mocks

import (
	"context"

	"github.com/naijaswap/bridge/internal/store"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MockTransactionStore implements the narrow Store interface both
// internal/settlement and internal/onramp depend on.
type MockTransactionStore struct {
	mock.Mock
}

func (m *MockTransactionStore) Create(ctx context.Context, tx *store.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionStore) FindByReference(ctx context.Context, reference string) (*store.Transaction, error) {
	args := m.Called(ctx, reference)
	tx, _ := args.Get(0).(*store.Transaction)
	return tx, args.Error(1)
}

func (m *MockTransactionStore) ConditionalUpdate(ctx context.Context, reference string, requiredStatus store.Status, mutation bson.M) (*store.Transaction, error) {
	args := m.Called(ctx, reference, requiredStatus, mutation)
	tx, _ := args.Get(0).(*store.Transaction)
	return tx, args.Error(1)
}
