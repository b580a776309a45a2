package mocks

import (
	"context"

	"github.com/naijaswap/bridge/internal/store"

	"github.com/stretchr/testify/mock"
)

// MockAuditStore implements worker.AuditStore.
type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) AppendAuditEvent(ctx context.Context, event store.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
