package settlementmock

import (
	"context"

	"github.com/naijaswap/bridge/internal/settlement"
	"github.com/naijaswap/bridge/internal/store"

	"github.com/stretchr/testify/mock"
)

// MockSettlementEngine implements both watcher.SettlementEngine and
// indexer.SettlementEngine.
type MockSettlementEngine struct {
	mock.Mock
}

func (m *MockSettlementEngine) ConfirmReceipt(ctx context.Context, req settlement.ConfirmReceiptRequest) (settlement.ConfirmOutcome, *store.Transaction, error) {
	args := m.Called(ctx, req)
	tx, _ := args.Get(1).(*store.Transaction)
	return args.Get(0).(settlement.ConfirmOutcome), tx, args.Error(2)
}

func (m *MockSettlementEngine) FailPendingTimeout(ctx context.Context, reference, reason string) error {
	args := m.Called(ctx, reference, reason)
	return args.Error(0)
}
