package mocks

import (
	"context"

	"github.com/naijaswap/bridge/internal/chain"

	"github.com/stretchr/testify/mock"
)

// MockChainReader implements both watcher.ChainReader and
// indexer.ChainReader, since both are narrow structural subsets of
// chain.Client.
type MockChainReader struct {
	mock.Mock
}

func (m *MockChainReader) GetTxById(ctx context.Context, txId string) (*chain.Tx, error) {
	args := m.Called(ctx, txId)
	tx, _ := args.Get(0).(*chain.Tx)
	return tx, args.Error(1)
}

func (m *MockChainReader) GetAddressTransactions(ctx context.Context, address string, limit, offset int) ([]chain.Tx, error) {
	args := m.Called(ctx, address, limit, offset)
	txs, _ := args.Get(0).([]chain.Tx)
	return txs, args.Error(1)
}
