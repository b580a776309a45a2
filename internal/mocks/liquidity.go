package mocks

import (
	"context"
	"time"

	"github.com/naijaswap/bridge/internal/liquidity"

	"github.com/stretchr/testify/mock"
)

// MockLiquidityGuard implements settlement.LiquidityGuard.
type MockLiquidityGuard struct {
	mock.Mock
}

func (m *MockLiquidityGuard) CheckLiquidity(ctx context.Context, requiredNGN int64) liquidity.CheckResult {
	args := m.Called(ctx, requiredNGN)
	return args.Get(0).(liquidity.CheckResult)
}

func (m *MockLiquidityGuard) GetMaxOrderNGN(ctx context.Context) (bool, int64) {
	args := m.Called(ctx)
	return args.Bool(0), args.Get(1).(int64)
}

func (m *MockLiquidityGuard) Invalidate() {
	m.Called()
}

// MockDistCache implements liquidity.DistCache as a testify mock, for
// tests that want to exercise the read-through path without Redis.
type MockDistCache struct {
	mock.Mock
}

func (m *MockDistCache) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockDistCache) Set(key string, value string, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockDistCache) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}
