package liquidity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	balance int64
	ok      bool
	calls   int
}

func (s *stubSource) GetAccountBalance(ctx context.Context) (int64, bool) {
	s.calls++
	return s.balance, s.ok
}

type mockDist struct {
	mock.Mock
}

func (m *mockDist) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *mockDist) Set(key string, value string, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *mockDist) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func TestCheckLiquidity_Ok(t *testing.T) {
	g := New(&stubSource{balance: 100_000, ok: true}, 5000)

	res := g.CheckLiquidity(context.Background(), 50_000)

	require.Equal(t, ResultOk, res.Result)
	require.Equal(t, int64(100_000), res.Available)
}

func TestCheckLiquidity_InsufficientIncludesBuffer(t *testing.T) {
	g := New(&stubSource{balance: 50_000, ok: true}, 5000)

	res := g.CheckLiquidity(context.Background(), 48_000)

	require.Equal(t, ResultInsufficient, res.Result)
	require.Equal(t, int64(3000), res.Shortfall)
}

func TestCheckLiquidity_UnknownBalanceIsNeverPermissive(t *testing.T) {
	g := New(&stubSource{ok: false}, 5000)

	res := g.CheckLiquidity(context.Background(), 1)

	require.Equal(t, ResultUnknown, res.Result)
}

func TestGetMaxOrderNGN_FloorsAtZero(t *testing.T) {
	g := New(&stubSource{balance: 1000, ok: true}, 5000)

	available, max := g.GetMaxOrderNGN(context.Background())

	require.True(t, available)
	require.Equal(t, int64(0), max)
}

func TestWithDistCache_HitAvoidsSourceCall(t *testing.T) {
	source := &stubSource{balance: 999, ok: true}
	dist := &mockDist{}
	dist.On("Get", distCacheKey).Return("250000", nil)

	g := New(source, 5000).WithDistCache(dist)

	res := g.CheckLiquidity(context.Background(), 1000)

	require.Equal(t, ResultOk, res.Result)
	require.Equal(t, int64(250000), res.Available)
	require.Equal(t, 0, source.calls)
}

func TestWithDistCache_MissFallsThroughAndWritesBack(t *testing.T) {
	source := &stubSource{balance: 42_000, ok: true}
	dist := &mockDist{}
	dist.On("Get", distCacheKey).Return("", context.DeadlineExceeded)
	dist.On("Set", distCacheKey, "42000", distCacheTTL).Return(nil)

	g := New(source, 5000).WithDistCache(dist)

	res := g.CheckLiquidity(context.Background(), 1000)

	require.Equal(t, int64(42_000), res.Available)
	require.Equal(t, 1, source.calls)
	dist.AssertExpectations(t)
}

func TestInvalidate_DeletesDistCacheKey(t *testing.T) {
	dist := &mockDist{}
	dist.On("Delete", distCacheKey).Return(nil)

	g := New(&stubSource{}, 5000).WithDistCache(dist)
	g.Invalidate()

	dist.AssertExpectations(t)
}

func TestInvalidate_NoDistCacheIsNoop(t *testing.T) {
	g := New(&stubSource{}, 5000)
	g.Invalidate()
}
