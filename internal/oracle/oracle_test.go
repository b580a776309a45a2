package oracle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/naijaswap/bridge/internal/store"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) AppendPriceSnapshot(ctx context.Context, snap *store.PriceSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *mockStore) History(ctx context.Context, token store.Token, since time.Time) ([]*store.PriceSnapshot, error) {
	args := m.Called(ctx, token, since)
	res, _ := args.Get(0).([]*store.PriceSnapshot)
	return res, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetCurrent_FetchesAndCachesFresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"blockstack":{"usd":0.5,"ngn":750},"usd-coin":{"usd":1,"ngn":1500},"tether":{"usd":1,"ngn":1500}}`))
	}))
	defer srv.Close()

	st := &mockStore{}
	st.On("AppendPriceSnapshot", mock.Anything, mock.Anything).Return(nil)

	c := New(Config{BaseURL: srv.URL, FreshTTL: time.Minute}, st, testLogger())

	snap := c.GetCurrent(context.Background())

	require.False(t, snap.FromCache)
	require.Equal(t, 1500.0, snap.UsdToNgn)
	require.Equal(t, 750.0, snap.STX.PriceNGN)
}

func TestGetCurrent_FallsBackToEmergencyConstantsOnUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:          srv.URL,
		EmergencyUSDNGN:  1600,
		EmergencySTXUSD:  0.4,
		EmergencyUSDCUSD: 1,
	}, &mockStore{}, testLogger())

	snap := c.GetCurrent(context.Background())

	require.True(t, snap.FromCache)
	require.Equal(t, 1600.0, snap.UsdToNgn)
	require.Equal(t, 640.0, snap.STX.PriceNGN)
}

func TestGetCurrent_ServesStaleCacheWithinStaleTTLOnRefreshFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"blockstack":{"usd":0.5,"ngn":750},"usd-coin":{"usd":1,"ngn":1500},"tether":{"usd":1,"ngn":1500}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st := &mockStore{}
	st.On("AppendPriceSnapshot", mock.Anything, mock.Anything).Return(nil)

	c := New(Config{BaseURL: srv.URL, FreshTTL: time.Nanosecond, StaleTTL: time.Hour}, st, testLogger())

	first := c.GetCurrent(context.Background())
	require.False(t, first.FromCache)

	time.Sleep(5 * time.Millisecond)
	second := c.GetCurrent(context.Background())
	require.True(t, second.FromCache)
	require.Equal(t, first.UsdToNgn, second.UsdToNgn)
}

func TestGetHistory_ClampsHoursWindow(t *testing.T) {
	st := &mockStore{}
	st.On("History", mock.Anything, store.TokenSTX, mock.Anything).Return([]*store.PriceSnapshot{}, nil)

	c := New(Config{}, st, testLogger())

	_, err := c.GetHistory(context.Background(), store.TokenSTX, 10000)

	require.NoError(t, err)
	st.AssertExpectations(t)
}

func TestRateFor_UnknownTokenReturnsZero(t *testing.T) {
	snap := &Snapshot{STX: TokenPrice{PriceNGN: 750}, USDC: TokenPrice{PriceNGN: 1500}}

	require.Equal(t, 0.0, snap.RateFor("DOGE"))
	require.Equal(t, 750.0, snap.RateFor(store.TokenSTX))
}
