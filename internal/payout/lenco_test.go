package payout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBanksDist struct {
	mock.Mock
}

func (m *mockBanksDist) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *mockBanksDist) Set(key string, value string, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *mockBanksDist) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func TestVerifyWebhookSignature_MatchesHMACOfRawBody(t *testing.T) {
	c := New(Config{WebhookSecret: "supersecret"})
	body := []byte(`{"event":"transfer.completed"}`)

	mac := hmac.New(sha256.New, []byte("supersecret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	require.True(t, c.VerifyWebhookSignature(body, sig))
	require.False(t, c.VerifyWebhookSignature(body, "wrongsignature"))
}

func TestVerifyWebhookSignature_RejectsEmptySecretOrHeader(t *testing.T) {
	c := New(Config{})
	require.False(t, c.VerifyWebhookSignature([]byte("x"), "abc"))

	c2 := New(Config{WebhookSecret: "s"})
	require.False(t, c2.VerifyWebhookSignature([]byte("x"), ""))
}

func TestListBanks_SortsFintechCodesFirstThenAlphabetical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []Bank{
				{Code: "999", Name: "Zenith Bank"},
				{Code: "090267", Name: "Kuda"},
				{Code: "044", Name: "Access Bank"},
				{Code: "090405", Name: "OPay"},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})

	banks, err := c.ListBanks(context.Background())

	require.NoError(t, err)
	require.Equal(t, "090267", banks[0].Code)
	require.Equal(t, "090405", banks[1].Code)
	require.Equal(t, "Access Bank", banks[2].Name)
	require.Equal(t, "Zenith Bank", banks[3].Name)
}

func TestListBanks_CachesSecondCallWithoutHittingUpstream(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []Bank{{Code: "044", Name: "Access Bank"}}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})

	_, err := c.ListBanks(context.Background())
	require.NoError(t, err)
	_, err = c.ListBanks(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, calls)
}

func TestListBanks_DistCacheHitAvoidsUpstreamCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []Bank{{Code: "044", Name: "Access Bank"}}})
	}))
	defer srv.Close()

	cached, _ := json.Marshal([]Bank{{Code: "090267", Name: "Kuda"}})
	dist := &mockBanksDist{}
	dist.On("Get", banksDistCacheKey).Return(string(cached), nil)

	c := New(Config{BaseURL: srv.URL}).WithDistCache(dist)

	banks, err := c.ListBanks(context.Background())

	require.NoError(t, err)
	require.Equal(t, "090267", banks[0].Code)
	require.Equal(t, 0, calls)
}

func TestListBanks_DistCacheMissFallsThroughAndWritesBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []Bank{{Code: "044", Name: "Access Bank"}}})
	}))
	defer srv.Close()

	dist := &mockBanksDist{}
	dist.On("Get", banksDistCacheKey).Return("", context.DeadlineExceeded)
	dist.On("Set", banksDistCacheKey, mock.Anything, banksCacheTTL).Return(nil)

	c := New(Config{BaseURL: srv.URL}).WithDistCache(dist)

	banks, err := c.ListBanks(context.Background())

	require.NoError(t, err)
	require.Equal(t, "Access Bank", banks[0].Name)
	dist.AssertExpectations(t)
}

func TestGetAccountBalance_ConvertsKoboToNGN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"availableBalance": 150000},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccountID: "acc_1"})

	balance, ok := c.GetAccountBalance(context.Background())

	require.True(t, ok)
	require.Equal(t, int64(1500), balance)
}

func TestInitiateTransfer_UsesReferenceAsIdempotencyKey(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"transferId": "t_1", "providerReference": "p_1", "status": "pending"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccountID: "acc_1"})

	res, err := c.InitiateTransfer(context.Background(), 5000, "044", "0123456789", "SSWAP_OFFRAMP_1")

	require.NoError(t, err)
	require.Equal(t, "t_1", res.TransferId)
	require.Equal(t, "SSWAP_OFFRAMP_1", gotBody["idempotencyKey"])
}
