package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/naijaswap/bridge/internal/config"
	"github.com/naijaswap/bridge/internal/errHandler"

	"github.com/stretchr/testify/require"
)

func testMiddleware(t *testing.T, max int, windowMs int) *Middleware {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eh := errHandler.New("test", "http://localhost", "", nil, logger)

	cfg := &config.Config{}
	cfg.RateLimit.Max = max
	cfg.RateLimit.WindowMs = windowMs

	return New(eh, logger, cfg)
}

func TestRateLimit_SharesOneLimiterPerIP(t *testing.T) {
	mid := testMiddleware(t, 1000, 1000)

	handler := mid.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	mid.limiterMu.Lock()
	n := len(mid.limiters)
	mid.limiterMu.Unlock()
	require.Equal(t, 1, n)

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req)

	mid.limiterMu.Lock()
	n2 := len(mid.limiters)
	mid.limiterMu.Unlock()
	require.Equal(t, 1, n2, "second request from the same IP must reuse the existing limiter")
}

func TestRateLimit_DefaultsWhenConfigIsZero(t *testing.T) {
	mid := testMiddleware(t, 0, 0)

	handler := mid.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.RemoteAddr = "203.0.113.9:1234"

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rate limiter blocked far longer than the default 60-requests-per-minute ceiling should allow")
	}
}
