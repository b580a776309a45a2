// Package oracle keeps a warm, always-answerable cache of NGN/USD/token
// prices in front of an upstream price API that rate-limits and goes down.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/naijaswap/bridge/internal/metrics"
	"github.com/naijaswap/bridge/internal/store"

	"go.uber.org/ratelimit"
	"golang.org/x/sync/singleflight"
)

const (
	stxCoingeckoID   = "blockstack"
	usdcCoingeckoID  = "usd-coin"
	stablecoinID     = "tether"
	maxBackoff       = 5 * time.Minute
)

type TokenPrice struct {
	PriceUSD float64 `json:"priceUSD"`
	PriceNGN float64 `json:"priceNGN"`
}

type Snapshot struct {
	STX        TokenPrice `json:"STX"`
	USDC       TokenPrice `json:"USDC"`
	UsdToNgn   float64    `json:"usdToNgn"`
	FromCache  bool       `json:"fromCache"`
	FetchedAt  time.Time  `json:"fetchedAt"`
}

type Config struct {
	BaseURL          string
	FreshTTL         time.Duration
	StaleTTL         time.Duration
	BaseBackoff      time.Duration
	EmergencyUSDNGN  float64
	EmergencySTXUSD  float64
	EmergencyUSDCUSD float64
}

type Store interface {
	AppendPriceSnapshot(ctx context.Context, snap *store.PriceSnapshot) error
	History(ctx context.Context, token store.Token, since time.Time) ([]*store.PriceSnapshot, error)
}

// Cache is the price oracle. GetCurrent never fails: on any upstream
// trouble it degrades from fresh, to stale, to hard-coded emergency
// constants, in that order.
type Cache struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	store   Store
	sf      singleflight.Group
	limiter ratelimit.Limiter

	mu          sync.RWMutex
	last        *Snapshot
	failures    int
	backoffUntil time.Time
}

func New(cfg Config, store Store, logger *slog.Logger) *Cache {
	if cfg.FreshTTL == 0 {
		cfg.FreshTTL = 60 * time.Second
	}
	if cfg.StaleTTL == 0 {
		cfg.StaleTTL = 5 * time.Minute
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = 2 * time.Second
	}

	return &Cache{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		store:   store,
		limiter: ratelimit.New(10),
	}
}

// GetCurrent returns the best available snapshot. It never returns an
// error: callers only need to inspect FromCache/FetchedAt for staleness.
func (c *Cache) GetCurrent(ctx context.Context) *Snapshot {
	c.mu.RLock()
	last := c.last
	c.mu.RUnlock()

	now := time.Now()

	if last != nil && now.Sub(last.FetchedAt) < c.cfg.FreshTTL {
		metrics.OracleCacheResultTotal.WithLabelValues("fresh").Inc()
		return withCacheFlag(last, true)
	}

	if c.inBackoff(now) {
		if last != nil && now.Sub(last.FetchedAt) < c.cfg.StaleTTL {
			metrics.OracleCacheResultTotal.WithLabelValues("stale_backoff").Inc()
			return withCacheFlag(last, true)
		}
		metrics.OracleCacheResultTotal.WithLabelValues("emergency_backoff").Inc()
		return c.emergencySnapshot()
	}

	fresh, err := c.refresh(ctx)
	if err == nil {
		metrics.OracleCacheResultTotal.WithLabelValues("refreshed").Inc()
		return withCacheFlag(fresh, false)
	}

	if last != nil && now.Sub(last.FetchedAt) < c.cfg.StaleTTL {
		metrics.OracleCacheResultTotal.WithLabelValues("stale_after_failed_refresh").Inc()
		c.logger.Warn("oracle refresh failed, serving stale cache", "error", err.Error())
		return withCacheFlag(last, true)
	}

	metrics.OracleCacheResultTotal.WithLabelValues("emergency_after_failed_refresh").Inc()
	c.logger.Error("oracle refresh failed and no usable cache, serving emergency constants", "error", err.Error())
	return c.emergencySnapshot()
}

// RefreshTick is invoked by the background refresh task. It is a no-op if
// the cache is still fresh, matching the spec's "skip the call" rule.
func (c *Cache) RefreshTick(ctx context.Context) {
	c.mu.RLock()
	last := c.last
	c.mu.RUnlock()

	if last != nil && time.Since(last.FetchedAt) < c.cfg.FreshTTL {
		return
	}
	if c.inBackoff(time.Now()) {
		return
	}

	if _, err := c.refresh(ctx); err != nil {
		c.logger.Warn("background price refresh failed", "error", err.Error())
	}
}

// ForceRefresh bypasses the freshness check (but still respects an active
// backoff window) for the admin refresh endpoint.
func (c *Cache) ForceRefresh(ctx context.Context) *Snapshot {
	if c.inBackoff(time.Now()) {
		return c.GetCurrent(ctx)
	}

	fresh, err := c.refresh(ctx)
	if err != nil {
		c.logger.Warn("forced price refresh failed", "error", err.Error())
		return c.GetCurrent(ctx)
	}
	return withCacheFlag(fresh, false)
}

func (c *Cache) GetHistory(ctx context.Context, token store.Token, hours int) ([]*store.PriceSnapshot, error) {
	if hours <= 0 {
		hours = 1
	}
	if hours > 168 {
		hours = 168
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	return c.store.History(ctx, token, since)
}

func (c *Cache) inBackoff(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return now.Before(c.backoffUntil)
}

// refresh coalesces concurrent callers into a single upstream request via
// singleflight, so a cache stampede never turns into N upstream calls.
func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := c.sf.Do("refresh", func() (any, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

type coingeckoResponse map[string]map[string]float64

func (c *Cache) fetch(ctx context.Context) (*Snapshot, error) {
	c.limiter.Take()

	start := time.Now()
	defer func() {
		metrics.OracleFetchDuration.Observe(time.Since(start).Seconds())
	}()

	url := fmt.Sprintf("%s/simple/price?ids=%s,%s,%s&vs_currencies=usd,ngn", c.cfg.BaseURL, stxCoingeckoID, usdcCoingeckoID, stablecoinID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.recordFailure()
		return nil, fmt.Errorf("oracle rate-limited (429)")
	}

	if resp.StatusCode != http.StatusOK {
		c.recordFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("oracle returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed coingeckoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}

	usdToNgn := parsed[stablecoinID]["ngn"]
	if usdToNgn == 0 {
		usdToNgn = parsed[usdcCoingeckoID]["ngn"]
	}
	if usdToNgn == 0 {
		usdToNgn = c.cfg.EmergencyUSDNGN
	}

	stxUSD := parsed[stxCoingeckoID]["usd"]
	if stxUSD == 0 {
		stxUSD = c.cfg.EmergencySTXUSD
	}
	usdcUSD := parsed[usdcCoingeckoID]["usd"]
	if usdcUSD == 0 {
		usdcUSD = c.cfg.EmergencyUSDCUSD
	}

	snap := &Snapshot{
		STX:       TokenPrice{PriceUSD: stxUSD, PriceNGN: stxUSD * usdToNgn},
		USDC:      TokenPrice{PriceUSD: usdcUSD, PriceNGN: usdcUSD * usdToNgn},
		UsdToNgn:  usdToNgn,
		FetchedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.last = snap
	c.failures = 0
	c.backoffUntil = time.Time{}
	c.mu.Unlock()
	metrics.OracleBackoffActive.Set(0)

	c.persist(snap)

	return snap, nil
}

func (c *Cache) persist(snap *Snapshot) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for token, p := range map[store.Token]TokenPrice{store.TokenSTX: snap.STX, store.TokenUSDC: snap.USDC} {
			err := c.store.AppendPriceSnapshot(ctx, &store.PriceSnapshot{
				Token:     token,
				PriceUSD:  p.PriceUSD,
				PriceNGN:  p.PriceNGN,
				UsdToNgn:  snap.UsdToNgn,
				FetchedAt: snap.FetchedAt,
			})
			if err != nil {
				c.logger.Warn("failed to persist price snapshot", "token", token, "error", err.Error())
			}
		}
	}()
}

func (c *Cache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	delay := time.Duration(float64(c.cfg.BaseBackoff) * math.Pow(2, float64(c.failures-1)))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	c.backoffUntil = time.Now().Add(delay)
	metrics.OracleBackoffActive.Set(1)
}

func (c *Cache) emergencySnapshot() *Snapshot {
	return &Snapshot{
		STX:       TokenPrice{PriceUSD: c.cfg.EmergencySTXUSD, PriceNGN: c.cfg.EmergencySTXUSD * c.cfg.EmergencyUSDNGN},
		USDC:      TokenPrice{PriceUSD: c.cfg.EmergencyUSDCUSD, PriceNGN: c.cfg.EmergencyUSDCUSD * c.cfg.EmergencyUSDNGN},
		UsdToNgn:  c.cfg.EmergencyUSDNGN,
		FromCache: true,
		FetchedAt: time.Now().UTC(),
	}
}

func withCacheFlag(s *Snapshot, fromCache bool) *Snapshot {
	cp := *s
	cp.FromCache = fromCache
	return &cp
}

// RateFor returns the NGN-per-token rate used at quote time for the given
// token symbol.
func (s *Snapshot) RateFor(token store.Token) float64 {
	switch token {
	case store.TokenSTX:
		return s.STX.PriceNGN
	case store.TokenUSDC:
		return s.USDC.PriceNGN
	default:
		return 0
	}
}
