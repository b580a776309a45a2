// Package liquidity gates new offramps against the platform's cached NGN
// float so the settlement engine never promises a payout it cannot make.
package liquidity

import (
	"context"
	"strconv"
	"time"
)

type Result string

const (
	ResultOk           Result = "ok"
	ResultInsufficient Result = "insufficient"
	ResultUnknown      Result = "unknown"
)

const distCacheKey = "liquidity:balance_ngn"
const distCacheTTL = 20 * time.Second

type BalanceSource interface {
	GetAccountBalance(ctx context.Context) (balance int64, ok bool)
}

// DistCache lets every replica of this service share the last known
// balance instead of each replica hammering the payout provider on its
// own 30s cache cycle.
type DistCache interface {
	Get(key string) (string, error)
	Set(key string, value string, expiration time.Duration) error
	Delete(key string) error
}

type Guard struct {
	source       BalanceSource
	dist         DistCache
	minBufferNGN int64
}

func New(source BalanceSource, minBufferNGN int64) *Guard {
	if minBufferNGN <= 0 {
		minBufferNGN = 5000
	}
	return &Guard{source: source, minBufferNGN: minBufferNGN}
}

// WithDistCache attaches a shared cache read before falling through to the
// balance source. Optional: a Guard with no dist cache just calls source
// on every check.
func (g *Guard) WithDistCache(dist DistCache) *Guard {
	g.dist = dist
	return g
}

func (g *Guard) balance(ctx context.Context) (int64, bool) {
	if g.dist != nil {
		if raw, err := g.dist.Get(distCacheKey); err == nil {
			if balance, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return balance, true
			}
		}
	}

	balance, ok := g.source.GetAccountBalance(ctx)
	if ok && g.dist != nil {
		_ = g.dist.Set(distCacheKey, strconv.FormatInt(balance, 10), distCacheTTL)
	}
	return balance, ok
}

type CheckResult struct {
	Result    Result
	Available int64
	Shortfall int64
}

// CheckLiquidity requires available >= requiredNGN + buffer. An unknown
// balance is treated as insufficient, never as permissive.
func (g *Guard) CheckLiquidity(ctx context.Context, requiredNGN int64) CheckResult {
	balance, ok := g.balance(ctx)
	if !ok {
		return CheckResult{Result: ResultUnknown}
	}

	needed := requiredNGN + g.minBufferNGN
	if balance >= needed {
		return CheckResult{Result: ResultOk, Available: balance}
	}

	return CheckResult{
		Result:    ResultInsufficient,
		Available: balance,
		Shortfall: needed - balance,
	}
}

// Invalidate drops the shared balance cache so the next check re-reads the
// payout provider. Called right after a successful payout initiation: under
// bursty init storms the dist cache's TTL alone is a correctness hazard.
func (g *Guard) Invalidate() {
	if g.dist != nil {
		_ = g.dist.Delete(distCacheKey)
	}
}

// GetMaxOrderNGN exposes only the derived spendable ceiling, never the raw
// balance, per the spec's liquidity-endpoint contract.
func (g *Guard) GetMaxOrderNGN(ctx context.Context) (available bool, maxOrderNGN int64) {
	balance, ok := g.balance(ctx)
	if !ok {
		return false, 0
	}

	max := balance - g.minBufferNGN
	if max < 0 {
		max = 0
	}
	return true, max
}
