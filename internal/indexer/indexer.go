// Package indexer runs the singleton background scan over the platform
// deposit address, matching inbound transfers to pending offramps by
// their memo/reference convention.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/naijaswap/bridge/internal/chain"
	"github.com/naijaswap/bridge/internal/metrics"
	"github.com/naijaswap/bridge/internal/settlement"
	"github.com/naijaswap/bridge/internal/store"

	"go.uber.org/ratelimit"
)

const (
	referencePrefix    = "SSWAP_OFFRAMP_"
	txsPerCycleDefault = 50
)

type ChainReader interface {
	GetAddressTransactions(ctx context.Context, address string, limit, offset int) ([]chain.Tx, error)
}

type SettlementEngine interface {
	ConfirmReceipt(ctx context.Context, req settlement.ConfirmReceiptRequest) (settlement.ConfirmOutcome, *store.Transaction, error)
}

type Config struct {
	PlatformAddress  string
	USDCContractID   string
	PollInterval     time.Duration
	TxsPerCycle      int
}

// Indexer keeps its processed-tx set in memory only: confirm-receipt is
// idempotent, so losing this set on restart just means a handful of
// harmless re-checks, never a duplicate payout.
type Indexer struct {
	chain   ChainReader
	engine  SettlementEngine
	cfg     Config
	logger  *slog.Logger
	limiter ratelimit.Limiter

	processed map[string]struct{}
}

func New(chainClient ChainReader, engine SettlementEngine, cfg Config, logger *slog.Logger) *Indexer {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if cfg.TxsPerCycle == 0 {
		cfg.TxsPerCycle = txsPerCycleDefault
	}
	return &Indexer{
		chain:     chainClient,
		engine:    engine,
		cfg:       cfg,
		logger:    logger,
		limiter:   ratelimit.New(10),
		processed: make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled, polling every PollInterval. Callers
// launch it in its own goroutine from internal/app's Application.Run.
func (idx *Indexer) Run(ctx context.Context) {
	if idx.cfg.PlatformAddress == "" {
		idx.logger.Warn("indexer disabled: no platform deposit address configured")
		return
	}

	ticker := time.NewTicker(idx.cfg.PollInterval)
	defer ticker.Stop()

	idx.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			idx.logger.Info("indexer stopping")
			return
		case <-ticker.C:
			idx.tick(ctx)
		}
	}
}

func (idx *Indexer) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.IndexerCycleDuration.Observe(time.Since(start).Seconds())
	}()

	addrs := []string{idx.cfg.PlatformAddress}
	if idx.cfg.USDCContractID != "" {
		addrs = append(addrs, idx.cfg.USDCContractID)
	}

	for _, addr := range addrs {
		idx.limiter.Take()

		txs, err := idx.chain.GetAddressTransactions(ctx, addr, idx.cfg.TxsPerCycle, 0)
		if err != nil {
			idx.logger.Warn("indexer: failed to fetch address transactions", "address", addr, "error", err.Error())
			continue
		}

		for _, tx := range txs {
			if stop := idx.processTx(ctx, tx); stop {
				return
			}
		}
	}
}

// processTx reports true when the rest of the cycle has to be skipped.
func (idx *Indexer) processTx(ctx context.Context, tx chain.Tx) bool {
	if tx.Status != chain.StatusSuccess {
		return false
	}
	if _, seen := idx.processed[tx.TxId]; seen {
		return false
	}

	reference, tokenAmount, token, ok := idx.extractReceipt(tx)
	if !ok {
		return false
	}

	outcome, _, err := idx.engine.ConfirmReceipt(ctx, settlement.ConfirmReceiptRequest{
		Reference:     reference,
		ChainTxId:     tx.TxId,
		TokenAmount:   tokenAmount,
		Token:         token,
		SenderAddress: tx.SenderAddress,
	})

	switch {
	case err == nil:
		idx.processed[tx.TxId] = struct{}{}
		_ = outcome

	case errors.Is(err, settlement.ErrNotFound):
		// Record not yet persisted (init race): retry next cycle,
		// deliberately not marked as processed.

	case strings.Contains(err.Error(), "401"):
		idx.logger.Error("indexer: internal auth rejected, stopping this cycle", "error", err.Error())
		return true

	default:
		idx.logger.Warn("indexer: confirm-receipt failed, will retry", "reference", reference, "error", err.Error())
	}
	return false
}

func (idx *Indexer) extractReceipt(tx chain.Tx) (reference string, amount float64, token store.Token, ok bool) {
	if tx.NativeTransfer != nil {
		if tx.NativeTransfer.Recipient != idx.cfg.PlatformAddress {
			return "", 0, "", false
		}
		ref := tx.NativeTransfer.Memo
		if !strings.HasPrefix(ref, referencePrefix) {
			return "", 0, "", false
		}
		return ref, float64(tx.NativeTransfer.Amount) / 1_000_000, store.TokenSTX, true
	}

	if tx.ContractCall != nil {
		if tx.ContractCall.FunctionName != "transfer" || len(tx.ContractCall.Args) < 4 {
			return "", 0, "", false
		}
		ref := chain.DecodeMemo(tx.ContractCall.Args[3])
		if !strings.HasPrefix(ref, referencePrefix) {
			return "", 0, "", false
		}

		total := chain.SumTransferAmountTo(tx.ContractCall, idx.cfg.PlatformAddress, idx.cfg.USDCContractID)
		if total <= 0 {
			return "", 0, "", false
		}
		return ref, total, store.TokenUSDC, true
	}

	return "", 0, "", false
}
