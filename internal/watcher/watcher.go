// Package watcher runs the per-transaction background poll spawned after
// a user reports a broadcast: it races the chain indexer to claim the
// confirm-receipt for one specific transaction.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/naijaswap/bridge/internal/chain"
	"github.com/naijaswap/bridge/internal/metrics"
	"github.com/naijaswap/bridge/internal/settlement"
	"github.com/naijaswap/bridge/internal/store"
)

const (
	maxAttempts  = 120
	pollInterval = 5 * time.Second
)

type ChainReader interface {
	GetTxById(ctx context.Context, txId string) (*chain.Tx, error)
}

type SettlementEngine interface {
	ConfirmReceipt(ctx context.Context, req settlement.ConfirmReceiptRequest) (settlement.ConfirmOutcome, *store.Transaction, error)
	FailPendingTimeout(ctx context.Context, reference, reason string) error
}

type Watcher struct {
	chain           ChainReader
	engine          SettlementEngine
	logger          *slog.Logger
	usdcContractID  string
	platformAddress string
}

func New(chainClient ChainReader, engine SettlementEngine, usdcContractID, platformAddress string, logger *slog.Logger) *Watcher {
	return &Watcher{
		chain:           chainClient,
		engine:          engine,
		logger:          logger,
		usdcContractID:  usdcContractID,
		platformAddress: platformAddress,
	}
}

// Watch is fire-and-forget: it launches its own goroutine and returns
// immediately, matching the spec's requirement that notify-tx never
// blocks on chain confirmation.
func (w *Watcher) Watch(reference, chainTxId string) {
	go w.run(reference, chainTxId)
}

func (w *Watcher) run(reference, chainTxId string) {
	ctx := context.Background()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := w.chain.GetTxById(ctx, chainTxId)

		switch {
		case err != nil:
			var nf *chain.NotFoundError
			if !errors.As(err, &nf) {
				w.logger.Warn("watcher: chain lookup error, retrying", "reference", reference, "error", err.Error())
			}

		case tx.Status == chain.StatusSuccess:
			w.onSuccess(ctx, reference, chainTxId, tx)
			return

		case tx.Status.IsAbort():
			w.onAbort(ctx, reference, string(tx.Status))
			return

		case tx.Status.IsDropped():
			w.logger.Info("watcher: tx dropped, continuing to poll for rebroadcast", "reference", reference, "status", tx.Status)

		default:
			// pending: keep polling
		}

		time.Sleep(pollInterval)
	}

	metrics.WatcherOutcomeTotal.WithLabelValues("timeout").Inc()
	if err := w.engine.FailPendingTimeout(ctx, reference, "poll timeout"); err != nil {
		w.logger.Error("watcher: failed to record poll timeout", "reference", reference, "error", err.Error())
	}
}

func (w *Watcher) onSuccess(ctx context.Context, reference, chainTxId string, tx *chain.Tx) {
	var amount float64
	var token store.Token

	if tx.NativeTransfer != nil {
		amount = float64(tx.NativeTransfer.Amount) / 1_000_000
		token = store.TokenSTX
	} else if tx.ContractCall != nil {
		amount = chain.SumTransferAmountTo(tx.ContractCall, w.platformAddress, w.usdcContractID)
		token = store.TokenUSDC
	}

	_, _, err := w.engine.ConfirmReceipt(ctx, settlement.ConfirmReceiptRequest{
		Reference:     reference,
		ChainTxId:     chainTxId,
		TokenAmount:   amount,
		Token:         token,
		SenderAddress: tx.SenderAddress,
	})
	if err != nil {
		metrics.WatcherOutcomeTotal.WithLabelValues("confirm_failed").Inc()
		w.logger.Warn("watcher: confirm-receipt failed", "reference", reference, "error", err.Error())
		return
	}
	metrics.WatcherOutcomeTotal.WithLabelValues("confirmed").Inc()
}

func (w *Watcher) onAbort(ctx context.Context, reference, reason string) {
	metrics.WatcherOutcomeTotal.WithLabelValues("aborted").Inc()
	if err := w.engine.FailPendingTimeout(ctx, reference, reason); err != nil {
		w.logger.Error("watcher: failed to record aborted tx", "reference", reference, "error", err.Error())
	}
}
