// Package settlement is the coordinator and owner of the offramp status
// machine: pending -> processing -> settling -> confirmed|failed. Every
// transition is a conditional update on the transaction store, never an
// in-process lock, so replicas of this process never diverge.
package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/naijaswap/bridge/internal/events"
	"github.com/naijaswap/bridge/internal/liquidity"
	"github.com/naijaswap/bridge/internal/metrics"
	"github.com/naijaswap/bridge/internal/payout"
	"github.com/naijaswap/bridge/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientLiquid = errors.New("insufficient liquidity")
	ErrLiquidityUnknown   = errors.New("liquidity unknown")
	ErrNoDepositAddress   = errors.New("platform deposit address not configured")
	ErrAlreadyProcessing  = errors.New("already processing")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

var addressPattern = regexp.MustCompile(`^(SP|SM|ST)[0-9A-Z]{20,50}$`)
var accountNumberPattern = regexp.MustCompile(`^\d{10}$`)

// amountToleranceDefaultBPS mirrors the spec's 0.1% under-delivery example.
const amountToleranceDefaultBPS = 10

type PayoutProvider interface {
	ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*payout.ResolvedAccount, error)
	InitiateTransfer(ctx context.Context, amountNGN int64, bankCode, accountNumber, reference string) (*payout.TransferResult, error)
	VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool
}

type LiquidityGuard interface {
	CheckLiquidity(ctx context.Context, requiredNGN int64) liquidity.CheckResult
	GetMaxOrderNGN(ctx context.Context) (available bool, maxOrderNGN int64)
	Invalidate()
}

type Store interface {
	Create(ctx context.Context, tx *store.Transaction) error
	FindByReference(ctx context.Context, reference string) (*store.Transaction, error)
	ConditionalUpdate(ctx context.Context, reference string, requiredStatus store.Status, mutation bson.M) (*store.Transaction, error)
}

type Config struct {
	MinToken           float64
	MaxToken           float64
	FlatFeeNGN         int64
	PlatformAddress    string
	ExpiryWindow       time.Duration
	AmountToleranceBPS int64
	ConfirmationBlocks int
}

// ManualSettlementReporter is implemented by internal/errHandler and is
// used to alert operators when a payout cannot be reconciled automatically.
type ManualSettlementReporter interface {
	ReportManualSettlement(reference, reason string, fields map[string]any)
}

// Watcher spawns the per-transaction watcher after a broadcast
// notification; implemented by internal/watcher to avoid a direct
// dependency (which would otherwise cycle back into this package).
type Watcher interface {
	Watch(reference, chainTxId string)
}

type Engine struct {
	store    Store
	oracle   PriceSourceFunc
	payout   PayoutProvider
	guard    LiquidityGuard
	reporter ManualSettlementReporter
	watcher  Watcher
	events   *events.Publisher
	cfg      Config
	logger   *slog.Logger
}

// PriceSourceFunc adapts *oracle.Cache.GetCurrent (which returns a
// concrete *oracle.Snapshot) to the narrow rate-lookup this package needs.
type PriceSourceFunc func(ctx context.Context) (rateFor func(token store.Token) float64)

func New(st Store, oracleFn PriceSourceFunc, payoutClient PayoutProvider, guard LiquidityGuard, reporter ManualSettlementReporter, cfg Config, logger *slog.Logger) *Engine {
	if cfg.ExpiryWindow == 0 {
		cfg.ExpiryWindow = 30 * time.Minute
	}
	if cfg.AmountToleranceBPS == 0 {
		cfg.AmountToleranceBPS = amountToleranceDefaultBPS
	}
	return &Engine{
		store:    st,
		oracle:   oracleFn,
		payout:   payoutClient,
		guard:    guard,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetWatcher wires the watcher after construction, breaking the
// engine<->watcher initialization cycle (the watcher needs the engine to
// call ConfirmReceipt; the engine needs the watcher to spawn it).
func (e *Engine) SetWatcher(w Watcher) {
	e.watcher = w
}

// SetEventPublisher wires a Kafka publisher for lifecycle events. Optional:
// a nil publisher (or never calling this) leaves event publishing a no-op.
func (e *Engine) SetEventPublisher(p *events.Publisher) {
	e.events = p
}

type InitOfframpRequest struct {
	Token         store.Token
	TokenAmount   float64
	SenderAddress string
	BankCode      string
	AccountNumber string
}

type DepositInstructions struct {
	Transaction      *store.Transaction
	DepositAddress   string
	ExactAmount      float64
	Memo             string
}

// InitializeOfframp validates, quotes, checks liquidity, and persists a
// new pending record, in the order the spec requires: verified bank
// account before quote before liquidity before persistence, so a failed
// early step never costs an upstream call for a later one.
func (e *Engine) InitializeOfframp(ctx context.Context, req InitOfframpRequest) (*DepositInstructions, error) {
	if req.Token != store.TokenSTX && req.Token != store.TokenUSDC {
		return nil, fmt.Errorf("%w: unsupported token %q", ErrValidation, req.Token)
	}
	if req.TokenAmount < e.cfg.MinToken || req.TokenAmount > e.cfg.MaxToken {
		return nil, fmt.Errorf("%w: tokenAmount must be between %v and %v", ErrValidation, e.cfg.MinToken, e.cfg.MaxToken)
	}
	if !addressPattern.MatchString(req.SenderAddress) {
		return nil, fmt.Errorf("%w: invalid sender address", ErrValidation)
	}
	if !accountNumberPattern.MatchString(req.AccountNumber) {
		return nil, fmt.Errorf("%w: account number must be 10 digits", ErrValidation)
	}

	resolved, err := e.payout.ResolveAccount(ctx, req.BankCode, req.AccountNumber)
	if err != nil {
		return nil, err
	}

	if e.cfg.PlatformAddress == "" {
		return nil, ErrNoDepositAddress
	}

	rateFor := e.oracle(ctx)
	rate := rateFor(req.Token)

	gross := req.TokenAmount * rate
	ngnAmount := int64(math.Floor(gross - float64(e.cfg.FlatFeeNGN)))
	if ngnAmount <= 0 {
		return nil, fmt.Errorf("%w: computed ngnAmount is non-positive", ErrValidation)
	}

	check := e.guard.CheckLiquidity(ctx, ngnAmount)
	switch check.Result {
	case liquidity.ResultInsufficient:
		return nil, ErrInsufficientLiquid
	case liquidity.ResultUnknown:
		return nil, ErrLiquidityUnknown
	}

	reference := generateReference("OFFRAMP")
	now := time.Now().UTC()

	tx := &store.Transaction{
		Reference:        reference,
		Token:            req.Token,
		Direction:        store.DirectionOfframp,
		TokenAmount:      req.TokenAmount,
		NgnAmount:        ngnAmount,
		FeeNGN:           e.cfg.FlatFeeNGN,
		RateAtTime:       rate,
		SenderAddress:    req.SenderAddress,
		RecipientAddress: e.cfg.PlatformAddress,
		Status:           store.StatusPending,
		BankDetails: &store.BankDetails{
			BankCode:      req.BankCode,
			AccountNumber: req.AccountNumber,
			AccountName:   resolved.AccountName,
			BankName:      resolved.BankName,
		},
		ExpiresAt: now.Add(e.cfg.ExpiryWindow),
		Meta: map[string]any{
			"balanceAtOrderTime": check.Available,
		},
		CreatedAt: now,
	}

	if err := e.store.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist offramp record: %w", err)
	}
	metrics.OfframpInitializedTotal.WithLabelValues(string(req.Token)).Inc()
	e.events.Publish(events.TopicSwapInitialized, events.SwapEvent{
		Type:          events.TopicSwapInitialized,
		Reference:     reference,
		Direction:     string(store.DirectionOfframp),
		Status:        string(store.StatusPending),
		SenderAddress: req.SenderAddress,
		OccurredAt:    now,
	})

	return &DepositInstructions{
		Transaction:    tx,
		DepositAddress: e.cfg.PlatformAddress,
		ExactAmount:    req.TokenAmount,
		Memo:           reference,
	}, nil
}

// NotifyTxBroadcast records the user-reported chain tx id and spawns the
// per-transaction watcher; it never blocks on chain confirmation.
func (e *Engine) NotifyTxBroadcast(ctx context.Context, reference, chainTxId string) (*store.Transaction, error) {
	tx, err := e.store.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if tx.Status == store.StatusProcessing || tx.Status == store.StatusSettling || tx.Status == store.StatusConfirmed {
		return tx, ErrAlreadyProcessing
	}

	updated, err := e.store.ConditionalUpdate(ctx, reference, store.StatusPending, bson.M{"chainTxId": chainTxId})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Lost a race with the indexer or another notify-tx call between
		// the read above and this write; treat as already-processing.
		return tx, ErrAlreadyProcessing
	}

	if e.watcher != nil {
		e.watcher.Watch(reference, chainTxId)
	}

	return updated, nil
}

type ConfirmReceiptRequest struct {
	Reference     string
	ChainTxId     string
	TokenAmount   float64
	Token         store.Token
	SenderAddress string
}

type ConfirmOutcome int

const (
	OutcomePayoutInitiated ConfirmOutcome = iota
	OutcomeAlreadyProcessed
)

// ConfirmReceipt is called directly by the in-process indexer and watcher,
// and by the internal confirm-receipt HTTP endpoint. The conditional update is the sole
// arbitration point: exactly one caller wins it per reference, and only
// the winner proceeds to call the payout provider.
func (e *Engine) ConfirmReceipt(ctx context.Context, req ConfirmReceiptRequest) (ConfirmOutcome, *store.Transaction, error) {
	updated, err := e.store.ConditionalUpdate(ctx, req.Reference, store.StatusPending, bson.M{
		"status":               store.StatusProcessing,
		"chainTxId":            req.ChainTxId,
		"meta.tokenReceivedAt": time.Now().UTC(),
	})
	if err != nil {
		return 0, nil, err
	}

	if updated == nil {
		existing, err := e.store.FindByReference(ctx, req.Reference)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, nil, ErrNotFound
			}
			return 0, nil, err
		}

		switch existing.Status {
		case store.StatusProcessing, store.StatusSettling, store.StatusConfirmed:
			return OutcomeAlreadyProcessed, existing, nil
		default:
			return 0, nil, fmt.Errorf("%w: record in unexpected status %q", ErrConflict, existing.Status)
		}
	}

	e.checkAmountTolerance(ctx, updated, req.TokenAmount)

	transfer, err := e.payout.InitiateTransfer(ctx, updated.NgnAmount, updated.BankDetails.BankCode, updated.BankDetails.AccountNumber, req.Reference)
	if err != nil {
		e.failAfterReceipt(ctx, req.Reference, updated.NgnAmount, err.Error())
		return 0, nil, fmt.Errorf("payout failed after tokens received: %w", err)
	}
	e.guard.Invalidate()

	settled, err := e.store.ConditionalUpdate(ctx, req.Reference, store.StatusProcessing, bson.M{
		"status":             store.StatusSettling,
		"payoutProviderTxId": transfer.TransferId,
	})
	if err != nil {
		return 0, nil, err
	}
	if settled == nil {
		// Should not happen: this task holds the sole path out of
		// processing. Surfacing it as a manual case is safer than
		// silently discarding the provider transfer id.
		e.reporter.ReportManualSettlement(req.Reference, "settling transition lost its own CAS", map[string]any{
			"payoutProviderTxId": transfer.TransferId,
		})
		return 0, nil, fmt.Errorf("%w: settling transition raced unexpectedly", ErrConflict)
	}

	return OutcomePayoutInitiated, settled, nil
}

// FailPendingTimeout conditionally transitions pending -> failed, used by
// the watcher's poll-timeout/abort paths and the expiry reaper. Records
// already past pending are left untouched, matching the spec's rule that
// a late-arriving signal must never override a transition another task
// already won.
func (e *Engine) FailPendingTimeout(ctx context.Context, reference, reason string) error {
	_, err := e.store.ConditionalUpdate(ctx, reference, store.StatusPending, bson.M{
		"status":             store.StatusFailed,
		"meta.failureReason": reason,
	})
	return err
}

// checkAmountTolerance never silently accepts an under-delivery outside the
// configured tolerance: it logs the mismatch and also flags the record via
// meta.underDeliveryFlagged so the discrepancy is queryable, not just a log
// line. The flag never blocks settlement; it only marks the record for
// downstream review.
func (e *Engine) checkAmountTolerance(ctx context.Context, tx *store.Transaction, delivered float64) {
	toleranceFraction := float64(e.cfg.AmountToleranceBPS) / 10000
	allowed := tx.TokenAmount * toleranceFraction
	if math.Abs(delivered-tx.TokenAmount) <= allowed {
		return
	}

	e.logger.Warn("token amount mismatch on receipt", "reference", tx.Reference, "expected", tx.TokenAmount, "delivered", delivered)

	if _, err := e.store.ConditionalUpdate(ctx, tx.Reference, store.StatusProcessing, bson.M{
		"meta.underDeliveryFlagged": true,
	}); err != nil {
		e.logger.Error("failed to persist under-delivery flag", "reference", tx.Reference, "error", err.Error())
	}
}

func (e *Engine) failAfterReceipt(ctx context.Context, reference string, ngnAmount int64, reason string) {
	_, err := e.store.ConditionalUpdate(ctx, reference, store.StatusProcessing, bson.M{
		"status":                          store.StatusFailed,
		"meta.requiresManualSettlement":   true,
		"meta.failureReason":              reason,
	})
	if err != nil {
		e.logger.Error("failed to record failed-after-receipt transition", "reference", reference, "error", err.Error())
	}
	metrics.OfframpFailedTotal.WithLabelValues("payout_after_receipt").Inc()
	metrics.ManualSettlementTotal.Inc()
	e.reporter.ReportManualSettlement(reference, reason, map[string]any{
		"stage":        "payout_after_receipt",
		"NgnAmountRaw": ngnAmount,
	})
	e.events.Publish(events.TopicManualSettlement, events.SwapEvent{
		Type:       events.TopicManualSettlement,
		Reference:  reference,
		Direction:  string(store.DirectionOfframp),
		Status:     string(store.StatusFailed),
		Reason:     reason,
		AmountNGN:  ngnAmount,
		OccurredAt: time.Now().UTC(),
	})
}

// HandlePayoutWebhook verifies the signature against the raw body and
// finalizes settling -> confirmed|failed.
func (e *Engine) HandlePayoutWebhook(ctx context.Context, rawBody []byte, signature string, event WebhookEvent) error {
	if !e.payout.VerifyWebhookSignature(rawBody, signature) {
		return fmt.Errorf("%w: invalid webhook signature", ErrValidation)
	}

	switch event.Type {
	case "transfer.completed":
		now := time.Now().UTC()
		mutation := bson.M{
			"status":      store.StatusConfirmed,
			"confirmedAt": now,
		}
		if event.ID != "" {
			mutation["meta.lastWebhookEventId"] = event.ID
		}
		updated, err := e.store.ConditionalUpdate(ctx, event.Reference, store.StatusSettling, mutation)
		if err == nil && updated != nil {
			metrics.OfframpConfirmedTotal.WithLabelValues(string(updated.Token)).Inc()
			e.events.Publish(events.TopicSwapConfirmed, events.SwapEvent{
				Type:          events.TopicSwapConfirmed,
				Reference:     updated.Reference,
				Direction:     string(store.DirectionOfframp),
				Status:        string(store.StatusConfirmed),
				SenderAddress: updated.SenderAddress,
				OccurredAt:    now,
			})
		}
		return err

	case "transfer.failed", "transfer.reversed":
		mutation := bson.M{
			"status":             store.StatusFailed,
			"meta.failureReason": event.Reason,
		}
		if event.ID != "" {
			mutation["meta.lastWebhookEventId"] = event.ID
		}
		updated, err := e.store.ConditionalUpdate(ctx, event.Reference, store.StatusSettling, mutation)
		if err != nil {
			return err
		}
		if updated != nil {
			metrics.OfframpFailedTotal.WithLabelValues("payout_webhook").Inc()
			metrics.ManualSettlementTotal.Inc()
			e.reporter.ReportManualSettlement(event.Reference, event.Reason, map[string]any{
				"stage":         "refund_required",
				"senderAddress": updated.SenderAddress,
				"tokenAmount":   updated.TokenAmount,
				"token":         updated.Token,
				"NgnAmountRaw":  updated.NgnAmount,
			})
			e.events.Publish(events.TopicManualSettlement, events.SwapEvent{
				Type:          events.TopicManualSettlement,
				Reference:     updated.Reference,
				Direction:     string(store.DirectionOfframp),
				Status:        string(store.StatusFailed),
				Reason:        event.Reason,
				SenderAddress: updated.SenderAddress,
				AmountNGN:     updated.NgnAmount,
				OccurredAt:    time.Now().UTC(),
			})
		}
		return nil

	default:
		return nil
	}
}

type WebhookEvent struct {
	Type      string
	Reference string
	Reason    string
	ID        string
}

func generateReference(direction string) string {
	ts36 := strconv.FormatInt(time.Now().UnixMilli(), 36)

	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	rand8hex := hex.EncodeToString(buf)

	return fmt.Sprintf("SSWAP_%s_%s_%s", strings.ToUpper(direction), ts36, rand8hex)
}
