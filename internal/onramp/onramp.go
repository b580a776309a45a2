// Package onramp is the symmetric fiat->crypto direction: a payment
// provider webhook confirms an NGN payment, and the platform signs and
// broadcasts the corresponding token transfer to the user's wallet.
package onramp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/naijaswap/bridge/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrValidation marks a webhook that failed its signature check rather
// than a downstream failure, mirroring settlement.ErrValidation.
var ErrValidation = errors.New("validation failed")

var addressPattern = regexp.MustCompile(`^(SP|SM|ST)[0-9A-Z]{20,50}$`)

type Signer interface {
	SendNative(ctx context.Context, to string, amount float64, memo string) (string, error)
	SendSIP010(ctx context.Context, contract, to string, amount float64, memo string) (string, error)
}

type Store interface {
	Create(ctx context.Context, tx *store.Transaction) error
	FindByReference(ctx context.Context, reference string) (*store.Transaction, error)
	ConditionalUpdate(ctx context.Context, reference string, requiredStatus store.Status, mutation bson.M) (*store.Transaction, error)
}

type Config struct {
	PlatformAddress  string
	USDCContractAddr string
	USDCContractName string
	FlatFeeNGN       int64
	WebhookSecret    string
}

type PriceSourceFunc func(ctx context.Context) (rateFor func(token store.Token) float64)

type Engine struct {
	store  Store
	oracle PriceSourceFunc
	signer Signer
	cfg    Config
	logger *slog.Logger
}

func New(st Store, oracleFn PriceSourceFunc, signer Signer, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{store: st, oracle: oracleFn, signer: signer, cfg: cfg, logger: logger}
}

type InitOnrampRequest struct {
	Token             store.Token
	NgnAmount         int64
	RecipientAddress  string
}

// ValidateRecipientAddress reports whether address matches the chain's
// wallet-address shape, the onramp-side equivalent of offramp's bank
// account verification.
func ValidateRecipientAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// Quote computes the net token amount a given NGN payment would buy,
// shared by HandleGetOnrampRate and InitializeOnramp so the quote a caller
// previews is exactly the quote that gets persisted.
func (e *Engine) Quote(ctx context.Context, token store.Token, ngnAmount int64) (tokenAmount, rate float64, err error) {
	if token != store.TokenSTX && token != store.TokenUSDC {
		return 0, 0, fmt.Errorf("unsupported token %q", token)
	}
	if ngnAmount <= e.cfg.FlatFeeNGN {
		return 0, 0, fmt.Errorf("ngnAmount must exceed the flat fee")
	}

	rateFor := e.oracle(ctx)
	rate = rateFor(token)
	if rate <= 0 {
		return 0, 0, fmt.Errorf("no rate available for %s", token)
	}

	netNGN := float64(ngnAmount - e.cfg.FlatFeeNGN)
	tokenAmount = math.Floor((netNGN/rate)*1_000_000) / 1_000_000
	return tokenAmount, rate, nil
}

// InitializeOnramp records a pending onramp so its reference can be
// handed to the payment provider as the checkout reference; the actual
// NGN debit and token send happen once the provider's webhook fires.
func (e *Engine) InitializeOnramp(ctx context.Context, req InitOnrampRequest) (*store.Transaction, error) {
	if !ValidateRecipientAddress(req.RecipientAddress) {
		return nil, fmt.Errorf("invalid recipient address")
	}

	tokenAmount, rate, err := e.Quote(ctx, req.Token, req.NgnAmount)
	if err != nil {
		return nil, err
	}

	reference := generateReference("ONRAMP")
	now := time.Now().UTC()

	tx := &store.Transaction{
		Reference:        reference,
		Token:            req.Token,
		Direction:        store.DirectionOnramp,
		TokenAmount:      tokenAmount,
		NgnAmount:        req.NgnAmount,
		FeeNGN:           e.cfg.FlatFeeNGN,
		RateAtTime:       rate,
		SenderAddress:    e.cfg.PlatformAddress,
		RecipientAddress: req.RecipientAddress,
		Status:           store.StatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(30 * time.Minute),
	}

	if err := e.store.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist onramp record: %w", err)
	}

	return tx, nil
}

// VerifyWebhookSignature HMACs the raw request body with the configured
// Monnify secret, mirroring payout.Client.VerifyWebhookSignature.
func (e *Engine) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	if e.cfg.WebhookSecret == "" || signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(e.cfg.WebhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// HandlePaymentWebhook is invoked once the payment provider confirms the
// NGN debit; it wins a CAS out of pending, sends the tokens, and moves the
// record straight to confirmed (there is no third-party payout leg to
// wait on in this direction).
func (e *Engine) HandlePaymentWebhook(ctx context.Context, rawBody []byte, signature, reference string) error {
	if !e.VerifyWebhookSignature(rawBody, signature) {
		return fmt.Errorf("%w: invalid webhook signature", ErrValidation)
	}

	tx, err := e.store.ConditionalUpdate(ctx, reference, store.StatusPending, bson.M{
		"status": store.StatusProcessing,
	})
	if err != nil {
		return err
	}
	if tx == nil {
		return nil // already processed; idempotent no-op
	}

	var chainTxId string
	var sendErr error

	switch tx.Token {
	case store.TokenSTX:
		chainTxId, sendErr = e.signer.SendNative(ctx, tx.RecipientAddress, tx.TokenAmount, reference)
	case store.TokenUSDC:
		contract := e.cfg.USDCContractAddr + "." + e.cfg.USDCContractName
		chainTxId, sendErr = e.signer.SendSIP010(ctx, contract, tx.RecipientAddress, tx.TokenAmount, reference)
	}

	if sendErr != nil {
		_, _ = e.store.ConditionalUpdate(ctx, reference, store.StatusProcessing, bson.M{
			"status":             store.StatusFailed,
			"meta.failureReason": sendErr.Error(),
		})
		e.logger.Error("onramp: token send failed after payment confirmed", "reference", reference, "error", sendErr.Error())
		return sendErr
	}

	now := time.Now().UTC()
	_, err = e.store.ConditionalUpdate(ctx, reference, store.StatusProcessing, bson.M{
		"status":      store.StatusConfirmed,
		"chainTxId":   chainTxId,
		"confirmedAt": now,
	})
	return err
}

func generateReference(direction string) string {
	ts36 := strconv.FormatInt(time.Now().UnixMilli(), 36)

	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	rand8hex := hex.EncodeToString(buf)

	return fmt.Sprintf("SSWAP_%s_%s_%s", strings.ToUpper(direction), ts36, rand8hex)
}
