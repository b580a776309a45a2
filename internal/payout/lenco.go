// Package payout is a thin client over the bank-payout provider's HTTP API:
// account resolution, transfer initiation, balance, and webhook signature
// verification.
package payout

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

var (
	ErrBankVerificationFailed = errors.New("bank verification failed")
	ErrPayoutFailed           = errors.New("payout failed")
)

// fintechFirst lists bank codes that should sort ahead of the rest of the
// alphabetically-sorted bank list, matching what users search for first.
var fintechFirst = []string{"090267", "090405", "100004", "090110"}

const (
	banksCacheTTL   = 24 * time.Hour
	balanceCacheTTL = 30 * time.Second
)

type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type ResolvedAccount struct {
	AccountName string `json:"accountName"`
	BankName    string `json:"bankName"`
}

type TransferResult struct {
	TransferId        string `json:"transferId"`
	ProviderReference string `json:"providerReference"`
	Status            string `json:"status"`
}

type Config struct {
	BaseURL       string
	APIKey        string
	AccountID     string
	WebhookSecret string
}

// DistCache lets the bank-list cache survive process restarts and be
// shared across replicas instead of every instance paying its own 24h
// cold-cache cost, the same role internal/cache plays for the liquidity
// guard's balance view.
type DistCache interface {
	Get(key string) (string, error)
	Set(key string, value string, expiration time.Duration) error
	Delete(key string) error
}

const banksDistCacheKey = "payout:banks"

type Client struct {
	cfg  Config
	http *http.Client
	dist DistCache

	mu           sync.Mutex
	banksCache   []Bank
	banksAt      time.Time
	balanceNGN   int64
	balanceAt    time.Time
	balanceKnown bool
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithDistCache attaches a shared cache consulted before the in-process
// bank-list cache falls through to the provider API. Optional: a Client
// with no dist cache just keeps the 24h in-process cache to itself.
func (c *Client) WithDistCache(dist DistCache) *Client {
	c.dist = dist
	return c
}

func (c *Client) request(ctx context.Context, method, path string, body any, timeout time.Duration) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	// Network-level failures are retried up to twice; 4xx/5xx from the
	// provider are returned as-is for the caller to classify.
	var resp *http.Response
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err = c.http.Do(req)
		if err == nil {
			return resp, nil
		}
		if attempt < 3 {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
	}
	return nil, fmt.Errorf("payout provider unreachable: %w", err)
}

// ResolveAccount looks up the account name for a bank code/account number
// pair. Any 4xx or malformed body is a bank verification failure.
func (c *Client) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*ResolvedAccount, error) {
	path := fmt.Sprintf("/accounts/resolve?bank_code=%s&account_number=%s", bankCode, accountNumber)

	resp, err := c.request(ctx, http.MethodGet, path, nil, 15*time.Second)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, ErrBankVerificationFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrBankVerificationFailed, resp.StatusCode)
	}

	var out struct {
		Data struct {
			AccountName string `json:"accountName"`
			BankName    string `json:"bankName"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBankVerificationFailed, err)
	}
	if out.Data.AccountName == "" {
		return nil, ErrBankVerificationFailed
	}

	return &ResolvedAccount{AccountName: out.Data.AccountName, BankName: out.Data.BankName}, nil
}

// ListBanks returns the supported bank list, sorted with fintech banks
// first, cached for 24h so repeated calls within the window are stable.
func (c *Client) ListBanks(ctx context.Context) ([]Bank, error) {
	c.mu.Lock()
	if c.banksCache != nil && time.Since(c.banksAt) < banksCacheTTL {
		cached := c.banksCache
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	if c.dist != nil {
		if raw, err := c.dist.Get(banksDistCacheKey); err == nil {
			var banks []Bank
			if jsonErr := json.Unmarshal([]byte(raw), &banks); jsonErr == nil {
				c.mu.Lock()
				c.banksCache = banks
				c.banksAt = time.Now()
				c.mu.Unlock()
				return banks, nil
			}
		}
	}

	resp, err := c.request(ctx, http.MethodGet, "/banks", nil, 15*time.Second)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list banks: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Data []Bank `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	sortBanksFintechFirst(out.Data)

	c.mu.Lock()
	c.banksCache = out.Data
	c.banksAt = time.Now()
	c.mu.Unlock()

	if c.dist != nil {
		if raw, err := json.Marshal(out.Data); err == nil {
			_ = c.dist.Set(banksDistCacheKey, string(raw), banksCacheTTL)
		}
	}

	return out.Data, nil
}

func sortBanksFintechFirst(banks []Bank) {
	priority := make(map[string]int, len(fintechFirst))
	for i, code := range fintechFirst {
		priority[code] = i
	}

	slices.SortStableFunc(banks, func(a, b Bank) int {
		pa, aok := priority[a.Code]
		pb, bok := priority[b.Code]
		switch {
		case aok && bok:
			return pa - pb
		case aok:
			return -1
		case bok:
			return 1
		default:
			return strings.Compare(a.Name, b.Name)
		}
	})
}

// InitiateTransfer posts a payout using reference as the provider-side
// idempotency key, so a retried call never double-pays.
func (c *Client) InitiateTransfer(ctx context.Context, amountNGN int64, bankCode, accountNumber, reference string) (*TransferResult, error) {
	body := map[string]any{
		"accountId":       c.cfg.AccountID,
		"amount":          fmt.Sprintf("%d", amountNGN),
		"bankCode":        bankCode,
		"accountNumber":   accountNumber,
		"reference":       reference,
		"idempotencyKey":  reference,
		"narration":       "Payout for " + reference,
	}

	resp, err := c.request(ctx, http.MethodPost, "/transfers", body, 30*time.Second)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &errBody)
		msg := errBody.Message
		if msg == "" {
			msg = string(raw)
		}
		return nil, fmt.Errorf("%w: %s", ErrPayoutFailed, msg)
	}

	c.invalidateBalance()

	var out struct {
		Data struct {
			TransferId        string `json:"transferId"`
			ProviderReference string `json:"providerReference"`
			Status            string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}

	return &TransferResult{
		TransferId:        out.Data.TransferId,
		ProviderReference: out.Data.ProviderReference,
		Status:            out.Data.Status,
	}, nil
}

// GetAccountBalance returns the platform float in NGN, converting from the
// provider's kobo minor units, with a short cache. ok=false means the
// balance could not be determined (distinct from a zero balance).
func (c *Client) GetAccountBalance(ctx context.Context) (balance int64, ok bool) {
	c.mu.Lock()
	if c.balanceKnown && time.Since(c.balanceAt) < balanceCacheTTL {
		balance, ok = c.balanceNGN, true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	resp, err := c.request(ctx, http.MethodGet, "/accounts/"+c.cfg.AccountID+"/balance", nil, 10*time.Second)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var out struct {
		Data struct {
			AvailableBalanceKobo int64 `json:"availableBalance"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, false
	}

	ngn := out.Data.AvailableBalanceKobo / 100

	c.mu.Lock()
	c.balanceNGN = ngn
	c.balanceAt = time.Now()
	c.balanceKnown = true
	c.mu.Unlock()

	return ngn, true
}

func (c *Client) invalidateBalance() {
	c.mu.Lock()
	c.balanceKnown = false
	c.mu.Unlock()
}

// VerifyWebhookSignature HMACs the raw request body (never a
// re-serialization, which would drift from what the provider actually
// signed) and compares in constant time.
func (c *Client) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	if c.cfg.WebhookSecret == "" || signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
