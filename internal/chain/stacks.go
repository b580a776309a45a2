// Package chain reads transaction status and decoded transfer events from
// the Stacks REST API. It has no signing capability: the platform private
// key is only ever loaded by internal/signer, which offramp code must
// never import.
package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type TxStatus string

const (
	StatusSuccess               TxStatus = "success"
	StatusPending               TxStatus = "pending"
	StatusAbortByResponse       TxStatus = "abort_by_response"
	StatusAbortByPostCondition  TxStatus = "abort_by_post_condition"
	StatusDroppedReplaceByFee   TxStatus = "dropped_replace_by_fee"
	StatusDroppedTooExpensive   TxStatus = "dropped_too_expensive"
)

func (s TxStatus) IsDropped() bool {
	return strings.HasPrefix(string(s), "dropped_")
}

func (s TxStatus) IsAbort() bool {
	return strings.HasPrefix(string(s), "abort_")
}

type NativeTransfer struct {
	Recipient string
	Amount    uint64
	Memo      string
}

type FungibleTokenEvent struct {
	AssetID   string
	Amount    uint64
	Recipient string
}

type ContractCall struct {
	FunctionName string
	Args         []string
	Events       []FungibleTokenEvent
}

type Tx struct {
	TxId           string
	Status         TxStatus
	BlockHeight    *int64
	SenderAddress  string
	NativeTransfer *NativeTransfer
	ContractCall   *ContractCall
}

type NotFoundError struct{ TxId string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("transaction %s not found", e.TxId) }

type Config struct {
	APIURL string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: 12 * time.Second}}
}

// GetAddressTransactions returns recent transactions involving address,
// most-recent first, used by the indexer's poll cycle.
func (c *Client) GetAddressTransactions(ctx context.Context, address string, limit, offset int) ([]Tx, error) {
	url := fmt.Sprintf("%s/extended/v1/address/%s/transactions?limit=%d&offset=%d", c.cfg.APIURL, address, limit, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain API returned %d for %s", resp.StatusCode, address)
	}

	var raw addressTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode address transactions: %w", err)
	}

	txs := make([]Tx, 0, len(raw.Results))
	for _, r := range raw.Results {
		txs = append(txs, r.toTx())
	}
	return txs, nil
}

// GetTxById inspects the status and events of a specific transaction.
func (c *Client) GetTxById(ctx context.Context, txId string) (*Tx, error) {
	url := fmt.Sprintf("%s/extended/v1/tx/%s", c.cfg.APIURL, txId)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{TxId: txId}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain API returned %d for tx %s", resp.StatusCode, txId)
	}

	var raw rawTx
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}

	tx := raw.toTx()
	return &tx, nil
}

// SumTransferAmountTo sums SIP-010 fungible_token_asset event amounts in a
// contract-call transaction destined for recipient, scaled from 6-decimal
// on-chain subunits to whole tokens.
func SumTransferAmountTo(call *ContractCall, recipient, usdcContractPrefix string) float64 {
	if call == nil {
		return 0
	}
	var total uint64
	for _, ev := range call.Events {
		if ev.Recipient != recipient {
			continue
		}
		if !strings.HasPrefix(ev.AssetID, usdcContractPrefix) {
			continue
		}
		total += ev.Amount
	}
	return float64(total) / 1_000_000
}

// DecodeMemo strips the 34-byte null padding a chain memo carries and
// returns the UTF-8 reference string it encodes.
func DecodeMemo(hexMemo string) string {
	hexMemo = strings.TrimPrefix(hexMemo, "0x")
	raw, err := hex.DecodeString(hexMemo)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(raw), "\x00")
}

// --- wire decoding ---

type addressTxResponse struct {
	Results []rawTx `json:"results"`
}

type rawTx struct {
	TxId          string  `json:"tx_id"`
	TxStatus      string  `json:"tx_status"`
	TxType        string  `json:"tx_type"`
	SenderAddress string  `json:"sender_address"`
	BlockHeight   *int64  `json:"block_height"`

	TokenTransfer *struct {
		RecipientAddress string `json:"recipient_address"`
		Amount           string `json:"amount"`
		Memo             string `json:"memo_hex"`
	} `json:"token_transfer,omitempty"`

	ContractCall *struct {
		FunctionName string `json:"function_name"`
		FunctionArgs []struct {
			Hex string `json:"hex"`
		} `json:"function_args"`
	} `json:"contract_call,omitempty"`

	Events []struct {
		EventType    string `json:"event_type"`
		Asset        struct {
			AssetID   string `json:"asset_id"`
			Recipient string `json:"recipient"`
			Amount    string `json:"amount"`
		} `json:"asset"`
	} `json:"events"`
}

func (r rawTx) toTx() Tx {
	tx := Tx{
		TxId:          r.TxId,
		Status:        TxStatus(r.TxStatus),
		SenderAddress: r.SenderAddress,
		BlockHeight:   r.BlockHeight,
	}

	if r.TxType == "token_transfer" && r.TokenTransfer != nil {
		amount, _ := strconv.ParseUint(r.TokenTransfer.Amount, 10, 64)
		tx.NativeTransfer = &NativeTransfer{
			Recipient: r.TokenTransfer.RecipientAddress,
			Amount:    amount,
			Memo:      DecodeMemo(r.TokenTransfer.Memo),
		}
	}

	if r.TxType == "contract_call" && r.ContractCall != nil {
		args := make([]string, 0, len(r.ContractCall.FunctionArgs))
		for _, a := range r.ContractCall.FunctionArgs {
			args = append(args, a.Hex)
		}

		events := make([]FungibleTokenEvent, 0)
		for _, ev := range r.Events {
			if ev.EventType != "fungible_token_asset" {
				continue
			}
			amount, _ := strconv.ParseUint(ev.Asset.Amount, 10, 64)
			events = append(events, FungibleTokenEvent{
				AssetID:   ev.Asset.AssetID,
				Amount:    amount,
				Recipient: ev.Asset.Recipient,
			})
		}

		tx.ContractCall = &ContractCall{
			FunctionName: r.ContractCall.FunctionName,
			Args:         args,
			Events:       events,
		}
	}

	return tx
}
