package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/naijaswap/bridge/internal/context"
	"github.com/naijaswap/bridge/internal/request"
	"github.com/naijaswap/bridge/internal/response"
	"github.com/naijaswap/bridge/internal/settlement"
	"github.com/naijaswap/bridge/internal/store"
	"github.com/naijaswap/bridge/internal/validator"
)

var accountNumberRegex = regexp.MustCompile(`^\d{10}$`)

func unmarshalWebhook(rawBody []byte, dst any) error {
	return json.Unmarshal(rawBody, dst)
}

func (h *RouteHandler) HandleListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.Payout.ListBanks(r.Context())
	if err != nil {
		h.ErrHandler.UpstreamUnavailable(w, r, http.StatusBadGateway, "")
		return
	}

	if err := response.JSONOkResponse(w, banks, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleGetOfframpRate(w http.ResponseWriter, r *http.Request) {
	token := store.Token(r.URL.Query().Get("token"))
	amountStr := r.URL.Query().Get("tokenAmount")

	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil || amount <= 0 {
		h.ErrHandler.BadRequest(w, r, fmt.Errorf("tokenAmount must be a positive number"))
		return
	}

	snap := h.Oracle.GetCurrent(r.Context())
	rate := snap.RateFor(token)
	if rate == 0 {
		h.ErrHandler.BadRequest(w, r, fmt.Errorf("unsupported token %q", token))
		return
	}

	gross := amount * rate

	data := map[string]any{
		"token":       token,
		"tokenAmount": amount,
		"rate":        rate,
		"grossNGN":    gross,
		"fromCache":   snap.FromCache,
	}

	if err := response.JSONOkResponse(w, data, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleGetLiquidity(w http.ResponseWriter, r *http.Request) {
	available, maxOrderNGN := h.Liquidity.GetMaxOrderNGN(r.Context())

	data := map[string]any{
		"available":    available,
		"maxOrderNGN":  maxOrderNGN,
	}

	if err := response.JSONOkResponse(w, data, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

type verifyAccountRequest struct {
	BankCode      string `json:"bankCode"`
	AccountNumber string `json:"accountNumber"`
}

func (h *RouteHandler) HandleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	var req verifyAccountRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	v := &validator.Validator{}
	v.Check(validator.NotBlank(req.BankCode), "bankCode is required")
	v.Check(validator.Matches(req.AccountNumber, accountNumberRegex), "accountNumber must be 10 digits")
	if v.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, v)
		return
	}

	resolved, err := h.Payout.ResolveAccount(r.Context(), req.BankCode, req.AccountNumber)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, fmt.Errorf("could not verify account: %w", err))
		return
	}

	if err := response.JSONOkResponse(w, resolved, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

type initOfframpRequest struct {
	Token         string  `json:"token"`
	TokenAmount   float64 `json:"tokenAmount"`
	SenderAddress string  `json:"senderAddress"`
	BankCode      string  `json:"bankCode"`
	AccountNumber string  `json:"accountNumber"`
}

func (h *RouteHandler) HandleInitializeOfframp(w http.ResponseWriter, r *http.Request) {
	var req initOfframpRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	instructions, err := h.Settlement.InitializeOfframp(r.Context(), settlement.InitOfframpRequest{
		Token:         store.Token(req.Token),
		TokenAmount:   req.TokenAmount,
		SenderAddress: req.SenderAddress,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
	})

	switch {
	case err == nil:
		data := map[string]any{
			"transaction":    instructions.Transaction,
			"depositAddress": instructions.DepositAddress,
			"exactAmount":    instructions.ExactAmount,
			"memo":           instructions.Memo,
		}
		if err := response.JSONCreatedResponse(w, data, "Offramp initialized"); err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}

	case errors.Is(err, settlement.ErrValidation):
		h.ErrHandler.BadRequest(w, r, err)

	case errors.Is(err, settlement.ErrInsufficientLiquid):
		_, maxOrderNGN := h.Liquidity.GetMaxOrderNGN(r.Context())
		h.ErrHandler.InsufficientLiquidity(w, r, &maxOrderNGN)

	case errors.Is(err, settlement.ErrLiquidityUnknown):
		h.ErrHandler.UpstreamUnavailable(w, r, http.StatusServiceUnavailable, "Liquidity could not be determined")

	case errors.Is(err, settlement.ErrNoDepositAddress):
		h.ErrHandler.ConfigMissing(w, r, "platform deposit address")

	default:
		h.ErrHandler.ServerError(w, r, err)
	}
}

type notifyTxRequest struct {
	Reference string `json:"reference"`
	ChainTxId string `json:"chainTxId"`
}

func (h *RouteHandler) HandleNotifyTx(w http.ResponseWriter, r *http.Request) {
	var req notifyTxRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	tx, err := h.Settlement.NotifyTxBroadcast(r.Context(), req.Reference, req.ChainTxId)

	switch {
	case err == nil:
		if err := response.JSONOkResponse(w, tx, "Watching for confirmation", nil); err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}

	case errors.Is(err, settlement.ErrAlreadyProcessing):
		if err := response.JSONOkResponse(w, tx, "already processing", nil); err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}

	case errors.Is(err, settlement.ErrNotFound):
		h.ErrHandler.NotFound(w, r)

	default:
		h.ErrHandler.ServerError(w, r, err)
	}
}

type confirmReceiptRequest struct {
	Reference     string  `json:"reference"`
	ChainTxId     string  `json:"chainTxId"`
	TokenAmount   float64 `json:"tokenAmount"`
	Token         string  `json:"token"`
	SenderAddress string  `json:"senderAddress"`
}

// HandleConfirmReceipt is gated by InternalKeyAuth middleware and is the
// channel the chain indexer uses when running as a separate process; the
// in-process indexer in this binary calls the engine directly instead.
func (h *RouteHandler) HandleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	if !context.ContextIsInternalCaller(r) {
		h.ErrHandler.AuthenticationRequired(w, r)
		return
	}

	var req confirmReceiptRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	outcome, tx, err := h.Settlement.ConfirmReceipt(r.Context(), settlement.ConfirmReceiptRequest{
		Reference:     req.Reference,
		ChainTxId:     req.ChainTxId,
		TokenAmount:   req.TokenAmount,
		Token:         store.Token(req.Token),
		SenderAddress: req.SenderAddress,
	})

	switch {
	case err == nil && outcome == settlement.OutcomePayoutInitiated:
		_ = response.JSONOkResponse(w, tx, "payout initiated", nil)

	case err == nil:
		_ = response.JSONOkResponse(w, tx, "already processed", nil)

	case errors.Is(err, settlement.ErrNotFound):
		h.ErrHandler.NotFound(w, r)

	case errors.Is(err, settlement.ErrConflict):
		h.ErrHandler.Conflict(w, r, err.Error())

	default:
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleLencoWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Id        string `json:"id"`
			Reference string `json:"reference"`
			Reason    string `json:"reason"`
		} `json:"data"`
	}
	if err := unmarshalWebhook(rawBody, &payload); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	signature := r.Header.Get("x-lenco-signature")

	err = h.Settlement.HandlePayoutWebhook(r.Context(), rawBody, signature, settlement.WebhookEvent{
		Type:      payload.Event,
		Reference: payload.Data.Reference,
		Reason:    payload.Data.Reason,
		ID:        payload.Data.Id,
	})

	if errors.Is(err, settlement.ErrValidation) {
		h.ErrHandler.InvalidAuthenticationToken(w, r)
		return
	}
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	_ = response.JSONOkResponse(w, nil, "acknowledged", nil)
}

func (h *RouteHandler) HandleGetOfframpStatus(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")

	tx, err := h.Store.FindByReference(r.Context(), reference)
	if errors.Is(err, store.ErrNotFound) {
		h.ErrHandler.NotFound(w, r)
		return
	}
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err := response.JSONOkResponse(w, tx, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		h.ErrHandler.BadRequest(w, r, fmt.Errorf("address is required"))
		return
	}

	qs := retrieveUrlQueryValues(r)
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed >= 1 {
			page = parsed
		}
	}

	filters := store.HistoryFilters{
		Status: store.Status(r.URL.Query().Get("status")),
		Token:  store.Token(r.URL.Query().Get("token")),
	}

	results, err := h.Store.FindByAddress(r.Context(), address, filters, int64(page), int64(qs.Limit))
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	total, err := h.Store.CountByAddress(r.Context(), address, filters)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := map[string]any{
		"results": results,
		"total":   total,
		"page":    page,
		"limit":   qs.Limit,
	}

	if err := response.JSONOkResponse(w, data, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
