package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/naijaswap/bridge/internal/onramp"
	"github.com/naijaswap/bridge/internal/request"
	"github.com/naijaswap/bridge/internal/response"
	"github.com/naijaswap/bridge/internal/store"
	"github.com/naijaswap/bridge/internal/validator"
)

type initOnrampRequest struct {
	Token            string `json:"token"`
	NgnAmount        int64  `json:"ngnAmount"`
	RecipientAddress string `json:"recipientAddress"`
}

// HandleGetOnrampRate is the onramp-side counterpart of
// HandleGetOfframpRate: it previews the token amount a given NGN payment
// would buy without persisting anything.
func (h *RouteHandler) HandleGetOnrampRate(w http.ResponseWriter, r *http.Request) {
	token := store.Token(r.URL.Query().Get("token"))
	ngnAmountStr := r.URL.Query().Get("ngnAmount")

	ngnAmount, err := strconv.ParseInt(ngnAmountStr, 10, 64)
	if err != nil || ngnAmount <= 0 {
		h.ErrHandler.BadRequest(w, r, fmt.Errorf("ngnAmount must be a positive integer"))
		return
	}

	tokenAmount, rate, err := h.Onramp.Quote(r.Context(), token, ngnAmount)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	data := map[string]any{
		"token":       token,
		"ngnAmount":   ngnAmount,
		"rate":        rate,
		"tokenAmount": tokenAmount,
	}

	if err := response.JSONOkResponse(w, data, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

type verifyOnrampAddressRequest struct {
	RecipientAddress string `json:"recipientAddress"`
}

// HandleVerifyOnrampAddress is the onramp-side counterpart of
// HandleVerifyAccount: there is no bank account to resolve, so this
// validates the recipient wallet address shape up front instead of
// failing only once InitializeOnramp is called.
func (h *RouteHandler) HandleVerifyOnrampAddress(w http.ResponseWriter, r *http.Request) {
	var req verifyOnrampAddressRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	v := &validator.Validator{}
	v.Check(validator.NotBlank(req.RecipientAddress), "recipientAddress is required")
	if v.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, v)
		return
	}

	if !onramp.ValidateRecipientAddress(req.RecipientAddress) {
		h.ErrHandler.BadRequest(w, r, fmt.Errorf("invalid recipient address"))
		return
	}

	if err := response.JSONOkResponse(w, map[string]any{"valid": true}, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleGetOnrampHistory is the onramp-side counterpart of
// HandleGetHistory, scoped to direction=onramp.
func (h *RouteHandler) HandleGetOnrampHistory(w http.ResponseWriter, r *http.Request) {
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
		Direction: store.DirectionOnramp,
		Status:    store.Status(r.URL.Query().Get("status")),
		Token:     store.Token(r.URL.Query().Get("token")),
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

func (h *RouteHandler) HandleInitializeOnramp(w http.ResponseWriter, r *http.Request) {
	var req initOnrampRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	tx, err := h.Onramp.InitializeOnramp(r.Context(), onramp.InitOnrampRequest{
		Token:            store.Token(req.Token),
		NgnAmount:        req.NgnAmount,
		RecipientAddress: req.RecipientAddress,
	})
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	if err := response.JSONCreatedResponse(w, tx, "Onramp initialized"); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleMonnifyWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	var payload struct {
		EventType string `json:"eventType"`
		EventData struct {
			PaymentReference string `json:"paymentReference"`
			PaymentStatus    string `json:"paymentStatus"`
		} `json:"eventData"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	if payload.EventData.PaymentStatus != "PAID" {
		_ = response.JSONOkResponse(w, nil, "ignored", nil)
		return
	}

	signature := r.Header.Get("x-monnify-signature")

	err = h.Onramp.HandlePaymentWebhook(r.Context(), rawBody, signature, payload.EventData.PaymentReference)
	if errors.Is(err, onramp.ErrValidation) {
		h.ErrHandler.InvalidAuthenticationToken(w, r)
		return
	}
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	_ = response.JSONOkResponse(w, nil, "acknowledged", nil)
}

func (h *RouteHandler) HandleGetOnrampStatus(w http.ResponseWriter, r *http.Request) {
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
