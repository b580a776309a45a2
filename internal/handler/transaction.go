package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/naijaswap/bridge/internal/request"
	"github.com/naijaswap/bridge/internal/response"
	"github.com/naijaswap/bridge/internal/store"
	"github.com/naijaswap/bridge/internal/validator"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// HandleListTransactions serves the generic CRUD surface over the swap
// record model, filtered by direction/status/token and paged.
func (h *RouteHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		h.ErrHandler.BadRequest(w, r, fmt.Errorf("address is required"))
		return
	}

	qs := retrieveUrlQueryValues(r)

	filters := store.HistoryFilters{
		Direction: store.Direction(r.URL.Query().Get("direction")),
		Status:    store.Status(r.URL.Query().Get("status")),
		Token:     store.Token(r.URL.Query().Get("token")),
	}

	page := qs.Offset/max(qs.Limit, 1) + 1

	results, err := h.Store.FindByAddress(r.Context(), address, filters, int64(page), int64(qs.Limit))
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err := response.JSONOkResponse(w, results, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	tx, err := h.Store.FindById(r.Context(), id)
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

type patchTransactionStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// HandlePatchTransactionStatus lets an operator manually resolve a
// transaction flagged with meta.requiresManualSettlement, moving it to a
// terminal state without disturbing the CAS invariants other callers rely
// on: a manual patch is only ever allowed out of failed, and only ever
// lands on confirmed — the operator is attesting that the payout or
// refund was completed out-of-band. The transition itself still goes
// through ConditionalUpdate so a concurrent automated transition always
// wins the race, and the override is recorded in the audit log.
func (h *RouteHandler) HandlePatchTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req patchTransactionStatusRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	v := &validator.Validator{}
	v.Check(validator.NotBlank(req.Status), "status is required")
	v.Check(validator.NotBlank(req.Reason), "reason is required")
	if v.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, v)
		return
	}

	if store.Status(req.Status) != store.StatusConfirmed {
		h.ErrHandler.BadRequest(w, r, fmt.Errorf("manual status changes may only target %q", store.StatusConfirmed))
		return
	}

	tx, err := h.Store.FindById(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.ErrHandler.NotFound(w, r)
		return
	}
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if tx.Status != store.StatusFailed {
		h.ErrHandler.Conflict(w, r, "manual status changes are only allowed from failed")
		return
	}

	updated, err := h.Store.ConditionalUpdate(r.Context(), tx.Reference, store.StatusFailed, bson.M{
		"status":                    store.StatusConfirmed,
		"confirmedAt":               time.Now().UTC(),
		"meta.manualOverrideReason": req.Reason,
	})
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if updated == nil {
		h.ErrHandler.Conflict(w, r, "transaction moved out of failed before the manual override committed")
		return
	}

	if err := h.Store.AppendAuditEvent(r.Context(), store.AuditEvent{
		Reference: tx.Reference,
		Type:      "manual_override",
		Reason:    req.Reason,
	}); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err := response.JSONOkResponse(w, updated, "transaction manually marked confirmed", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleTransactionStats(w http.ResponseWriter, r *http.Request) {
	direction := store.Direction(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = store.DirectionOfframp
	}

	stats, err := h.Store.Aggregate(r.Context(), direction)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err := response.JSONOkResponse(w, stats, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
