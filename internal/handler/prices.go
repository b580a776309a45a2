package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/naijaswap/bridge/internal/response"
	"github.com/naijaswap/bridge/internal/store"
)

func (h *RouteHandler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	snap := h.Oracle.GetCurrent(r.Context())

	data := map[string]any{
		"STX":       snap.STX,
		"USDC":      snap.USDC,
		"usdToNgn":  snap.UsdToNgn,
		"fromCache": snap.FromCache,
		"fetchedAt": snap.FetchedAt,
	}

	if err := response.JSONOkResponse(w, data, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleGetPriceForToken(w http.ResponseWriter, r *http.Request) {
	token := store.Token(strings.ToUpper(r.PathValue("token")))
	if token != store.TokenSTX && token != store.TokenUSDC {
		h.ErrHandler.NotFound(w, r)
		return
	}

	snap := h.Oracle.GetCurrent(r.Context())

	var price any
	if token == store.TokenSTX {
		price = snap.STX
	} else {
		price = snap.USDC
	}

	data := map[string]any{
		"token":     token,
		"price":     price,
		"fromCache": snap.FromCache,
		"fetchedAt": snap.FetchedAt,
	}

	if err := response.JSONOkResponse(w, data, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleGetPriceHistory(w http.ResponseWriter, r *http.Request) {
	token := store.Token(strings.ToUpper(r.PathValue("token")))
	if token != store.TokenSTX && token != store.TokenUSDC {
		h.ErrHandler.NotFound(w, r)
		return
	}

	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		if parsed, err := strconv.Atoi(h); err == nil {
			hours = parsed
		}
	}

	snapshots, err := h.Oracle.GetHistory(r.Context(), token, hours)
	if err != nil {
		h.ErrHandler.UpstreamUnavailable(w, r, http.StatusBadGateway, "")
		return
	}

	if err := response.JSONOkResponse(w, snapshots, "", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleForceRefreshPrices(w http.ResponseWriter, r *http.Request) {
	snap := h.Oracle.ForceRefresh(r.Context())

	if err := response.JSONOkResponse(w, snap, "Prices refreshed", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
