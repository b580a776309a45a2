package handler

import (
	"net/http"
	"time"

	"github.com/naijaswap/bridge/internal/response"
)

func (h *RouteHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"version":   h.Version,
		"env":       h.Env,
		"uptime":    time.Since(h.StartedAt).String(),
		"timestamp": time.Now().UTC(),
	}

	if err := response.JSONOkResponse(w, data, "Up and grateful", nil); err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
