package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/naijaswap/bridge/internal/store"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const statusPollInterval = 3 * time.Second

// HandleStatusStream upgrades to a WebSocket, re-reads the transaction
// every few seconds and pushes its status to the client whenever it has
// changed, until it reaches a terminal state or the connection drops, so a
// wallet UI can avoid polling REST.
func (h *RouteHandler) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	var lastStatus store.Status

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		tx, err := h.Store.FindByReference(r.Context(), reference)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return
		}

		if tx != nil && tx.Status != lastStatus {
			lastStatus = tx.Status
			if err := conn.WriteJSON(tx); err != nil {
				return
			}
			if isTerminal(tx.Status) {
				return
			}
		}
	}
}

func isTerminal(s store.Status) bool {
	return s == store.StatusConfirmed || s == store.StatusFailed
}
