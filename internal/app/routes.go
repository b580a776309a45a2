package app

import (
	"net/http"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	h := app.routeHandler

	mux.HandleFunc("GET /health", h.HandleHealthCheck)
	mux.HandleFunc("GET /metrics", h.HandleMetrics)

	mux.HandleFunc("GET /api/prices", h.HandleGetPrices)
	mux.HandleFunc("GET /api/prices/{token}", h.HandleGetPriceForToken)
	mux.HandleFunc("GET /api/prices/{token}/history", h.HandleGetPriceHistory)
	mux.HandleFunc("POST /api/prices/refresh", h.HandleForceRefreshPrices)

	mux.HandleFunc("GET /api/offramp/banks", h.HandleListBanks)
	mux.HandleFunc("GET /api/offramp/rate", h.HandleGetOfframpRate)
	mux.HandleFunc("GET /api/offramp/liquidity", h.HandleGetLiquidity)
	mux.HandleFunc("POST /api/offramp/verify-account", h.HandleVerifyAccount)
	mux.HandleFunc("POST /api/offramp/initialize", h.HandleInitializeOfframp)
	mux.HandleFunc("POST /api/offramp/notify-tx", h.HandleNotifyTx)
	mux.Handle("POST /api/offramp/confirm-receipt", app.middleware.InternalKeyAuth(http.HandlerFunc(h.HandleConfirmReceipt)))
	mux.HandleFunc("POST /api/offramp/lenco-webhook", h.HandleLencoWebhook)
	mux.HandleFunc("GET /api/offramp/status/{reference}", h.HandleGetOfframpStatus)
	mux.HandleFunc("GET /api/offramp/history", h.HandleGetHistory)

	mux.HandleFunc("GET /api/onramp/rate", h.HandleGetOnrampRate)
	mux.HandleFunc("POST /api/onramp/verify-account", h.HandleVerifyOnrampAddress)
	mux.HandleFunc("POST /api/onramp/initialize", h.HandleInitializeOnramp)
	mux.HandleFunc("POST /api/onramp/monnify-webhook", h.HandleMonnifyWebhook)
	mux.HandleFunc("GET /api/onramp/status/{reference}", h.HandleGetOnrampStatus)
	mux.HandleFunc("GET /api/onramp/history", h.HandleGetOnrampHistory)

	mux.HandleFunc("GET /api/transactions", h.HandleListTransactions)
	mux.HandleFunc("GET /api/transactions/stats", h.HandleTransactionStats)
	mux.HandleFunc("GET /api/transactions/{id}", h.HandleGetTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}/status", h.HandlePatchTransactionStatus)

	mux.HandleFunc("GET /api/stream/{reference}", h.HandleStatusStream)

	return app.middleware.LogAccess(app.middleware.RecoverPanic(app.middleware.CORS(app.middleware.RateLimit(mux))))
}
