// Package handler wires HTTP endpoints to the domain engines. Handlers
// hold no business logic of their own: they decode, validate shape, call
// an engine, and translate the result into the response envelope.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/naijaswap/bridge/internal/chain"
	"github.com/naijaswap/bridge/internal/errHandler"
	"github.com/naijaswap/bridge/internal/liquidity"
	"github.com/naijaswap/bridge/internal/onramp"
	"github.com/naijaswap/bridge/internal/oracle"
	"github.com/naijaswap/bridge/internal/payout"
	"github.com/naijaswap/bridge/internal/settlement"
	"github.com/naijaswap/bridge/internal/store"
)

type RouteHandler struct {
	ErrHandler *errHandler.ErrorRepository
	Store      *store.Store
	Oracle     *oracle.Cache
	Payout     *payout.Client
	Chain      *chain.Client
	Liquidity  *liquidity.Guard
	Settlement *settlement.Engine
	Onramp     *onramp.Engine
	Version    string
	Env        string
	StartedAt  time.Time
}

func NewRouteHandler(h *RouteHandler) *RouteHandler {
	return h
}

type queryStringValues struct {
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Limit     int
	Offset    int
}

func retrieveUrlQueryValues(r *http.Request) *queryStringValues {
	var queryValues = &queryStringValues{}

	startDateStr := r.URL.Query().Get("start_date")
	if startDateStr != "" {
		parsedStart, err := time.Parse("2006-01-02", startDateStr)
		if err == nil {
			queryValues.StartDate = &parsedStart
		}
	}

	endDateStr := r.URL.Query().Get("end_date")
	if endDateStr != "" {
		parsedEnd, err := time.Parse("2006-01-02", endDateStr)
		if err == nil {
			queryValues.EndDate = &parsedEnd
		}
	}

	limitStr := r.URL.Query().Get("limit")
	pageStr := r.URL.Query().Get("page")

	offset := 0
	limit := 10

	if limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	queryValues.Limit = limit

	if pageStr != "" {
		if parsedPage, err := strconv.Atoi(pageStr); err == nil && parsedPage >= 1 {
			offset = (parsedPage - 1) * limit
		}
	}
	queryValues.Offset = offset

	queryValues.Search = r.URL.Query().Get("search")

	return queryValues
}
