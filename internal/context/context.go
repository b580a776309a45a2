package context

import (
	"context"
	"net/http"
)

type contextKey string

const (
	internalCallerContextKey = contextKey("internalCaller")
	requestIDContextKey      = contextKey("requestID")
)

// ContextSetInternalCaller marks the request as authenticated via the
// x-internal-key header (used by the chain indexer's confirm-receipt calls).
func ContextSetInternalCaller(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), internalCallerContextKey, true)
	return r.WithContext(ctx)
}

func ContextIsInternalCaller(r *http.Request) bool {
	v, ok := r.Context().Value(internalCallerContextKey).(bool)
	return ok && v
}

func ContextSetRequestID(r *http.Request, id string) *http.Request {
	ctx := context.WithValue(r.Context(), requestIDContextKey, id)
	return r.WithContext(ctx)
}

func ContextGetRequestID(r *http.Request) string {
	id, ok := r.Context().Value(requestIDContextKey).(string)
	if !ok {
		return ""
	}
	return id
}
