package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/naijaswap/bridge/internal/config"
	"github.com/naijaswap/bridge/internal/context"
	"github.com/naijaswap/bridge/internal/errHandler"
	"github.com/naijaswap/bridge/internal/metrics"
	"github.com/naijaswap/bridge/internal/response"

	"github.com/rs/cors"
	"github.com/tomasen/realip"
	"go.uber.org/ratelimit"
)

type Middleware struct {
	errHandler *errHandler.ErrorRepository
	logger     *slog.Logger
	config     *config.Config

	limiterMu sync.Mutex
	limiters  map[string]ratelimit.Limiter
}

func New(errHandler *errHandler.ErrorRepository, logger *slog.Logger, config *config.Config) *Middleware {
	return &Middleware{
		errHandler: errHandler,
		logger:     logger,
		config:     config,
		limiters:   make(map[string]ratelimit.Limiter),
	}
}

func (mid *Middleware) RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err != nil {
				mid.errHandler.ServerError(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (mid *Middleware) LogAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := response.NewMetricsResponseWriter(w)
		next.ServeHTTP(mw, r)

		var (
			ip     = realip.FromRequest(r)
			method = r.Method
			url    = r.URL.String()
			proto  = r.Proto
		)

		userAttrs := slog.Group("caller", "ip", ip)
		requestAttrs := slog.Group("request", "method", method, "url", url, "proto", proto)
		responseAttrs := slog.Group("response", "status", mw.StatusCode, "size", mw.BytesCount)

		mid.logger.Info("access", userAttrs, requestAttrs, responseAttrs)

		statusClass := fmt.Sprintf("%dxx", mw.StatusCode/100)
		metrics.HTTPRequestsTotal.WithLabelValues(r.URL.Path, statusClass).Inc()
	})
}

// CORS applies the allowed-origin policy from config to every response,
// including preflight OPTIONS requests.
func (mid *Middleware) CORS(next http.Handler) http.Handler {
	origins := []string{"*"}
	if mid.config.AllowedOrigin != "" {
		origins = []string{mid.config.AllowedOrigin}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "x-internal-key", "x-monnify-signature", "x-lenco-signature"},
		AllowCredentials: false,
	})

	return c.Handler(next)
}

// RateLimit throttles each caller IP to config.RateLimit.Max requests per
// window using a leaky-bucket limiter per IP. New callers get their own
// bucket lazily; this trades unbounded memory growth under IP-spoofed
// abuse for simplicity, acceptable behind the reverse proxy this service
// runs behind.
func (mid *Middleware) RateLimit(next http.Handler) http.Handler {
	windowSeconds := float64(mid.config.RateLimit.WindowMs) / 1000
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	max := mid.config.RateLimit.Max
	if max <= 0 {
		max = 60
	}
	rps := int(float64(max) / windowSeconds)
	if rps < 1 {
		rps = 1
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := realip.FromRequest(r)

		mid.limiterMu.Lock()
		limiter, ok := mid.limiters[ip]
		if !ok {
			limiter = ratelimit.New(rps)
			mid.limiters[ip] = limiter
		}
		mid.limiterMu.Unlock()

		limiter.Take()
		next.ServeHTTP(w, r)
	})
}

// InternalKeyAuth guards endpoints that only internal callers such as the
// chain indexer are allowed to call (the confirm-receipt route), using a
// shared secret header rather than a user session: this service has no
// end-user identity of its own. Payout webhooks are not behind it; they
// are checked by their HMAC signature instead.
func (mid *Middleware) InternalKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mid.config.InternalAPIKey == "" {
			mid.errHandler.ConfigMissing(w, r, "internal API key")
			return
		}

		key := r.Header.Get("x-internal-key")
		if key == "" || key != mid.config.InternalAPIKey {
			mid.errHandler.AuthenticationRequired(w, r)
			return
		}

		r = context.ContextSetInternalCaller(r)
		next.ServeHTTP(w, r)
	})
}
