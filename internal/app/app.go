// Package app wires every domain package into a single running process:
// config load, dependency construction, background task startup, and the
// HTTP server. This is the only place that is allowed to know about every
// package in the module.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/naijaswap/bridge/internal/cache"
	"github.com/naijaswap/bridge/internal/chain"
	"github.com/naijaswap/bridge/internal/config"
	"github.com/naijaswap/bridge/internal/env"
	"github.com/naijaswap/bridge/internal/errHandler"
	"github.com/naijaswap/bridge/internal/events"
	"github.com/naijaswap/bridge/internal/handler"
	"github.com/naijaswap/bridge/internal/helper"
	"github.com/naijaswap/bridge/internal/indexer"
	"github.com/naijaswap/bridge/internal/liquidity"
	"github.com/naijaswap/bridge/internal/middleware"
	"github.com/naijaswap/bridge/internal/onramp"
	"github.com/naijaswap/bridge/internal/oracle"
	"github.com/naijaswap/bridge/internal/payout"
	"github.com/naijaswap/bridge/internal/settlement"
	"github.com/naijaswap/bridge/internal/signer"
	"github.com/naijaswap/bridge/internal/smtp"
	"github.com/naijaswap/bridge/internal/store"
	"github.com/naijaswap/bridge/internal/stream"
	"github.com/naijaswap/bridge/internal/version"
	"github.com/naijaswap/bridge/internal/watcher"
	"github.com/naijaswap/bridge/internal/worker"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Application struct {
	Config config.Config
	Logger *slog.Logger
	WG     sync.WaitGroup

	mongoClient *mongo.Client
	dist        *cache.Cache
	kafka       *stream.KafkaStream

	errorHandler *errHandler.ErrorRepository
	helper       *helper.HelperRepository
	middleware   *middleware.Middleware

	store      *store.Store
	oracleC    *oracle.Cache
	payoutC    *payout.Client
	chainC     *chain.Client
	signerC    *signer.Signer
	guard      *liquidity.Guard
	settlement *settlement.Engine
	onramp     *onramp.Engine
	watcher    *watcher.Watcher
	indexer    *indexer.Indexer
	worker     *worker.Worker
	events     *events.Publisher

	routeHandler *handler.RouteHandler
}

func NewApplication(ctx context.Context, logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, relying on process environment", "error", err)
	}

	cfg := loadConfig()

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	distCache := cache.New(cfg.Redis.Addr, cfg.Redis.DB)

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		return nil, fmt.Errorf("initialize mailer: %w", err)
	}

	errorHandler := errHandler.New(cfg.Env, cfg.BaseURL, cfg.Notifications.Email, mailer, logger)
	helperRepo := helper.New(&sync.WaitGroup{}, errorHandler)
	mid := middleware.New(errorHandler, logger, &cfg)

	kafkaStream := stream.New(cfg.KafkaServers)
	eventPublisher := events.New(kafkaStream, logger)

	txStore := store.New(mongoClient, cfg.Mongo.DB)
	if err := txStore.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	oracleCache := oracle.New(oracle.Config{
		BaseURL:          cfg.Oracle.BaseURL,
		FreshTTL:         cfg.Oracle.FreshTTL,
		StaleTTL:         cfg.Oracle.StaleTTL,
		BaseBackoff:      cfg.Oracle.BaseBackoff,
		EmergencyUSDNGN:  cfg.Oracle.EmergencyUSDNGN,
		EmergencySTXUSD:  cfg.Oracle.EmergencySTXUSD,
		EmergencyUSDCUSD: cfg.Oracle.EmergencyUSDCUSD,
	}, txStore, logger)

	payoutClient := payout.New(payout.Config{
		BaseURL:       cfg.Lenco.BaseURL,
		APIKey:        cfg.Lenco.APIKey,
		AccountID:     cfg.Lenco.AccountID,
		WebhookSecret: cfg.Lenco.WebhookSecret,
	}).WithDistCache(distCache)

	if _, err := payoutClient.ListBanks(ctx); err != nil {
		logger.Warn("bank list cache warm-up failed; first request will pay the cold-cache cost", "error", err.Error())
	}

	chainClient := chain.New(chain.Config{APIURL: cfg.Stacks.APIURL})

	signerClient, err := signer.New(signer.Config{
		PlatformAddress: cfg.Stacks.PlatformAddress,
		PrivateKeyHex:   cfg.Stacks.PlatformPrivateKey,
		Network:         cfg.Stacks.Network,
		APIURL:          cfg.Stacks.APIURL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize signer: %w", err)
	}

	guard := liquidity.New(payoutClient, cfg.Offramp.MinBufferNGN).WithDistCache(distCache)

	priceSource := func(ctx context.Context) func(token store.Token) float64 {
		return oracleCache.GetCurrent(ctx).RateFor
	}

	settlementEngine := settlement.New(txStore, priceSource, payoutClient, guard, errorHandler, settlement.Config{
		MinToken:           cfg.Offramp.MinToken,
		MaxToken:           cfg.Offramp.MaxToken,
		FlatFeeNGN:         cfg.Offramp.FlatFeeNGN,
		PlatformAddress:    cfg.Stacks.PlatformAddress,
		ExpiryWindow:       cfg.Offramp.ExpiryWindow,
		AmountToleranceBPS: cfg.Offramp.AmountToleranceBPS,
		ConfirmationBlocks: cfg.Offramp.ConfirmationBlocks,
	}, logger)
	settlementEngine.SetEventPublisher(eventPublisher)

	onrampEngine := onramp.New(txStore, priceSource, signerClient, onramp.Config{
		PlatformAddress:  cfg.Stacks.PlatformAddress,
		USDCContractAddr: cfg.Stacks.USDCContractAddr,
		USDCContractName: cfg.Stacks.USDCContractName,
		FlatFeeNGN:       cfg.Offramp.FlatFeeNGN,
		WebhookSecret:    cfg.Monnify.WebhookSecret,
	}, logger)

	usdcContractID := cfg.Stacks.USDCContractAddr + "." + cfg.Stacks.USDCContractName

	txWatcher := watcher.New(chainClient, settlementEngine, usdcContractID, cfg.Stacks.PlatformAddress, logger)
	settlementEngine.SetWatcher(txWatcher)

	txIndexer := indexer.New(chainClient, settlementEngine, indexer.Config{
		PlatformAddress: cfg.Stacks.PlatformAddress,
		USDCContractID:  usdcContractID,
		PollInterval:    cfg.Indexer.PollInterval,
		TxsPerCycle:     50,
	}, logger)

	notificationWorker := worker.New(kafkaStream, txStore, logger)

	routeHandler := handler.NewRouteHandler(&handler.RouteHandler{
		ErrHandler: errorHandler,
		Store:      txStore,
		Oracle:     oracleCache,
		Payout:     payoutClient,
		Chain:      chainClient,
		Liquidity:  guard,
		Settlement: settlementEngine,
		Onramp:     onrampEngine,
		Version:    version.Get(),
		Env:        cfg.Env,
		StartedAt:  time.Now().UTC(),
	})

	app := &Application{
		Config:       cfg,
		Logger:       logger,
		mongoClient:  mongoClient,
		dist:         distCache,
		kafka:        kafkaStream,
		errorHandler: errorHandler,
		helper:       helperRepo,
		middleware:   mid,
		store:        txStore,
		oracleC:      oracleCache,
		payoutC:      payoutClient,
		chainC:       chainClient,
		signerC:      signerClient,
		guard:        guard,
		settlement:   settlementEngine,
		onramp:       onrampEngine,
		watcher:      txWatcher,
		indexer:      txIndexer,
		worker:       notificationWorker,
		events:       eventPublisher,
		routeHandler: routeHandler,
	}

	return app, nil
}

func loadConfig() config.Config {
	var cfg config.Config

	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.Env = env.GetString("ENV", "development")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)
	cfg.AllowedOrigin = env.GetString("ALLOWED_ORIGIN", "*")

	cfg.Mongo.URI = env.GetString("MONGO_URI", "mongodb://localhost:27017")
	cfg.Mongo.DB = env.GetString("MONGO_DB", "bridge")

	cfg.Redis.Addr = env.GetString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.DB = env.GetInt("REDIS_DB", 0)

	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Example Name <no_reply@example.org>")

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")

	cfg.Oracle.BaseURL = env.GetString("ORACLE_BASE_URL", "https://api.coingecko.com/api/v3")
	cfg.Oracle.FreshTTL = env.GetDuration("ORACLE_FRESH_TTL_MS", 30*time.Second)
	cfg.Oracle.StaleTTL = env.GetDuration("ORACLE_STALE_TTL_MS", 5*time.Minute)
	cfg.Oracle.BaseBackoff = env.GetDuration("ORACLE_BASE_BACKOFF_MS", 2*time.Second)
	cfg.Oracle.EmergencyUSDNGN = env.GetFloat("ORACLE_EMERGENCY_USD_NGN", 1650)
	cfg.Oracle.EmergencySTXUSD = env.GetFloat("ORACLE_EMERGENCY_STX_USD", 1.8)
	cfg.Oracle.EmergencyUSDCUSD = env.GetFloat("ORACLE_EMERGENCY_USDC_USD", 1.0)

	cfg.Stacks.PlatformAddress = env.GetString("STACKS_PLATFORM_ADDRESS", "")
	cfg.Stacks.PlatformPrivateKey = env.GetString("STACKS_PLATFORM_PRIVATE_KEY", "")
	cfg.Stacks.Network = env.GetString("STACKS_NETWORK", "mainnet")
	cfg.Stacks.APIURL = env.GetString("STACKS_API_URL", "https://api.hiro.so")
	cfg.Stacks.USDCContractAddr = env.GetString("STACKS_USDC_CONTRACT_ADDR", "")
	cfg.Stacks.USDCContractName = env.GetString("STACKS_USDC_CONTRACT_NAME", "usdc-token")

	cfg.Indexer.PollInterval = env.GetDuration("INDEXER_POLL_INTERVAL_MS", 20*time.Second)

	cfg.InternalAPIKey = env.GetString("INTERNAL_API_KEY", "")
	cfg.SelfBaseURL = env.GetString("SELF_BASE_URL", cfg.BaseURL)

	cfg.Lenco.BaseURL = env.GetString("LENCO_BASE_URL", "https://api.lenco.co/access/v2")
	cfg.Lenco.APIKey = env.GetString("LENCO_API_KEY", "")
	cfg.Lenco.AccountID = env.GetString("LENCO_ACCOUNT_ID", "")
	cfg.Lenco.WebhookSecret = env.GetString("LENCO_WEBHOOK_SECRET", "")
	cfg.Lenco.MinBalanceNGN = int64(env.GetInt("LENCO_MIN_BALANCE_NGN", 5000))

	cfg.Monnify.APIKey = env.GetString("MONNIFY_API_KEY", "")
	cfg.Monnify.SecretKey = env.GetString("MONNIFY_SECRET_KEY", "")
	cfg.Monnify.ContractCode = env.GetString("MONNIFY_CONTRACT_CODE", "")
	cfg.Monnify.WebhookSecret = env.GetString("MONNIFY_WEBHOOK_SECRET", "")

	cfg.Offramp.FlatFeeNGN = int64(env.GetInt("OFFRAMP_FLAT_FEE_NGN", 200))
	cfg.Offramp.MinToken = env.GetFloat("OFFRAMP_MIN_TOKEN", 1)
	cfg.Offramp.MaxToken = env.GetFloat("OFFRAMP_MAX_TOKEN", 5000)
	cfg.Offramp.MinBufferNGN = int64(env.GetInt("OFFRAMP_MIN_BUFFER_NGN", 5000))
	cfg.Offramp.AmountToleranceBPS = int64(env.GetInt("OFFRAMP_AMOUNT_TOLERANCE_BPS", 10))
	cfg.Offramp.ConfirmationBlocks = env.GetInt("OFFRAMP_CONFIRMATION_BLOCKS", 1)
	cfg.Offramp.ExpiryWindow = env.GetDuration("OFFRAMP_EXPIRY_WINDOW_MS", 30*time.Minute)

	cfg.RateLimit.WindowMs = env.GetInt("RATE_LIMIT_WINDOW_MS", 60000)
	cfg.RateLimit.Max = env.GetInt("RATE_LIMIT_MAX", 60)

	return cfg
}

// Run starts every background task and the HTTP server, blocking until the
// context is cancelled, then drains in-flight background work before
// returning.
func (app *Application) Run(ctx context.Context) error {
	app.WG.Add(1)
	go func() {
		defer app.WG.Done()
		app.indexer.Run(ctx)
	}()

	app.WG.Add(1)
	go func() {
		defer app.WG.Done()
		app.runPriceRefreshLoop(ctx)
	}()

	app.WG.Add(1)
	go func() {
		defer app.WG.Done()
		app.runExpiryReaper(ctx)
	}()

	app.WG.Add(1)
	go func() {
		defer app.WG.Done()
		app.worker.ManualSettlementAuditWorker(ctx)
	}()

	return app.serveHTTP(ctx)
}

func (app *Application) runPriceRefreshLoop(ctx context.Context) {
	interval := app.Config.Oracle.FreshTTL
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.oracleC.RefreshTick(ctx)
		}
	}
}

// runExpiryReaper fails pending offramps whose deposit window lapsed, so
// they don't sit pending forever. Every pending record past expiresAt is
// failed, whether or not notify-tx was ever called for it.
func (app *Application) runExpiryReaper(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := app.store.FindExpiredPending(ctx, time.Now().UTC(), 100)
			if err != nil {
				app.Logger.Error("reaper failed to list expired pending records", "error", err)
				continue
			}
			for _, tx := range expired {
				if err := app.settlement.FailPendingTimeout(ctx, tx.Reference, "deposit window expired"); err != nil {
					app.Logger.Error("reaper failed to expire record", "reference", tx.Reference, "error", err)
				}
			}
		}
	}
}

func (app *Application) Close(ctx context.Context) error {
	if err := app.dist.Close(); err != nil {
		app.Logger.Error("failed to close redis client", "error", err)
	}
	return app.mongoClient.Disconnect(ctx)
}
