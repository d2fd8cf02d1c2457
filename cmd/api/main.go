package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"truek-settlement/config"
	httpHandler "truek-settlement/internal/adapter/http/handler"
	"truek-settlement/internal/adapter/http/middleware"
	pgStorage "truek-settlement/internal/adapter/storage/postgres"
	redisStorage "truek-settlement/internal/adapter/storage/redis"
	"truek-settlement/internal/core/ports"
	"truek-settlement/internal/service"
	"truek-settlement/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load(os.Getenv("TRK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting truek settlement engine")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required (TRK_JWT_SECRET)")
	}

	ctx := context.Background()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Metrics
	var (
		registry    *prometheus.Registry
		svcMetrics  *service.Metrics
		httpMetrics *middleware.HTTPMetrics
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		svcMetrics = service.NewMetrics(registry)
		httpMetrics = middleware.NewHTTPMetrics(registry)
	}

	// Repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	listingRepo := pgStorage.NewListingRepo(pool)
	tradeRepo := pgStorage.NewTradeRepo(pool)
	messageRepo := pgStorage.NewTradeMessageRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool, cfg.Database.LockTimeout)

	// Redis stores
	cooldown := redisStorage.NewMessageCooldown(rdb)
	notifier := redisStorage.NewNotifier(rdb)
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Services
	walletSvc := service.NewWalletService(accountRepo, ledgerRepo, transactor, cfg.Wallet.HistoryLimit, svcMetrics, logger.Component(log, "wallet"))
	tradeSvc := service.NewTradeService(
		tradeRepo,
		messageRepo,
		listingRepo,
		walletSvc,
		transactor,
		cooldown,
		notifier,
		cfg.Trade.MessageCooldown,
		svcMetrics,
		logger.Component(log, "trade"),
	)
	orderSvc := service.NewOrderService(orderRepo, walletSvc, transactor, svcMetrics, logger.Component(log, "p2p"))
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))

	specBytes, err := os.ReadFile("docs/api/openapi.yaml")
	if err != nil {
		log.Warn().Err(err).Msg("openapi document not found, /swagger disabled")
		specBytes = nil
	}
	docs, err := httpHandler.NewDocsHandler(specBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid openapi document")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:        walletSvc,
		TradeSvc:         tradeSvc,
		OrderSvc:         orderSvc,
		TokenSvc:         tokenSvc,
		RateLimitStore:   rateLimitStore,
		IdempotencyCache: idempotencyCache,
		HealthCheckers:   []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)},
		Docs:             docs,
		AuditSvc:         auditSvc,
		MetricsRegistry:  registry,
		MetricsPath:      cfg.Metrics.Path,
		HTTPMetrics:      httpMetrics,
		Mode:             cfg.Server.Mode,
		Logger:           log,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
