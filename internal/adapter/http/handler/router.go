package handler

import (
	"truek-settlement/internal/adapter/http/middleware"
	redisStore "truek-settlement/internal/adapter/storage/redis"
	"truek-settlement/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc        ports.WalletService
	TradeSvc         ports.TradeService
	OrderSvc         ports.OrderService
	TokenSvc         ports.TokenService
	RateLimitStore   *redisStore.RateLimitStore // nil = rate limiting disabled
	IdempotencyCache ports.IdempotencyCache     // nil = Idempotency-Key ignored
	HealthCheckers   []ports.HealthChecker
	Docs             *DocsHandler         // nil = /swagger not served
	AuditSvc         ports.AuditService   // nil = audit logging disabled
	MetricsRegistry  *prometheus.Registry // nil = /metrics not served
	MetricsPath      string
	HTTPMetrics      *middleware.HTTPMetrics
	Mode             string
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics(deps.HTTPMetrics))
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsRegistry != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{})))
	}

	if deps.Docs != nil {
		r.GET("/swagger", deps.Docs.UI)
		r.GET("/swagger/spec", deps.Docs.Spec)
	}

	rules := middleware.DefaultRateLimitRules()
	noop := func(c *gin.Context) { c.Next() }

	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return noop
		}
		rule, ok := rules[group]
		if !ok {
			return noop
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	idem := noop
	if deps.IdempotencyCache != nil {
		idem = middleware.Idempotency(deps.IdempotencyCache, deps.Logger)
	}

	v1 := r.Group("/api/v1")
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("/me", rl("wallet_read"), walletHandler.Me)
		wallet.POST("/transfer", rl("wallet_transfer"), idem, walletHandler.Transfer)
	}

	admin := v1.Group("/admin", jwtAuth, middleware.RequireAdmin())
	{
		admin.POST("/wallet/adjust", rl("admin"), idem, walletHandler.Adjust)
		admin.GET("/wallet/:userId/verify", rl("admin"), walletHandler.Verify)
	}

	tradeHandler := NewTradeHandler(deps.TradeSvc)
	trades := v1.Group("/trades", jwtAuth)
	{
		trades.POST("", rl("trades"), tradeHandler.Create)
		trades.GET("/my", rl("trades"), tradeHandler.My)
		trades.GET("/:id", rl("trades"), tradeHandler.Get)
		trades.PUT("/:id/offer", rl("trades"), tradeHandler.Offer)
		trades.PATCH("/:id/accept", rl("trades"), tradeHandler.Accept)
		trades.PATCH("/:id/cancel", rl("trades"), tradeHandler.Cancel)
		trades.POST("/:id/complete", rl("trades"), idem, tradeHandler.Complete)
		trades.GET("/:id/messages", rl("trades"), tradeHandler.ListMessages)
		trades.POST("/:id/messages", rl("trade_messages"), tradeHandler.SendMessage)
	}

	p2pHandler := NewP2PHandler(deps.OrderSvc)
	orders := v1.Group("/p2p/orders")
	{
		orders.GET("", rl("p2p_public"), p2pHandler.OrderBook)
		orders.GET("/my", jwtAuth, rl("p2p"), p2pHandler.My)
		orders.GET("/:id", rl("p2p_public"), p2pHandler.Get)
		orders.POST("", jwtAuth, rl("p2p"), p2pHandler.Create)
		orders.POST("/:id/take", jwtAuth, rl("p2p"), p2pHandler.Take)
		orders.POST("/:id/paid", jwtAuth, rl("p2p"), p2pHandler.Paid)
		orders.POST("/:id/release", jwtAuth, rl("p2p"), idem, p2pHandler.Release)
		orders.POST("/:id/cancel", jwtAuth, rl("p2p"), p2pHandler.Cancel)
	}

	return r
}
