package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/tapkeeper/tapkeeper/internal/account/domain"
	"github.com/tapkeeper/tapkeeper/internal/config"
	itemrepository "github.com/tapkeeper/tapkeeper/internal/item/repository"
	ledgerdomain "github.com/tapkeeper/tapkeeper/internal/ledger/domain"
	obsmiddleware "github.com/tapkeeper/tapkeeper/internal/observability/logger"
	obsmetrics "github.com/tapkeeper/tapkeeper/internal/observability/metrics"
	"github.com/tapkeeper/tapkeeper/internal/providers/mollie"
	"github.com/tapkeeper/tapkeeper/internal/providers/slack"
	"github.com/tapkeeper/tapkeeper/internal/ratelimit"
	"github.com/tapkeeper/tapkeeper/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	ledgerSvc    ledgerdomain.Service
	reconcileSvc *reconcile.Service
	accountRepo  accountdomain.Repository
	itemRepo     itemrepository.Repository
	slack        slack.Provider
	payments     mollie.Provider
	limiter      *ratelimit.Limiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	LedgerSvc    ledgerdomain.Service
	ReconcileSvc *reconcile.Service
	AccountRepo  accountdomain.Repository
	ItemRepo     itemrepository.Repository
	Slack        slack.Provider
	Payments     mollie.Provider
	Limiter      *ratelimit.Limiter  `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		genID:        p.GenID,
		ledgerSvc:    p.LedgerSvc,
		reconcileSvc: p.ReconcileSvc,
		accountRepo:  p.AccountRepo,
		itemRepo:     p.ItemRepo,
		slack:        p.Slack,
		payments:     p.Payments,
		limiter:      p.Limiter,
		obsMetrics:   p.ObsMetrics,
	}

	s.registerAPIRoutes()

	return s
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// The webhook is called by the payment gateway and carries no bearer
	// token; verification happens against the gateway instead.
	api.POST("/payments/webhook", s.HandlePaymentWebhook)

	authed := api.Group("")
	authed.Use(s.BearerAuth())
	authed.GET("/balance", s.HandleBalance)
	authed.POST("/payments/link", s.HandleSendPaymentLink)
	authed.POST("/roster/sync", s.HandleRosterSync)
	authed.GET("/items", s.HandleListItems)
	authed.POST("/purchases", s.HandleRecordPurchase)
	authed.GET("/accounts/:id/transactions", s.HandleListTransactions)
}

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	// Wrong method must be distinguishable from an unknown resource.
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log.Named("http")))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(
		obsmetrics.New,
		obsmetrics.NewHTTPMetrics,
		NewEngine,
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)
