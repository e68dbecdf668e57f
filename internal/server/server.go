package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zutali/conmart/internal/config"
	notificationdomain "github.com/zutali/conmart/internal/notification/domain"
	"github.com/zutali/conmart/internal/observability"
	obsmiddleware "github.com/zutali/conmart/internal/observability/logger"
	obsmetrics "github.com/zutali/conmart/internal/observability/metrics"
	obstracing "github.com/zutali/conmart/internal/observability/tracing"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	"github.com/zutali/conmart/internal/ratelimit"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	plansvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	notificationSvc notificationdomain.Service
	callbackLimiter *ratelimit.CallbackLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Plansvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	NotificationSvc notificationdomain.Service
	CallbackLimiter *ratelimit.CallbackLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		plansvc:         p.Plansvc,
		subscriptionSvc: p.SubscriptionSvc,
		notificationSvc: p.NotificationSvc,
		callbackLimiter: p.CallbackLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Plans --------
	api.GET("/plans", s.ListPlans)

	// -------- Payments --------
	payments := api.Group("/payments")
	{
		payments.POST("/subscriptions/initialize", s.InitializeSubscription)
		// Unauthenticated: the gateway signs nothing we can check, so the
		// handler re-verifies every transaction before trusting it.
		payments.POST("/chapa/callback", s.CallbackRateLimit(), s.ChapaCallback)
	}

	// -------- Accounts --------
	accounts := api.Group("/accounts")
	{
		accounts.GET("/:id/subscription", s.GetAccountSubscription)
		accounts.GET("/:id/transactions", s.ListAccountTransactions)
		accounts.GET("/:id/notifications", s.ListAccountNotifications)
	}

	if s.cfg.Environment != "production" {
		api.POST("/test/cleanup", s.TestCleanup)
	}
}
