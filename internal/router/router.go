package router

import (
	"context"
	"net/http"
	"time"

	"potledger/config"
	"potledger/internal/handler"
	"potledger/internal/middleware"
	"potledger/internal/pot"
	"potledger/internal/repository"
	"potledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Deps struct {
	DB            *gorm.DB
	Pots          *pot.Manager
	Admin         *pot.Admin
	Notifications *service.NotificationService
	Limiter       *middleware.IPRateLimiter
	Logger        *zap.Logger
}

func Setup(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Logger.Named("http")))

	walletRepo := repository.NewWalletRepository(d.DB)
	compensationRepo := repository.NewCompensationRepository(d.DB)

	potHandler := handler.NewPotHandler(d.Pots)
	adminHandler := handler.NewAdminHandler(d.Admin, d.Pots, compensationRepo)
	notificationHandler := handler.NewNotificationHandler(d.Notifications)
	walletHandler := handler.NewWalletHandler(walletRepo)

	r.GET("/healthz", healthz(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter))
	}
	api.Use(authMw)
	{
		pots := api.Group("/pots")
		{
			pots.POST("", potHandler.Create)
			pots.GET("", potHandler.List)
			pots.GET("/:id", potHandler.Get)
			pots.PATCH("/:id", potHandler.Update)
			pots.POST("/:id/contributions", potHandler.Contribute)
			pots.POST("/:id/withdrawals", potHandler.Withdraw)
			pots.GET("/:id/eligibility", potHandler.Eligibility)
			pots.POST("/:id/close", potHandler.Close)
			pots.GET("/:id/transactions", potHandler.Transactions)
		}

		me := api.Group("/me")
		{
			me.GET("/wallets", walletHandler.List)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AdminRequired())
		{
			admin.GET("/pots", adminHandler.ListPots)
			admin.POST("/pots/:id/lock", adminHandler.ToggleLock)
			admin.POST("/pots/:id/force-unlock", adminHandler.ForceUnlock)
			admin.POST("/pots/:id/auto-deposit/run", adminHandler.RunAutoDeposit)
			admin.GET("/pot-settings", adminHandler.GetSettings)
			admin.PUT("/pot-settings", adminHandler.UpdateSettings)
			admin.GET("/compensations", adminHandler.ListCompensations)
			admin.GET("/transactions/:reference", adminHandler.TransactionByReference)
			admin.GET("/auto-deposits/due", adminHandler.DueAutoDeposits)
		}
	}

	return r
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
