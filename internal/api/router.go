package api

import (
	"github.com/gin-gonic/gin"
	"github.com/watercoop/waterbill/internal/api/cron"
	v1 "github.com/watercoop/waterbill/internal/api/v1"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/metrics"
	"github.com/watercoop/waterbill/internal/rest/middleware"
	"github.com/watercoop/waterbill/internal/types"
)

type Handlers struct {
	Health               *v1.HealthHandler
	Client               *v1.ClientHandler
	Bill                 *v1.BillHandler
	CronConnectionStatus *cron.ConnectionStatusCronHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger, m *metrics.Metrics) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.LoggingMiddleware(logger),
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)
	if cfg.Metrics.Enabled && m != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	v1Router := router.Group("/v1")

	clients := v1Router.Group("/clients")
	{
		clients.POST("", handlers.Client.RegisterClient)
		clients.GET("", handlers.Client.ListClients)
		clients.GET("/:id", handlers.Client.GetClient)
		clients.GET("/:id/status", handlers.Client.GetClientStatus)
		clients.GET("/:id/status/history", handlers.Client.ListConnectionStatusHistory)
		clients.GET("/:id/bills", handlers.Client.ListClientBills)
	}

	bills := v1Router.Group("/bills")
	{
		bills.POST("", handlers.Bill.CreateBill)
		bills.GET("", handlers.Bill.ListBills)
		bills.GET("/:id", handlers.Bill.GetBill)
		bills.POST("/:id/payments", handlers.Bill.PayBill)
		bills.GET("/:id/payments", handlers.Bill.ListPartialPayments)
	}

	cronGroup := v1Router.Group("/cron")
	{
		cronGroup.POST("/connection-status/evaluate", handlers.CronConnectionStatus.EvaluateConnectionStatuses)
	}

	return router
}
