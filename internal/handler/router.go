package handler

import (
	"ticketledger/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware())

	h := NewHandler(db, rdb, cfg, logger)

	api := r.Group("/api/v1")
	{
		person := api.Group("/person")
		{
			person.POST("/register", h.RegisterPerson)
			person.GET("/detail", h.GetPerson)
		}

		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
			account.GET("/transaction", h.GetTransaction)
		}

		lesson := api.Group("/lesson")
		{
			lesson.POST("/consume", h.ConsumeLesson)
		}

		recharge := api.Group("/recharge")
		{
			recharge.POST("/initiate", h.InitiateRecharge)
			recharge.POST("/webhook", h.RechargeWebhook)
			recharge.GET("/detail", h.GetRecharge)
			recharge.GET("/list", h.ListRecharges)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
