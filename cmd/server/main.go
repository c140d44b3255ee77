package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketledger/internal/config"
	"ticketledger/internal/handler"
	"ticketledger/internal/infrastructure/cache"
	"ticketledger/internal/infrastructure/database"
	"ticketledger/internal/infrastructure/mq"
	"ticketledger/internal/job"
	"ticketledger/pkg/idgen"
	"ticketledger/pkg/logging"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	idgen.Init(1)

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		logger.Fatal("init mysql", zap.Error(err))
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Fatal("init redis", zap.Error(err))
	}

	producer, err := mq.NewProducer(&cfg.Kafka)
	if err != nil {
		logger.Fatal("init kafka producer", zap.Error(err))
	}
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, producer, cfg, logger.Named("outbox"))
	go outboxSender.Start(ctx)

	rechargeTimeoutJob := job.NewRechargeTimeoutJob(db, cfg, logger.Named("recharge_timeout"))
	go rechargeTimeoutJob.Start(ctx)

	router := handler.SetupRouter(db, redisClient, cfg, logger.Named("http"))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
