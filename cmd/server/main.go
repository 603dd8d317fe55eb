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

	"wonderstars/config"
	"wonderstars/internal/api"
	"wonderstars/internal/broker"
	"wonderstars/internal/redisclient"
	"wonderstars/internal/service"
	"wonderstars/internal/store"
	"wonderstars/internal/util"
	"wonderstars/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting wonderstars loyalty service")

	tp, err := util.InitTracer("wonderstars", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicLoyalty)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	dailyTTL := time.Duration(cfg.Business.DailyVoucherTTLHours) * time.Hour
	voucherService := service.NewVoucherService(db, redisClient, eventPublisher, dailyTTL)
	awardService := service.NewAwardService(db, eventPublisher, cfg.Business.TopupBonusPercent)
	smsClient := service.NewSMSGatewayClient(cfg.OTP.GatewayURL, cfg.OTP.GatewayAPIKey, cfg.OTP.SenderID)
	otpService := service.NewOTPService(redisClient, smsClient)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	topupConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicLoyalty, cfg.Kafka.ConsumerGroup)
	awardWorker := worker.NewAwardWorker(topupConsumer, awardService, cfg.Business.StarsPerRedemption)
	go func() {
		if err := awardWorker.Start(workerCtx); err != nil {
			logger.Error("Award worker stopped", zap.Error(err))
		}
	}()

	reconcileWorker := worker.NewReconcileWorker(awardService, redisClient,
		time.Duration(cfg.Business.ReconcileIntervalMin)*time.Minute)
	go func() {
		if err := reconcileWorker.Start(workerCtx); err != nil {
			logger.Error("Reconcile worker stopped", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(voucherService, awardService, otpService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	awardWorker.Stop()

	logger.Info("Server exited")
}
