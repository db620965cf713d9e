package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/chainpay/payment-reconciler/internal/api"
	"github.com/chainpay/payment-reconciler/internal/chain"
	"github.com/chainpay/payment-reconciler/internal/config"
	"github.com/chainpay/payment-reconciler/internal/engine"
	"github.com/chainpay/payment-reconciler/internal/models"
	"github.com/chainpay/payment-reconciler/internal/repository"
	"github.com/chainpay/payment-reconciler/internal/service"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
	"github.com/chainpay/payment-reconciler/internal/wallet"
)

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	if err := telemetry.InitTelemetry("payment-reconciler"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Reconciler")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewPaymentRepository(db)
	if err := repo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "payment.status.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Chain adapters, one per supported network
	adapters := chain.Registry{
		models.NetworkBSC:  chain.NewBscScanAdapter(cfg.BscScanURL, cfg.BscScanAPIKey, cfg.MinConfirmations, cfg.ExplorerTimeout),
		models.NetworkTRON: chain.NewTronGridAdapter(cfg.TronGridURL, cfg.TronGridAPIKey, cfg.ExplorerTimeout),
	}

	reconciler := engine.NewReconciler(adapters)
	machine := engine.NewStateMachine(reconciler)
	checker := service.NewChecker(repo, machine, service.NewRedisLocker(redisClient), kafkaWriter, time.Now)

	// Background poller
	poller := service.NewPoller(repo, checker, cfg.PollInterval, cfg.PollInitialDelay, cfg.PollBatchSize, cfg.PollWorkers)
	poller.Start(context.Background())
	defer poller.Stop()

	// Wallet provider
	wallets := wallet.NewProvider(nc)

	// HTTP surface
	r := api.NewRouter(repo, checker, wallets, cfg.PaymentTTL)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Payment Reconciler starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
