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

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/paypledge/settlement/internal/api"
	"github.com/paypledge/settlement/internal/config"
	"github.com/paypledge/settlement/internal/gateway"
	"github.com/paypledge/settlement/internal/interfaces"
	"github.com/paypledge/settlement/internal/locker"
	"github.com/paypledge/settlement/internal/repository"
	"github.com/paypledge/settlement/internal/service"
	"github.com/paypledge/settlement/internal/telemetry"
	"github.com/paypledge/settlement/internal/verifier"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.Init("settlement-engine", cfg.OTLPEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Settlement Engine")

	// Document store: PostgreSQL when configured, in-memory otherwise.
	var docs interfaces.DocumentStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		pg := repository.NewPostgresDocumentStore(db)
		if err := pg.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		docs = pg
	} else {
		telemetry.Logger.Warn("DATABASE_URL not set, using in-memory document store")
		docs = repository.NewMemoryDocumentStore()
	}
	stores := repository.NewStores(docs)

	// Distributed lock: Redis when configured, in-process otherwise.
	var locks interfaces.Locker
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		defer redisClient.Close()
		locks = locker.NewRedisLocker(redisClient, cfg.LockTTL)
	} else {
		telemetry.Logger.Warn("REDIS_URL not set, using in-process locks")
		locks = locker.NewMemoryLocker()
	}

	// Connect to NATS for proof verification
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()
	judge := verifier.NewNATSVerifier(nc)

	// Connect to Kafka; topic is set per message.
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	gw := gateway.NewSandbox()

	orchestrator := service.NewOrchestrator(stores, gw, locks, kafkaWriter, service.OrchestratorConfig{
		AllowPartialRelease: cfg.AllowPartialRelease,
		WriteRetries:        cfg.WriteRetries,
	})
	gate := verifier.NewGate(cfg.VerificationThreshold, cfg.BlockingFlags)
	txns := service.NewTransactionService(orchestrator, judge, gate)

	r := api.NewRouter(stores, txns, orchestrator)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Settlement Engine starting", zap.String("port", cfg.Port))
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
