package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/XavierBriggs/fortuna/services/arena/internal/config"
	"github.com/XavierBriggs/fortuna/services/arena/internal/consumer"
	"github.com/XavierBriggs/fortuna/services/arena/internal/handlers"
	"github.com/XavierBriggs/fortuna/services/arena/internal/hub"
	"github.com/XavierBriggs/fortuna/services/arena/internal/leaderboard"
	"github.com/XavierBriggs/fortuna/services/arena/internal/publisher"
	"github.com/XavierBriggs/fortuna/services/arena/internal/registry"
	"github.com/XavierBriggs/fortuna/services/arena/internal/retry"
	"github.com/XavierBriggs/fortuna/services/arena/internal/session"
	"github.com/XavierBriggs/fortuna/services/arena/internal/store"
	"github.com/XavierBriggs/fortuna/services/arena/internal/store/memstore"
	"github.com/XavierBriggs/fortuna/services/arena/internal/store/redisstore"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log config: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	log.Info("starting arena", zap.String("store_backend", cfg.Redis.Backend))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		st          store.Store
		redisClient *redis.Client
	)
	switch cfg.Redis.Backend {
	case "memory":
		st = memstore.New()
	default:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		ping := retry.NewPolicy(5, 500*time.Millisecond)
		if err := ping.Execute(ctx, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}); err != nil {
			log.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.URL), zap.Error(err))
		}
		log.Info("connected to redis", zap.String("addr", cfg.Redis.URL))
		st = redisstore.New(redisClient, log.Named("store"))
	}

	board, err := leaderboard.New(ctx, st,
		leaderboard.WithLogger(log.Named("leaderboard")),
		leaderboard.WithCacheTTL(cfg.Leaderboard.CacheTTL))
	if err != nil {
		log.Fatal("failed to start leaderboard", zap.Error(err))
	}
	defer board.Close()

	// Create hub
	h := hub.NewHub(hub.Config{
		FullStateInterval: cfg.Hub.FullStateInterval,
		BufferSize:        cfg.Hub.BufferSize,
		HeartbeatTimeout:  cfg.Hub.HeartbeatTimeout,
		EndedRetention:    cfg.Hub.EndedRetention,
	}, hub.WithLogger(log.Named("hub")))
	go h.RunSweeper(ctx, cfg.Hub.SweepInterval)

	// Results are rated in-process with the memory backend and through the
	// results stream otherwise
	processor := consumer.NewProcessor(board, log.Named("ratings"))
	var results session.ResultPublisher = processor
	if redisClient != nil {
		results = publisher.NewStreamPublisher(redisClient, cfg.Stream.ResultsStream, cfg.Stream.MaxLen, log.Named("publisher"))

		streamConsumer := consumer.NewStreamConsumer(redisClient, processor, cfg.Stream, log.Named("consumer"))
		go func() {
			if err := streamConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("stream consumer stopped", zap.Error(err))
			}
		}()
	}

	reg := registry.New()
	sessions := session.NewManager(reg, h, board, results, log.Named("session"))

	// Create HTTP handler (pass context for WebSocket lifecycle)
	handler := handlers.NewHandler(ctx, h, board, sessions, reg, cfg.Leaderboard, log.Named("http"))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Router(cfg.Server.CORSOrigins),
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr), zap.Strings("games", reg.GameTypes()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")

	// Stop match loops first so no new frames or results are produced
	sessions.Close()

	// Cancel context to stop all goroutines
	cancel()

	// Graceful shutdown of HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}

	if redisClient != nil {
		redisClient.Close()
	}

	log.Info("shutdown complete")
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
