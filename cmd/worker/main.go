package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"edutrack/internal/attendance"
	"edutrack/internal/config"
	"edutrack/internal/expiry"
	"edutrack/internal/logging"
	"edutrack/internal/queue"
	"edutrack/internal/store"
	"edutrack/internal/storeclient"
)

// Worker consumes session events and ends sessions when their window closes.
func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("worker needs a shared queue; set QUEUE_BACKEND=redis or let the api expire sessions in-process")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", "err", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet; consumer will keep retrying", "addr", cfg.RedisAddr)
	}
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)

	att := attendance.NewService(storeclient.New(cfg.StoreBaseURL, cfg.StoreTimeout), attendance.Options{
		Location: loc,
		Logger:   logging.Component(logger, "attendance"),
	})

	sched := expiry.New(att, q, cfg.ExpirySweepInterval, logging.Component(logger, "expiry"))
	logger.Info("worker started, waiting for session events", "sweep", cfg.ExpirySweepInterval)
	if err := sched.Run(ctx); err != nil {
		logger.Fatal("expiry scheduler failed", "err", err)
	}
	logger.Info("worker stopped")
}
