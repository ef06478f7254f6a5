package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"edutrack/internal/attendance"
	"edutrack/internal/config"
	"edutrack/internal/logging"
	"edutrack/internal/queue"
	"edutrack/internal/store"
	"edutrack/internal/storeclient"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", "err", err)
	}

	events, closeEvents := eventPublisher(cfg)
	defer closeEvents()

	runner := NewRunner(RunnerOpts{
		Attendance: attendance.NewService(storeclient.New(cfg.StoreBaseURL, cfg.StoreTimeout), attendance.Options{
			Location: loc,
			Events:   events,
			Logger:   logging.Component(logger, "attendance"),
		}),
		PublicBaseURL: cfg.PublicBaseURL,
		SigningKey:    cfg.ProofSigningKey,
		Issuer:        cfg.ProofIssuer,
		Logger:        logger,
	})

	app := &cli.Command{
		Name:     "attendctl",
		Usage:    "Run attendance sessions from the terminal",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatal("command failed", "err", err)
	}
}

// eventPublisher returns the shared queue the expiry worker consumes, or nil
// when sessions created here have no worker to reach.
func eventPublisher(cfg config.App) (queue.Publisher, func()) {
	if cfg.QueueBackend != "redis" {
		return nil, func() {}
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	return queue.NewRedisQueue(redisClient.Client, queue.DefaultKey), func() { redisClient.Close() }
}
