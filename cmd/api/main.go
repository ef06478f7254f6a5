package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/biometric"
	"edutrack/internal/cloudinary"
	"edutrack/internal/config"
	"edutrack/internal/dashboard"
	"edutrack/internal/expiry"
	"edutrack/internal/faceclient"
	"edutrack/internal/handler"
	"edutrack/internal/httpmiddleware"
	"edutrack/internal/logging"
	"edutrack/internal/queue"
	"edutrack/internal/store"
	"edutrack/internal/storeclient"
	"edutrack/internal/wizard"
)

const limiterPruneInterval = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", "err", err)
	}
}

func runHTTP(cfg config.App, logger *log.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var backing storeclient.Store
	switch cfg.StoreBackend {
	case "memory":
		backing = storeclient.NewMemory()
		logger.Warn("using in-memory attendance store; data is lost on restart")
	default:
		backing = storeclient.New(cfg.StoreBaseURL, cfg.StoreTimeout)
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.WizardBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	att := attendance.NewService(backing, attendance.Options{
		Location: loc,
		Events:   q,
		Logger:   logging.Component(logger, "attendance"),
	})

	var wizards wizard.Repository
	if cfg.WizardBackend == "memory" {
		wizards = wizard.NewMemoryRepository(cfg.WizardTTL)
	} else {
		wizards = wizard.NewRedisRepository(redisClient.Client, cfg.WizardTTL)
	}

	var db *store.DB
	var faces biometric.Repository
	if cfg.EnrollmentBackend == "postgres" {
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := biometric.NewPostgresRepository(db.Client)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return err
		}
		faces = pg
	} else {
		faces = biometric.NewMemoryRepository()
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(context.Background()); err != nil {
			logger.Warn("face service not available; photo enrollment will fail until it is", "err", err)
		}
	}
	var uploader biometric.Uploader
	if cfg.CloudinaryConfigured() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info("cloudinary configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		logger.Info("cloudinary not configured; photo enrollment disabled")
	}

	wiz := wizard.NewService(att, wizards, biometric.NewDescriptorMatcher(faces, cfg.MatchDistance), wizard.Options{
		Policy:             biometric.Policy{MinConfidence: cfg.MatchConfidence, Sustain: cfg.MatchSustain},
		ProximityThreshold: cfg.ProximityThresholdMeters,
		EnforceProximity:   cfg.ProximityEnforce,
		SigningKey:         cfg.ProofSigningKey,
		Issuer:             cfg.ProofIssuer,
		Logger:             logging.Component(logger, "wizard"),
	})
	enroll := biometric.NewEnroller(faces, uploader, face)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// an in-memory queue has no worker on the other end
	if cfg.QueueBackend == "memory" {
		sched := expiry.New(att, q, cfg.ExpirySweepInterval, logging.Component(logger, "expiry"))
		go func() {
			if err := sched.Run(ctx); err != nil {
				logger.Error("expiry scheduler stopped", "err", err)
			}
		}()
	}

	dash := dashboard.NewPoller(att, cfg.DashboardPollInterval, logging.Component(logger, "dashboard"))
	go dash.Run(ctx)

	var limiter *httpmiddleware.IPRateLimiter
	if cfg.RateLimitPerMin > 0 {
		limiter = httpmiddleware.NewIPRateLimiter(cfg.RateLimitPerMin, 0)
		go pruneLimiter(ctx, limiter)
	}

	var instructor gin.HandlerFunc
	if cfg.InstructorAuth {
		instructor = auth.RequireInstructor(cfg.ProofSigningKey, cfg.ProofIssuer)
	}

	health := map[string]func(*gin.Context) bool{}
	if redisClient != nil {
		health["redis"] = func(c *gin.Context) bool { return redisClient.Healthy(c.Request.Context()) }
	}
	if db != nil {
		health["db"] = func(c *gin.Context) bool { return db.Healthy(c.Request.Context()) }
	}

	h := handler.New(att, wiz, enroll, dash, cfg.PublicBaseURL, logging.Component(logger, "http"))
	r := handler.NewRouter(h, handler.RouterConfig{
		AllowOrigins: cfg.CORSOrigins,
		Limiter:      limiter,
		Instructor:   instructor,
		Health:       health,
		AccessLog:    !cfg.Production(),
	})

	// WriteTimeout stays off so the dashboard stream is not cut.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", srv.Addr, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "err", err)
	}

	logger.Info("server exited")
	return nil
}

func pruneLimiter(ctx context.Context, l *httpmiddleware.IPRateLimiter) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}
