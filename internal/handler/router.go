package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edutrack/internal/httpmiddleware"
)

// RouterConfig carries the cross-cutting pieces of the HTTP surface.
type RouterConfig struct {
	AllowOrigins []string
	// Limiter throttles every route per client IP; nil disables it.
	Limiter *httpmiddleware.IPRateLimiter
	// Instructor guards the instructor routes; nil leaves them open.
	Instructor gin.HandlerFunc
	Health     map[string]func(c *gin.Context) bool
	AccessLog  bool
}

// NewRouter mounts every route on a new engine.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.AccessLog {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			SkipPaths: []string{"/healthz", "/metrics"},
		}))
	}
	r.Use(cors.New(corsConfig(cfg.AllowOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", Health(cfg.Health))

	v1 := r.Group("/v1")

	// student-facing
	v1.POST("/join", h.Join)
	v1.POST("/join/scan", h.JoinScan)
	v1.GET("/attend/:id", h.Attend)
	v1.POST("/attend/:id/wizards", h.StartWizard)

	wz := v1.Group("/wizards/:id")
	wz.GET("", h.GetWizard)
	wz.POST("/select", h.SelectStudent)
	wz.POST("/verify", h.VerifyDigits)
	wz.POST("/back", h.Back)
	wz.POST("/location", h.UpdateLocation)
	wz.POST("/biometric/sample", h.BiometricSample)
	wz.POST("/biometric/simulate", h.BiometricSimulate)
	wz.GET("/proof", h.Proof)

	v1.POST("/proofs/verify", h.VerifyProof)

	// instructor-facing
	inst := v1.Group("")
	if cfg.Instructor != nil {
		inst.Use(cfg.Instructor)
	}
	inst.POST("/sessions", h.CreateSession)
	inst.GET("/sessions", h.ListSessions)
	inst.GET("/sessions/:id", h.GetSession)
	inst.POST("/sessions/:id/end", h.EndSession)
	inst.GET("/sessions/:id/qr.png", h.SessionQR)
	inst.GET("/students", h.ListStudents)
	inst.GET("/students/:id/enrollments", h.Enrollments)
	inst.POST("/students/:id/enrollments", h.Enroll)
	inst.DELETE("/students/:id/enrollments", h.ResetEnrollments)
	inst.GET("/dashboard", h.Dashboard)
	inst.GET("/dashboard/stream", h.DashboardStream)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
