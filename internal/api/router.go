package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/snapgate/snapgate/internal/cache"
	"github.com/snapgate/snapgate/internal/compare"
	"github.com/snapgate/snapgate/internal/governor"
	"github.com/snapgate/snapgate/internal/jobs"
	"github.com/snapgate/snapgate/internal/renderer"
	"github.com/snapgate/snapgate/pkg/models"
	"github.com/snapgate/snapgate/pkg/shared"
)

const version = "1.0.0"

type Server struct {
	router         *gin.Engine
	governor       *governor.Governor
	cache          *cache.ResultCache
	comparer       *compare.Engine
	orchestrator   *jobs.Orchestrator
	renderer       renderer.Renderer
	apiKeys        map[string]struct{}
	cacheTTL       time.Duration
	captureTimeout time.Duration
	startedAt      time.Time
}

type ServerConfig struct {
	Governor     *governor.Governor
	Cache        *cache.ResultCache
	Comparer     *compare.Engine
	Orchestrator *jobs.Orchestrator
	Renderer     renderer.Renderer
	// APIKeyDigests are SHA-256 hex digests of accepted credentials.
	APIKeyDigests  []string
	CacheTTL       time.Duration
	CaptureTimeout time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	keys := make(map[string]struct{}, len(cfg.APIKeyDigests))
	for _, digest := range cfg.APIKeyDigests {
		keys[digest] = struct{}{}
	}

	s := &Server{
		router:         router,
		governor:       cfg.Governor,
		cache:          cfg.Cache,
		comparer:       cfg.Comparer,
		orchestrator:   cfg.Orchestrator,
		renderer:       cfg.Renderer,
		apiKeys:        keys,
		cacheTTL:       cfg.CacheTTL,
		captureTimeout: cfg.CaptureTimeout,
		startedAt:      time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/devices", s.listDevices)

	authed := s.router.Group("/")
	authed.Use(s.authMiddleware(), s.rateLimitMiddleware())
	{
		authed.GET("/screenshot", s.screenshotQuery)
		authed.POST("/screenshot", s.screenshot)
		authed.POST("/screenshot/async", s.asyncScreenshot)
		authed.POST("/batch", s.batchScreenshot)

		authed.GET("/jobs/:id", s.getJob)
		authed.GET("/jobs/:id/artifact", s.getJobArtifact)
		authed.GET("/jobs/:id/ws", s.watchJob)

		authed.POST("/compare", s.compareScreenshots)
		authed.GET("/comparisons/:id", s.getComparisonDiff)
		authed.POST("/baselines", s.createBaseline)
		authed.GET("/baselines/:name", s.getBaseline)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the router for httptest servers.
func (s *Server) Handler() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	components := map[string]string{
		"cache": "ok",
		"jobs":  "ok",
	}
	status := "ok"
	if probe, ok := s.renderer.(interface{ Healthy(context.Context) bool }); ok {
		if probe.Healthy(c.Request.Context()) {
			components["renderer"] = "ok"
		} else {
			components["renderer"] = "unreachable"
			status = "degraded"
		}
	}

	c.JSON(200, models.HealthResponse{
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Components:    components,
	})
}

func (s *Server) listDevices(c *gin.Context) {
	presets := make(map[string]shared.DevicePreset)
	for _, d := range shared.Devices() {
		if preset, ok := d.Preset(); ok {
			presets[string(d)] = preset
		}
	}
	c.JSON(200, models.DevicesResponse{Devices: presets})
}
