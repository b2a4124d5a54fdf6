package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ansiblecluster/core/internal/accessguard"
)

// RouterConfig wires every handler and the guard into the gin engine;
// a nil handler simply skips registering its routes, matching the
// teacher's nil-checked RouterConfig pattern.
type RouterConfig struct {
	Guard   *accessguard.Guard
	Workers *WorkerHandler
	Jobs    *JobHandler
	Sync    *SyncHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("ansiblecluster"))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-API-Token", "X-Worker-Id"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Worker-primary API (spec §6): registration is gated on the shared
	// registration token inside registry.Register itself, not on a
	// permission string, so it stays outside RequirePermission.
	if cfg.Workers != nil {
		api.POST("/workers/register", cfg.Workers.Register)
	}

	worker := api.Group("/")
	if cfg.Guard != nil {
		worker.Use(cfg.Guard.RequireWorker())
	}
	if cfg.Workers != nil {
		worker.POST("/workers/:id/checkin", cfg.Workers.Checkin)
		worker.GET("/workers/:id/jobs", cfg.Workers.Jobs)
	}
	if cfg.Jobs != nil {
		worker.POST("/jobs/:id/start", cfg.Jobs.Start)
		worker.POST("/jobs/:id/log/stream", cfg.Jobs.LogStream)
		worker.POST("/jobs/:id/complete", cfg.Jobs.Complete)
	}
	if cfg.Sync != nil {
		worker.GET("/sync/revision", cfg.Sync.Revision)
		worker.GET("/sync/manifest", cfg.Sync.Manifest)
		worker.GET("/sync/archive", cfg.Sync.Archive)
		worker.GET("/sync/file/*path", cfg.Sync.File)
	}

	// Client-facing API: gated per-route on the permission named in spec §4.5.
	if cfg.Jobs != nil {
		submit := api.Group("/")
		view := api.Group("/")
		cancel := api.Group("/")
		if cfg.Guard != nil {
			submit.Use(cfg.Guard.RequirePermission("jobs:submit"))
			view.Use(cfg.Guard.RequirePermission("jobs:view"))
			cancel.Use(cfg.Guard.RequirePermission("jobs:cancel"))
		}
		submit.POST("/jobs", cfg.Jobs.Submit)
		view.GET("/jobs", cfg.Jobs.List)
		view.GET("/jobs/:id", cfg.Jobs.Get)
		view.GET("/jobs/:id/log", cfg.Jobs.LogFollow)
		cancel.POST("/jobs/:id/cancel", cfg.Jobs.Cancel)
	}

	if cfg.Workers != nil {
		adminWorkers := api.Group("/")
		if cfg.Guard != nil {
			adminWorkers.Use(cfg.Guard.RequirePermission("workers:view"))
		}
		adminWorkers.GET("/workers", cfg.Workers.List)
		adminWorkers.GET("/workers/:id", cfg.Workers.Get)
	}
	if cfg.Workers != nil {
		adminDelete := api.Group("/")
		if cfg.Guard != nil {
			adminDelete.Use(cfg.Guard.RequirePermission("workers:manage"))
		}
		adminDelete.DELETE("/workers/:id", cfg.Workers.Delete)
	}

	return r
}
