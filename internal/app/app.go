// Package app wires every primary-side component (C1-C7, C9-C10, and the
// HTTP API) into one running process, mirroring the teacher's
// internal/app.App wiring shape.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ansiblecluster/core/internal/accessguard"
	"github.com/ansiblecluster/core/internal/agentwebhook"
	"github.com/ansiblecluster/core/internal/audit"
	"github.com/ansiblecluster/core/internal/authz"
	"github.com/ansiblecluster/core/internal/cmdb"
	"github.com/ansiblecluster/core/internal/completion"
	"github.com/ansiblecluster/core/internal/contentstore"
	"github.com/ansiblecluster/core/internal/dispatcher"
	"github.com/ansiblecluster/core/internal/logbroker"
	"github.com/ansiblecluster/core/internal/metrics"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/envutil"
	"github.com/ansiblecluster/core/internal/pkg/logger"
	"github.com/ansiblecluster/core/internal/queue"
	"github.com/ansiblecluster/core/internal/registry"
	"github.com/ansiblecluster/core/internal/server"
	"github.com/ansiblecluster/core/internal/storage"
	"github.com/ansiblecluster/core/internal/syncnotify"
	"github.com/ansiblecluster/core/internal/tracing"
)

// App holds every wired component of the primary process.
type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Router *gin.Engine
	Cfg    Config

	Registry     *registry.Registry
	Queue        *queue.Queue
	Dispatcher   *dispatcher.Dispatcher
	ContentStore *contentstore.Store
	Metrics      *metrics.Metrics

	cancel          context.CancelFunc
	tracingShutdown func(context.Context) error
}

func New() (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracingShutdown := tracing.Init(context.Background(), log)

	db, err := openDB(cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}

	workerRepo := storage.NewWorkerRepo(db, log)
	jobRepo := storage.NewJobRepo(db, log)
	roleRepo := storage.NewRoleRepo(db, log)
	userRepo := storage.NewUserRepo(db, log)
	tokenRepo := storage.NewAPITokenRepo(db, log)
	auditRepo := storage.NewAuditRepo(db, log)

	if err := seedBuiltinRoles(roleRepo); err != nil {
		log.Sync()
		return nil, fmt.Errorf("seed builtin roles: %w", err)
	}

	contentStore, err := contentstore.New(log, cfg.ContentDir)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init content store: %w", err)
	}

	logStore, err := logbroker.NewFileStore(envutil.String("LOGS_DIR", "./logs"))
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init log store: %w", err)
	}
	logBroker := logbroker.New(log, logStore)

	// The queue's change notifier needs to trigger the dispatcher, and the
	// dispatcher needs the queue as its job source — resolved by deferring
	// the dispatcher pointer behind a closure captured at queue construction
	// and filled in once both exist.
	var dispatch *dispatcher.Dispatcher
	jobQueue := queue.New(log, jobRepo, func() {
		if dispatch != nil {
			dispatch.Trigger()
		}
	})
	jobRegistry := registry.New(log, workerRepo, jobQueue, cfg.RegistrationToken, cfg.CheckinInterval)
	dispatch = dispatcher.New(log, jobQueue, jobRegistry)

	engine := authz.NewEngine(storage.RoleSourceAdapter{Repo: roleRepo})
	guard := accessguard.NewGuard(log, engine,
		storage.UserStoreAdapter{Repo: userRepo},
		storage.TokenStoreAdapter{Repo: tokenRepo},
		storage.WorkerExistsAdapter{Repo: workerRepo},
		nil,
	)

	var bus syncnotify.Bus = syncnotify.NoopBus{}
	if cfg.RedisAddr != "" {
		redisBus, err := syncnotify.NewRedisBus(log, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis sync bus unavailable, falling back to polling-only", "error", err)
		} else {
			bus = redisBus
		}
	}
	notifier := syncnotify.New(log, bus)
	contentStore.Subscribe(notifier.OnCommit)

	auditor := audit.New(log, storage.AuditAppenderAdapter{Repo: auditRepo})
	cmdbForwarder := cmdb.NewHTTPForwarder(
		envutil.String("CMDB_ENDPOINT", ""),
		envutil.Duration("CMDB_TIMEOUT", 0),
	)
	webhookClient := agentwebhook.New(log,
		envutil.String("AGENT_WEBHOOK_URL", ""),
		envutil.Duration("AGENT_WEBHOOK_TIMEOUT", 0),
	)

	pipeline := completion.New(
		log, jobQueue, storage.WorkerStatsAdapter{Repo: workerRepo}, logBroker,
		jobRegistry, cmdbForwarder, webhookClient, completion.NoopUIEmitter{},
		contentStore.CurrentRevision,
	)

	m := metrics.New()
	dispatch.SetMetrics(m)

	workerHandler := server.NewWorkerHandler(jobRegistry, jobQueue, contentStore.CurrentRevision, auditor)
	jobHandler := server.NewJobHandler(jobQueue, pipeline, logBroker, m, auditor)
	syncHandler := server.NewSyncHandler(contentStore)

	router := server.NewRouter(server.RouterConfig{
		Guard:   guard,
		Workers: workerHandler,
		Jobs:    jobHandler,
		Sync:    syncHandler,
	})

	return &App{
		Log:          log,
		DB:           db,
		Router:       router,
		Cfg:          cfg,
		Registry:     jobRegistry,
		Queue:        jobQueue,
		Dispatcher:   dispatch,
		ContentStore: contentStore,
		Metrics:      m,

		tracingShutdown: tracingShutdown,
	}, nil
}

func openDB(cfg Config) (*gorm.DB, error) {
	if cfg.UseSQLiteMemory || cfg.PostgresDSN == "" {
		return storage.OpenSQLiteMemory()
	}
	return storage.OpenPostgres(cfg.PostgresDSN)
}

func seedBuiltinRoles(repo storage.RoleRepo) error {
	ctx := context.Background()
	count, err := repo.Count(ctx, nil)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, role := range authz.BuiltinRoles {
		r := role
		if err := repo.Create(ctx, nil, &r); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the background loops (stale-worker sweep, dispatcher).
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if err := a.Registry.EnsureLocalWorker(ctx); err != nil {
		a.Log.Error("failed to ensure local worker", "error", err)
	}
	go a.Registry.RunStaleSweep(ctx)
	go a.Dispatcher.Run(ctx, a.Cfg.CheckinInterval/2)
	go a.runFleetGaugeRefresher(ctx)
}

// runFleetGaugeRefresher periodically samples fleet size so
// ansiblecluster_workers_online and ansiblecluster_queue_depth stay current
// between the events (checkin, submit) that would otherwise drive them.
func (a *App) runFleetGaugeRefresher(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshFleetGauges(ctx)
		}
	}
}

func (a *App) refreshFleetGauges(ctx context.Context) {
	workers, err := a.Registry.List(ctx)
	if err != nil {
		a.Log.Error("refresh workers_online gauge failed", "error", err)
	} else {
		online := 0
		for _, w := range workers {
			if w.Status == model.WorkerOnline {
				online++
			}
		}
		a.Metrics.WorkersOnline.Set(float64(online))
	}

	pending, err := a.Queue.Pending(ctx)
	if err != nil {
		a.Log.Error("refresh queue_depth gauge failed", "error", err)
		return
	}
	a.Metrics.QueueDepth.Set(float64(len(pending)))
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// for a bounded period before returning (spec §5's primary shutdown note).
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app: not initialized")
	}
	srv := &http.Server{Addr: a.Cfg.ListenAddr, Handler: a.Router}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.tracingShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracingShutdown(shutdownCtx); err != nil && a.Log != nil {
			a.Log.Warn("otel tracer shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
