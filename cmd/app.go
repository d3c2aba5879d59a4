package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"loadcast/app/handler"
	"loadcast/internal/jobs"
	"loadcast/internal/service"
	"loadcast/pkg/config"
	"loadcast/pkg/logger"
	"loadcast/pkg/queue/asynq"
	"loadcast/pkg/registry"
	mysqlstore "loadcast/pkg/store/mysql"
	redisstore "loadcast/pkg/store/redis"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Application wires the pipeline worker, the serving API and the background
// jobs into one process
type Application struct {
	config      *config.Config
	mysqlRepo   *mysqlstore.Repository
	redisClient *redisstore.RedisClient
	queue       *asynq.Manager
	registry    *registry.Registry
	reportCache *redisstore.ReportCache

	pipelineService *service.PipelineService
	servingService  *service.ServingService

	predictionHandler *handler.PredictionHandler
	pipelineHandler   *handler.PipelineHandler
	registryHandler   *handler.RegistryHandler

	httpServer *http.Server
	ginEngine  *gin.Engine

	jobsManager *jobs.Manager

	// ctx ends on shutdown or when a long-running component fails
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	cleanupFuncs []func()
}

type lifecycleStep struct {
	name string
	fn   func() error
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{ctx: ctx, cancel: cancel}
}

// Done is closed once the application starts shutting down
func (app *Application) Done() <-chan struct{} {
	return app.ctx.Done()
}

// Initialize builds every component in dependency order
func (app *Application) Initialize() error {
	steps := []lifecycleStep{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"MySQL", app.initMySQL},
		{"Redis", app.initRedis},
		{"Queue", app.initQueue},
		{"Service Layer", app.initServices},
		{"Served Model", app.initServedModel},
		{"Background Tasks", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}
	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}
	logger.InfoCtx(app.ctx, "Application initialization completed, serving %s", app.servingService.URI())
	return nil
}

// Start launches the run worker, the background jobs and the HTTP server. A
// failing HTTP server cancels the application.
func (app *Application) Start() error {
	if err := app.queue.Start(); err != nil {
		return fmt.Errorf("failed to start queue server: %w", err)
	}

	group, ctx := errgroup.WithContext(app.ctx)
	app.group = group

	app.jobsManager.Start()
	group.Go(func() error {
		app.jobsManager.Wait()
		return nil
	})

	group.Go(func() error {
		logger.InfoCtx(ctx, "HTTP server listening on %s", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.cancel()
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	return nil
}

// Shutdown stops accepting work, lets an active run finish within the
// queue's grace period and releases every connection. It returns the error
// that ended the application, if any.
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(context.Background(), "Starting graceful shutdown (timeout: %v)...", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	app.cancel()
	steps := []lifecycleStep{
		{"background jobs", func() error { app.jobsManager.Stop(); return nil }},
		{"HTTP server", func() error { return app.httpServer.Shutdown(shutdownCtx) }},
		{"run worker", func() error { app.queue.Stop(); return nil }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			logger.ErrorCtx(shutdownCtx, "failed to stop %s: %v", step.name, err)
		}
	}

	var runErr error
	if app.group != nil {
		done := make(chan error, 1)
		go func() { done <- app.group.Wait() }()
		select {
		case runErr = <-done:
		case <-shutdownCtx.Done():
			logger.WarnCtx(shutdownCtx, "shutdown timed out, some goroutines may still be running")
		}
	}

	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}
	logger.InfoCtx(context.Background(), "Graceful shutdown completed")
	logger.Sync()
	return runErr
}

// registerCleanup registers a function run on shutdown, in reverse order
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
