package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"loadcast/app/handler"
	"loadcast/app/router"
	"loadcast/internal/service"
	"loadcast/pkg/artifact"
	"loadcast/pkg/config"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
	"loadcast/pkg/notification"
	"loadcast/pkg/queue/asynq"
	"loadcast/pkg/registry"
	"loadcast/pkg/source"
	mysqlstore "loadcast/pkg/store/mysql"
	redisstore "loadcast/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initMySQL initializes MySQL and migrates the registry tables
func (app *Application) initMySQL() error {
	repo, err := mysqlstore.NewRepository(app.config.MySQL)
	if err != nil {
		return err
	}
	if err := repo.GetDatastore().Migrate(app.ctx); err != nil {
		repo.Close()
		return err
	}

	app.mysqlRepo = repo
	app.registry = registry.New(repo.ModelVersion)
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config.Redis)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.reportCache = redisstore.NewReportCache(client)
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initQueue initializes the pipeline run queue
func (app *Application) initQueue() error {
	app.queue = asynq.NewManager(app.config.Redis, app.config.Queue)
	app.registerCleanup(func() {
		app.queue.Close()
		logger.InfoCtx(app.ctx, "Queue client has been closed")
	})
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	loader := newLoader(app.config.Source)

	runLock := redisstore.NewRunLock(
		app.redisClient.GetClient(),
		redisstore.PipelineLockKey,
		time.Duration(app.config.Queue.TaskTimeout)*time.Second,
	)

	app.pipelineService = service.NewPipelineService(
		loader,
		artifact.NewStore(app.config.Training.ArtifactDir),
		app.config.Registry.ModelName,
		app.config.Source.Periods,
		service.PipelineDeps{
			Publisher: app.registry,
			Runs:      app.mysqlRepo.PipelineRun,
			Cache:     app.reportCache,
			Lock:      runLock,
			Queue:     app.queue,
			Notifier:  notification.NewFeishuNotifier(app.config.Notification.FeishuWebhookURL, app.config.Notification.NotifySuccess),
		},
	)
	app.queue.HandleRuns(app.pipelineService.HandleTask)

	app.servingService = service.NewServingService(app.registry, app.config.Registry.ServeURI, app.reportCache)
	return nil
}

// initServedModel loads the model named by the serve URI. A registry without
// a matching version is not fatal: the refresh job picks it up once a run
// publishes one.
func (app *Application) initServedModel() error {
	err := app.servingService.Reload(app.ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, registry.ErrNotFound) {
		logger.WarnCtx(app.ctx, "no model at %s yet, predictions unavailable until a run publishes one", app.servingService.URI())
		return nil
	}
	return err
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.predictionHandler = handler.NewPredictionHandler(app.servingService)
	app.pipelineHandler = handler.NewPipelineHandler(app.pipelineService)
	app.registryHandler = handler.NewRegistryHandler(app.registry)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()

	r := router.NewRouter(app.predictionHandler, app.pipelineHandler, app.registryHandler, app.config.Server.APIKey)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}
	return nil
}

// newLoader reads periods from a local directory when one is configured and
// downloads them otherwise
func newLoader(cfg config.SourceConfig) *source.Loader {
	var fetcher source.Fetcher
	if cfg.Dir != "" {
		fetcher = source.FileFetcher{Dir: cfg.Dir}
	} else {
		fetcher = source.NewHTTPFetcher(cfg.URLTemplate, time.Duration(cfg.Timeout)*time.Second)
	}
	loader := source.NewLoader(fetcher)
	loader.OnFailure = func(period string, err error) {
		metrics.ObserveSourceFailure(period)
	}
	return loader
}
