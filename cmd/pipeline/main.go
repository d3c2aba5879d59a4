// Command pipeline runs one ingest, train and publish cycle in the foreground
// and prints the run summary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loadcast/internal/model"
	"loadcast/internal/service"
	"loadcast/pkg/artifact"
	"loadcast/pkg/config"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
	"loadcast/pkg/notification"
	"loadcast/pkg/registry"
	"loadcast/pkg/source"
	mysqlstore "loadcast/pkg/store/mysql"
	redisstore "loadcast/pkg/store/redis"

	"github.com/spf13/pflag"
	"github.com/tidwall/pretty"
)

type options struct {
	configPath  string
	periods     []string
	dir         string
	artifactDir string
	publish     bool
	cache       bool
}

func main() {
	opts := options{}
	pflag.StringVar(&opts.configPath, "config", envOr("CONFIG_PATH", "config/config.yaml"), "configuration file; missing files fall back to defaults")
	pflag.StringSliceVar(&opts.periods, "period", nil, "period to load, e.g. 1-8-2021 (repeatable, overrides the configured periods)")
	pflag.StringVar(&opts.dir, "dir", "", "read <dir>/<period>.csv instead of downloading")
	pflag.StringVar(&opts.artifactDir, "artifact-dir", "", "directory for the model and report artifacts")
	pflag.BoolVar(&opts.publish, "publish", false, "register the winner in the MySQL model registry and record the run")
	pflag.BoolVar(&opts.cache, "cache", false, "cache the run summary in Redis and hold the pipeline lock")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		logger.ErrorCtx(ctx, "%v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := logger.InitWithConfig(cfg.Logger); err != nil {
		return err
	}
	if opts.dir != "" {
		cfg.Source.Dir = opts.dir
	}
	if opts.artifactDir != "" {
		cfg.Training.ArtifactDir = opts.artifactDir
	}

	deps := service.PipelineDeps{
		Notifier: notification.NewFeishuNotifier(cfg.Notification.FeishuWebhookURL, cfg.Notification.NotifySuccess),
	}
	if opts.publish {
		repo, err := mysqlstore.NewRepository(cfg.MySQL)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.GetDatastore().Migrate(ctx); err != nil {
			return err
		}
		deps.Publisher = registry.New(repo.ModelVersion)
		deps.Runs = repo.PipelineRun
	}
	if opts.cache {
		client, err := redisstore.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Cache = redisstore.NewReportCache(client)
		deps.Lock = redisstore.NewRunLock(client.GetClient(), redisstore.PipelineLockKey, time.Duration(cfg.Queue.TaskTimeout)*time.Second)
	}

	loader := source.NewLoader(fetcherFor(cfg.Source))
	loader.OnFailure = func(period string, err error) {
		metrics.ObserveSourceFailure(period)
	}

	svc := service.NewPipelineService(loader, artifact.NewStore(cfg.Training.ArtifactDir), cfg.Registry.ModelName, cfg.Source.Periods, deps)
	summary, runErr := svc.Run(ctx, &model.RunRequest{Periods: opts.periods, Trigger: model.TriggerCLI})
	if summary != nil {
		out, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		os.Stdout.Write(pretty.Pretty(out))
	}
	if runErr != nil {
		return fmt.Errorf("pipeline run failed: %w", runErr)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Parse(nil)
	}
	return cfg, err
}

func fetcherFor(cfg config.SourceConfig) source.Fetcher {
	if cfg.Dir != "" {
		return source.FileFetcher{Dir: cfg.Dir}
	}
	return source.NewHTTPFetcher(cfg.URLTemplate, time.Duration(cfg.Timeout)*time.Second)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
