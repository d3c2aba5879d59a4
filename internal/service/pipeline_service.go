package service

import (
	"context"
	"fmt"
	"time"

	"loadcast/internal/model"
	"loadcast/pkg/dataset"
	"loadcast/pkg/features"
	"loadcast/pkg/frame"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
	"loadcast/pkg/ml"
	"loadcast/pkg/notification"
	"loadcast/pkg/queue/asynq"
	"loadcast/pkg/registry"
	mysqlModel "loadcast/pkg/store/mysql/model"
	"loadcast/pkg/training"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when another run holds the pipeline lock
var ErrRunInProgress = fmt.Errorf("another pipeline run is in progress")

// TableLoader loads the raw samples of the requested periods
type TableLoader interface {
	LoadPeriods(ctx context.Context, periods []string) (frame.Table, error)
}

// ModelPublisher registers a trained artifact and promotes it to serving
type ModelPublisher interface {
	Publish(ctx context.Context, name, artifactPath string, meta registry.Metadata) (*mysqlModel.ModelVersion, string, error)
}

// RunStore persists run records
type RunStore interface {
	Create(ctx context.Context, run *mysqlModel.PipelineRun) error
	Update(ctx context.Context, run *mysqlModel.PipelineRun) error
	Get(ctx context.Context, runID string) (*mysqlModel.PipelineRun, error)
	List(ctx context.Context, limit int) ([]*mysqlModel.PipelineRun, error)
}

// RunCache keeps run summaries for quick lookup
type RunCache interface {
	SaveRun(ctx context.Context, runID string, summary any) error
}

// Locker serializes runs across processes
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// RunEnqueuer queues runs for the worker
type RunEnqueuer interface {
	EnqueueRun(ctx context.Context, task asynq.RunTask) error
	CancelRun(ctx context.Context, runID string) error
}

// RunNotifier reports finished runs
type RunNotifier interface {
	NotifyRun(ctx context.Context, n *notification.RunNotification) error
}

// PipelineDeps optional collaborators of the pipeline service; nil fields
// disable the matching step
type PipelineDeps struct {
	Publisher ModelPublisher
	Runs      RunStore
	Cache     RunCache
	Lock      Locker
	Queue     RunEnqueuer
	Notifier  RunNotifier
}

// PipelineService runs ingest, feature engineering, training, evaluation and
// publication as one sequential job
type PipelineService struct {
	loader    TableLoader
	artifacts training.ArtifactWriter
	modelName string
	periods   []string
	deps      PipelineDeps
	now       func() time.Time
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(loader TableLoader, artifacts training.ArtifactWriter, modelName string, defaultPeriods []string, deps PipelineDeps) *PipelineService {
	return &PipelineService{
		loader:    loader,
		artifacts: artifacts,
		modelName: modelName,
		periods:   defaultPeriods,
		deps:      deps,
		now:       time.Now,
	}
}

// Submit records a pending run and enqueues it
func (s *PipelineService) Submit(ctx context.Context, req *model.RunRequest) (*model.SubmitRunResponse, error) {
	if s.deps.Queue == nil {
		return nil, fmt.Errorf("pipeline queue is not configured")
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = model.TriggerAPI
	}
	periods := s.resolvePeriods(req.Periods)
	if len(periods) == 0 {
		return nil, fmt.Errorf("no periods requested and none configured")
	}

	if s.deps.Runs != nil {
		record := &mysqlModel.PipelineRun{
			RunID:   runID,
			Status:  mysqlModel.RunStatusPending,
			Trigger: trigger,
			Periods: mysqlModel.JSONStringArray(periods),
		}
		if err := s.deps.Runs.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}

	if err := s.deps.Queue.EnqueueRun(ctx, asynq.RunTask{RunID: runID, Periods: periods, Trigger: trigger}); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "pipeline run submitted, run_id: %s, periods: %v", runID, periods)
	return &model.SubmitRunResponse{RunID: runID, Status: model.RunStatusPending}, nil
}

// Cancel removes a queued run before it starts and marks its record failed
func (s *PipelineService) Cancel(ctx context.Context, runID string) error {
	if s.deps.Queue == nil {
		return fmt.Errorf("pipeline queue is not configured")
	}
	if err := s.deps.Queue.CancelRun(ctx, runID); err != nil {
		return err
	}
	if s.deps.Runs == nil {
		return nil
	}
	record, err := s.deps.Runs.Get(ctx, runID)
	if err != nil || record == nil {
		return err
	}
	finished := s.now()
	msg := "cancelled before start"
	record.Status = mysqlModel.RunStatusFailed
	record.Error = &msg
	record.FinishedAt = &finished
	return s.deps.Runs.Update(ctx, record)
}

// HandleTask executes a run dequeued from the queue
func (s *PipelineService) HandleTask(ctx context.Context, task asynq.RunTask) error {
	_, err := s.Run(ctx, &model.RunRequest{RunID: task.RunID, Periods: task.Periods, Trigger: task.Trigger})
	return err
}

// Run executes one pipeline run to completion. The summary is returned even
// when the run fails.
func (s *PipelineService) Run(ctx context.Context, req *model.RunRequest) (*model.RunSummary, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	ctx = logger.WithTraceID(ctx, runID)

	if s.deps.Lock != nil {
		ok, err := s.deps.Lock.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := s.deps.Lock.Unlock(context.Background()); err != nil {
				logger.WarnCtx(ctx, "failed to release pipeline lock: %v", err)
			}
		}()
	}

	summary := &model.RunSummary{
		RunID:     runID,
		Status:    model.RunStatusRunning,
		Trigger:   req.Trigger,
		Periods:   s.resolvePeriods(req.Periods),
		StartedAt: s.now(),
	}
	if summary.Trigger == "" {
		summary.Trigger = model.TriggerAPI
	}
	record := s.startRecord(ctx, summary)

	logger.InfoCtx(ctx, "pipeline run started, periods: %v", summary.Periods)
	runErr := s.execute(ctx, summary)

	finished := s.now()
	summary.FinishedAt = &finished
	if runErr != nil {
		summary.Status = model.RunStatusFailed
		summary.Error = runErr.Error()
		logger.ErrorCtx(ctx, "pipeline run failed: %v", runErr)
	} else {
		summary.Status = model.RunStatusSucceeded
		logger.InfoCtx(ctx, "pipeline run succeeded, winner: %s, uri: %s", summary.Winner, summary.ModelURI)
	}
	metrics.ObserveRun(string(summary.Status))
	s.finishRecord(ctx, record, summary)

	return summary, runErr
}

func featureTable(raw frame.Table) (frame.Table, int, error) {
	samples, skipped, err := features.ParseSamples(raw)
	if err != nil {
		return frame.Table{}, skipped, err
	}
	return features.ToTable(features.Build(samples)), skipped, nil
}

func (s *PipelineService) execute(ctx context.Context, summary *model.RunSummary) error {
	if len(summary.Periods) == 0 {
		return fmt.Errorf("no periods requested and none configured")
	}

	start := time.Now()
	raw, err := s.loader.LoadPeriods(ctx, summary.Periods)
	metrics.ObserveStage("ingest", start)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	start = time.Now()
	table, skipped, err := featureTable(raw)
	metrics.ObserveStage("features", start)
	if err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if skipped > 0 {
		logger.WarnCtx(ctx, "skipped %d unparseable rows", skipped)
	}

	start = time.Now()
	ds, err := dataset.SelectAndClean(table)
	metrics.ObserveStage("select", start)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	summary.Server = ds.Provenance.Server
	summary.Rows = ds.Len()
	summary.Dropped = ds.Dropped
	metrics.SetDroppedRows(ds.Dropped)
	logger.InfoCtx(ctx, "selected server %s: %d rows, %d dropped", ds.Provenance.Server, ds.Len(), ds.Dropped)

	start = time.Now()
	trained, err := training.Train(ctx, ml.NewCandidates(), ds)
	metrics.ObserveStage("train", start)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	start = time.Now()
	selected, err := training.NewEvaluator(s.artifacts).WithClock(s.now).EvaluateAndSelect(ctx, trained, ds)
	metrics.ObserveStage("evaluate", start)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	summary.Winner = selected.Name
	summary.ModelPath = selected.ModelPath
	summary.ReportPath = selected.ReportPath
	for _, r := range selected.Results {
		summary.Scores = append(summary.Scores, model.CandidateScore{Name: r.Name, MAE: r.MeanAbsoluteError, R2: r.RSquared})
		metrics.SetModelScore(r.Name, "mae", r.MeanAbsoluteError)
		metrics.SetModelScore(r.Name, "r2", r.RSquared)
	}

	if s.deps.Publisher == nil {
		return nil
	}
	start = time.Now()
	version, uri, err := s.deps.Publisher.Publish(ctx, s.modelName, selected.ModelPath, registry.Metadata{
		RunID:   summary.RunID,
		Server:  selected.Server,
		Metrics: scoreMetrics(summary.Scores),
	})
	metrics.ObserveStage("publish", start)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	summary.ModelVersion = version.Version
	summary.ModelURI = uri
	return nil
}

// GetRun retrieves a run record
func (s *PipelineService) GetRun(ctx context.Context, runID string) (*mysqlModel.PipelineRun, error) {
	if s.deps.Runs == nil {
		return nil, fmt.Errorf("run history is not configured")
	}
	return s.deps.Runs.Get(ctx, runID)
}

// ListRuns retrieves recent run records
func (s *PipelineService) ListRuns(ctx context.Context, limit int) ([]*mysqlModel.PipelineRun, error) {
	if s.deps.Runs == nil {
		return nil, fmt.Errorf("run history is not configured")
	}
	return s.deps.Runs.List(ctx, limit)
}

func (s *PipelineService) resolvePeriods(periods []string) []string {
	if len(periods) > 0 {
		return periods
	}
	return append([]string(nil), s.periods...)
}

func (s *PipelineService) startRecord(ctx context.Context, summary *model.RunSummary) *mysqlModel.PipelineRun {
	if s.deps.Runs == nil {
		return nil
	}
	started := summary.StartedAt
	record, err := s.deps.Runs.Get(ctx, summary.RunID)
	if err != nil {
		logger.WarnCtx(ctx, "failed to load run record: %v", err)
		return nil
	}
	if record == nil {
		record = &mysqlModel.PipelineRun{
			RunID:     summary.RunID,
			Status:    mysqlModel.RunStatusRunning,
			Trigger:   summary.Trigger,
			Periods:   mysqlModel.JSONStringArray(summary.Periods),
			StartedAt: &started,
		}
		if err := s.deps.Runs.Create(ctx, record); err != nil {
			logger.WarnCtx(ctx, "failed to create run record: %v", err)
			return nil
		}
		return record
	}
	record.Status = mysqlModel.RunStatusRunning
	record.StartedAt = &started
	if err := s.deps.Runs.Update(ctx, record); err != nil {
		logger.WarnCtx(ctx, "failed to update run record: %v", err)
	}
	return record
}

func (s *PipelineService) finishRecord(ctx context.Context, record *mysqlModel.PipelineRun, summary *model.RunSummary) {
	if record != nil {
		record.Status = string(summary.Status)
		record.Server = summary.Server
		record.Winner = summary.Winner
		record.Dropped = summary.Dropped
		record.ModelVersion = summary.ModelVersion
		record.ModelURI = summary.ModelURI
		record.ModelPath = summary.ModelPath
		record.ReportPath = summary.ReportPath
		record.FinishedAt = summary.FinishedAt
		record.Metrics = mysqlModel.FloatMapToJSONMap(scoreMetrics(summary.Scores))
		if summary.Error != "" {
			msg := summary.Error
			record.Error = &msg
		}
		if err := s.deps.Runs.Update(ctx, record); err != nil {
			logger.WarnCtx(ctx, "failed to update run record: %v", err)
		}
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.SaveRun(ctx, summary.RunID, summary); err != nil {
			logger.WarnCtx(ctx, "failed to cache run summary: %v", err)
		}
	}

	if s.deps.Notifier != nil {
		n := &notification.RunNotification{
			RunID:     summary.RunID,
			Succeeded: summary.Status == model.RunStatusSucceeded,
			Trigger:   summary.Trigger,
			Periods:   summary.Periods,
			Server:    summary.Server,
			Winner:    summary.Winner,
			Scores:    scoreMetrics(summary.Scores),
			ModelURI:  summary.ModelURI,
			Error:     summary.Error,
		}
		if summary.FinishedAt != nil {
			n.FinishedAt = *summary.FinishedAt
		}
		if err := s.deps.Notifier.NotifyRun(ctx, n); err != nil {
			logger.WarnCtx(ctx, "failed to send run notification: %v", err)
		}
	}
}

// scoreMetrics flattens scores into <model>.mae and <model>.r2 keys
func scoreMetrics(scores []model.CandidateScore) map[string]float64 {
	out := make(map[string]float64, 2*len(scores))
	for _, sc := range scores {
		out[sc.Name+".mae"] = sc.MAE
		out[sc.Name+".r2"] = sc.R2
	}
	return out
}
