package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loadcast/internal/model"
	"loadcast/pkg/logger"
)

// RunSubmitter enqueues pipeline runs
type RunSubmitter interface {
	Submit(ctx context.Context, req *model.RunRequest) (*model.SubmitRunResponse, error)
}

// ModelRefresher reloads the served model when the registry moved on
type ModelRefresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// SlotClaimer grants a schedule slot to a single replica. Claims are not
// released, so a slot is submitted at most once however the replicas interleave.
type SlotClaimer interface {
	Claim(ctx context.Context, slot string) (bool, error)
}

// RetrainJob periodically submits a pipeline run.
type RetrainJob struct {
	interval time.Duration
	aligned  bool
	pipeline RunSubmitter
	claims   SlotClaimer
	periods  func(now time.Time) []string
	now      func() time.Time
}

// NewRetrainJob creates a retrain job. periods picks the periods of a run from
// the current time; nil leaves the choice to the pipeline's defaults.
func NewRetrainJob(interval time.Duration, aligned bool, pipeline RunSubmitter, claims SlotClaimer, periods func(now time.Time) []string) *RetrainJob {
	return &RetrainJob{
		interval: interval,
		aligned:  aligned,
		pipeline: pipeline,
		claims:   claims,
		periods:  periods,
		now:      time.Now,
	}
}

func (j *RetrainJob) Name() string {
	return "pipeline-retrain"
}

func (j *RetrainJob) Interval() time.Duration {
	return j.interval
}

func (j *RetrainJob) AlignToInterval() bool {
	return j.aligned
}

// SkipInitialRun avoids retraining on every restart.
func (j *RetrainJob) SkipInitialRun() bool {
	return true
}

func (j *RetrainJob) Run(ctx context.Context) error {
	if j.pipeline == nil {
		return fmt.Errorf("pipeline service not configured")
	}

	now := j.now()
	req := &model.RunRequest{Trigger: model.TriggerSchedule}
	if j.periods != nil {
		req.Periods = j.periods(now)
	}

	if j.claims != nil {
		slot := j.slot(now, req.Periods)
		won, err := j.claims.Claim(ctx, slot)
		if err != nil {
			return err
		}
		if !won {
			logger.DebugCtx(ctx, "retrain slot %s already submitted by another instance", slot)
			return nil
		}
	}

	resp, err := j.pipeline.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit scheduled run: %w", err)
	}
	logger.InfoCtx(ctx, "scheduled pipeline run %s submitted", resp.RunID)
	return nil
}

// slot names the schedule tick a run belongs to: its periods when known,
// otherwise the interval boundary the tick falls in.
func (j *RetrainJob) slot(now time.Time, periods []string) string {
	if len(periods) > 0 {
		return strings.Join(periods, ",")
	}
	if j.interval <= 0 {
		return now.UTC().Format("20060102T150405")
	}
	return now.UTC().Truncate(j.interval).Format("20060102T150405")
}

// ModelRefreshJob keeps the served model in step with the registry.
type ModelRefreshJob struct {
	interval time.Duration
	serving  ModelRefresher
}

// NewModelRefreshJob creates a model refresh job
func NewModelRefreshJob(interval time.Duration, serving ModelRefresher) *ModelRefreshJob {
	return &ModelRefreshJob{interval: interval, serving: serving}
}

func (j *ModelRefreshJob) Name() string {
	return "model-refresh"
}

func (j *ModelRefreshJob) Interval() time.Duration {
	return j.interval
}

func (j *ModelRefreshJob) Run(ctx context.Context) error {
	if j.serving == nil {
		return fmt.Errorf("serving service not configured")
	}
	reloaded, err := j.serving.Refresh(ctx)
	if err != nil {
		return err
	}
	if reloaded {
		logger.InfoCtx(ctx, "served model refreshed from registry")
	}
	return nil
}
