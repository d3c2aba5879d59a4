package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loadcast/pkg/config"
	"loadcast/pkg/logger"

	"github.com/hibiken/asynq"
)

const (
	TypePipelineRun = "pipeline:run"

	defaultQueue = "default"
)

// ErrRunNotQueued is returned when cancelling a run that is not waiting in the queue
var ErrRunNotQueued = errors.New("run not queued")

// RunTask is the payload of a pipeline:run task
type RunTask struct {
	RunID   string   `json:"run_id"`
	Periods []string `json:"periods,omitempty"`
	Trigger string   `json:"trigger"`
}

// RunHandler executes a dequeued pipeline run
type RunHandler func(ctx context.Context, task RunTask) error

// Manager queue manager
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	inspector *asynq.Inspector
	mux       *asynq.ServeMux

	timeout  time.Duration
	maxRetry int
}

// NewManager creates queue manager
func NewManager(redisCfg config.RedisConfig, queueCfg config.QueueConfig) *Manager {
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: queueCfg.Concurrency,
			Queues: map[string]int{
				defaultQueue: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	return &Manager{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		inspector: asynq.NewInspector(redisOpt),
		mux:       asynq.NewServeMux(),
		timeout:   time.Duration(queueCfg.TaskTimeout) * time.Second,
		maxRetry:  queueCfg.MaxRetry,
	}
}

// EnqueueRun enqueues a pipeline run. The run id doubles as the task id, so
// enqueueing the same run twice fails.
func (m *Manager) EnqueueRun(ctx context.Context, task RunTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal run task: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(task.RunID),
		asynq.Queue(defaultQueue),
		asynq.Timeout(m.timeout),
		asynq.MaxRetry(m.maxRetry),
	}

	info, err := m.client.EnqueueContext(ctx, asynq.NewTask(TypePipelineRun, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue run: %w", err)
	}

	logger.InfoCtx(ctx, "pipeline run enqueued, run_id: %s, queue: %s", task.RunID, info.Queue)
	return nil
}

// HandleRuns registers the pipeline:run handler
func (m *Manager) HandleRuns(handler RunHandler) {
	m.mux.HandleFunc(TypePipelineRun, func(ctx context.Context, t *asynq.Task) error {
		var task RunTask
		if err := json.Unmarshal(t.Payload(), &task); err != nil {
			// A malformed payload will never succeed
			return fmt.Errorf("invalid run payload: %v: %w", err, asynq.SkipRetry)
		}
		return handler(ctx, task)
	})
}

// CancelRun deletes a run that has not started yet
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	if err := m.inspector.DeleteTask(defaultQueue, runID); err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotQueued, runID)
		}
		return fmt.Errorf("failed to cancel run: %w", err)
	}
	logger.InfoCtx(ctx, "pipeline run cancelled, run_id: %s", runID)
	return nil
}

// Start starts queue processor
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes client and inspector
func (m *Manager) Close() error {
	m.inspector.Close()
	return m.client.Close()
}
