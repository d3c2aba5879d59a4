// Package jobs schedules the background work of the server: periodic
// retraining and keeping the served model in step with the registry.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
)

const defaultInterval = time.Minute

// Job is a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// AlignedJob starts on a multiple of its interval, e.g. at midnight for a
// daily job.
type AlignedJob interface {
	Job
	AlignToInterval() bool
}

// DeferredJob waits one interval before its first run instead of running at
// startup.
type DeferredJob interface {
	Job
	SkipInitialRun() bool
}

// Manager runs registered jobs until its context ends.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    []Job
	started bool
	wg      sync.WaitGroup
}

// NewManager creates a job manager bound to parent.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// Register adds a job. Jobs registered after Start are ignored.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

// Start launches every registered job once; later calls do nothing.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	for _, job := range m.jobs {
		m.wg.Add(1)
		go m.loop(job)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func intervalOf(job Job) time.Duration {
	if d := job.Interval(); d > 0 {
		return d
	}
	return defaultInterval
}

// firstDelay returns how long a job waits before its first run.
func firstDelay(job Job, now time.Time) time.Duration {
	interval := intervalOf(job)
	if aligned, ok := job.(AlignedJob); ok && aligned.AlignToInterval() {
		return now.Truncate(interval).Add(interval).Sub(now)
	}
	if deferred, ok := job.(DeferredJob); ok && deferred.SkipInitialRun() {
		return interval
	}
	return 0
}

func (m *Manager) loop(job Job) {
	defer m.wg.Done()

	interval := intervalOf(job)
	delay := firstDelay(job, time.Now())
	if delay > 0 {
		logger.InfoCtx(m.ctx, "job %s first runs at %s", job.Name(), time.Now().Add(delay).Format("2006-01-02 15:04:05"))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
			m.execute(job)
			timer.Reset(interval)
		}
	}
}

func (m *Manager) execute(job Job) {
	ctx := logger.WithTraceID(m.ctx, fmt.Sprintf("%s-%d", job.Name(), time.Now().Unix()))
	start := time.Now()
	outcome := "success"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			logger.ErrorCtx(ctx, "job %s panicked: %v", job.Name(), r)
		}
		metrics.ObserveJob(job.Name(), outcome, start)
	}()

	if err := job.Run(ctx); err != nil {
		outcome = "error"
		logger.WarnCtx(ctx, "job %s failed: %v", job.Name(), err)
	}
}
