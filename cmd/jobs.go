package main

import (
	"time"

	"loadcast/internal/jobs"
	"loadcast/pkg/source"
	redisstore "loadcast/pkg/store/redis"
)

const retrainClaimPrefix = "loadcast:retrain"

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	refreshInterval := time.Duration(app.config.Jobs.RefreshInterval) * time.Second
	manager.Register(jobs.NewModelRefreshJob(refreshInterval, app.servingService))

	if app.config.Jobs.RetrainEnabled {
		retrainInterval := time.Duration(app.config.Jobs.RetrainInterval) * time.Second
		// Replicas share one schedule; each slot is claimed once and kept until it expires
		claims := redisstore.NewScheduleClaim(app.redisClient.GetClient(), retrainClaimPrefix, max(retrainInterval, time.Minute))

		var periods func(time.Time) []string
		if len(app.config.Source.Periods) == 0 {
			periods = previousDay
		}
		manager.Register(jobs.NewRetrainJob(retrainInterval, app.config.Jobs.RetrainAligned, app.pipelineService, claims, periods))
	}

	app.jobsManager = manager
	return nil
}

// previousDay selects the last complete daily period
func previousDay(now time.Time) []string {
	return []string{source.PeriodFor(now.UTC().AddDate(0, 0, -1))}
}
