package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	latestReportKey  = "loadcast:report:latest"
	latestRunKey     = "loadcast:run:latest"
	runSummaryPrefix = "loadcast:run:" // loadcast:run:{run_id}
	runSummaryTTL    = 7 * 24 * time.Hour
)

// ErrNotCached is returned when a key has no cached value
var ErrNotCached = fmt.Errorf("not cached")

// ReportCache keeps the latest load report and pipeline run summaries
type ReportCache struct {
	redis *redis.Client
}

// NewReportCache creates a report cache
func NewReportCache(redisClient *RedisClient) *ReportCache {
	return &ReportCache{
		redis: redisClient.GetClient(),
	}
}

// SaveReport stores the report as the latest one
func (c *ReportCache) SaveReport(ctx context.Context, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := c.redis.Set(ctx, latestReportKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// LatestReport returns the raw JSON of the latest report
func (c *ReportCache) LatestReport(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, latestReportKey)
}

// SaveRun stores a run summary and marks it as the latest run
func (c *ReportCache) SaveRun(ctx context.Context, runID string, summary any) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, runSummaryPrefix+runID, data, runSummaryTTL)
	pipe.Set(ctx, latestRunKey, data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

// Run returns the raw JSON summary of a run
func (c *ReportCache) Run(ctx context.Context, runID string) (json.RawMessage, error) {
	return c.get(ctx, runSummaryPrefix+runID)
}

// LatestRun returns the raw JSON summary of the most recent run
func (c *ReportCache) LatestRun(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, latestRunKey)
}

func (c *ReportCache) get(ctx context.Context, key string) (json.RawMessage, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return json.RawMessage(data), nil
}
