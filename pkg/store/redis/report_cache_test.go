package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewReportCache(WrapClient(client)), mr
}

func TestReportCache_Report(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, err := cache.LatestReport(ctx)
	assert.ErrorIs(t, err, ErrNotCached)

	require.NoError(t, cache.SaveReport(ctx, map[string]any{"clusters": []int{1, 2}}))

	raw, err := cache.LatestReport(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clusters":[1,2]}`, string(raw))
}

func TestReportCache_Runs(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	_, err := cache.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrNotCached)

	require.NoError(t, cache.SaveRun(ctx, "run-1", map[string]string{"status": "FAILED"}))
	require.NoError(t, cache.SaveRun(ctx, "run-2", map[string]string{"status": "SUCCEEDED"}))

	raw, err := cache.Run(ctx, "run-1")
	require.NoError(t, err)
	var first map[string]string
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.Equal(t, "FAILED", first["status"])

	raw, err = cache.LatestRun(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"SUCCEEDED"}`, string(raw))

	// Per-run entries expire, the latest pointer does not
	assert.Greater(t, mr.TTL(runSummaryPrefix+"run-1"), time.Duration(0))

	_, err = cache.Run(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestReportCache_UnencodableValue(t *testing.T) {
	cache, _ := newTestCache(t)
	assert.Error(t, cache.SaveReport(context.Background(), make(chan int)))
}
