package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyRun(t *testing.T) {
	var got map[string]interface{}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewFeishuNotifier(srv.URL, false)
	ctx := context.Background()

	require.NoError(t, n.NotifyRun(ctx, &RunNotification{RunID: "r1", Succeeded: true}))
	assert.Equal(t, 0, calls, "successful runs are skipped by default")

	err := n.NotifyRun(ctx, &RunNotification{
		RunID:      "r2",
		Periods:    []string{"1-8-2021"},
		Error:      "ingest: all 1 periods failed to load",
		FinishedAt: time.Date(2021, 8, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "interactive", got["msg_type"])

	header := got["card"].(map[string]interface{})["header"].(map[string]interface{})
	assert.Equal(t, "red", header["template"])
	body, _ := json.Marshal(got)
	assert.Contains(t, string(body), "all 1 periods failed to load")
	assert.Contains(t, string(body), "2021-08-02 03:04:05")
}

func TestNotifyRun_Success(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		body, _ = json.Marshal(payload)
	}))
	defer srv.Close()

	n := NewFeishuNotifier(srv.URL, true)
	err := n.NotifyRun(context.Background(), &RunNotification{
		RunID:     "r3",
		Succeeded: true,
		Winner:    "RandomForest",
		ModelURI:  "models:/minecraft-model/Production",
		Scores:    map[string]float64{"RandomForest.r2": 0.91, "LinearRegression.r2": 0.5},
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), "RandomForest")
	assert.Contains(t, string(body), "LinearRegression.r2: 0.5000\\nRandomForest.r2: 0.9100")
}

func TestNotifyRun_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewFeishuNotifier(srv.URL, false).NotifyRun(context.Background(), &RunNotification{RunID: "r4"})
	assert.ErrorContains(t, err, "502")

	t.Setenv("FEISHU_WEBHOOK_URL", "")
	disabled := NewFeishuNotifier("", true)
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.NotifyRun(context.Background(), &RunNotification{RunID: "r5"}))
}
