package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"loadcast/pkg/logger"
)

// RunNotification describes a finished pipeline run
type RunNotification struct {
	RunID      string
	Succeeded  bool
	Trigger    string
	Periods    []string
	Server     string
	Winner     string
	Scores     map[string]float64
	ModelURI   string
	Error      string
	FinishedAt time.Time
}

// FeishuNotifier posts run outcomes to a Feishu (Lark) bot
type FeishuNotifier struct {
	webhookURL    string
	notifySuccess bool
	client        *http.Client
}

// NewFeishuNotifier creates a notifier. An empty webhookURL falls back to the
// FEISHU_WEBHOOK_URL environment variable; with neither, notifications are
// disabled.
func NewFeishuNotifier(webhookURL string, notifySuccess bool) *FeishuNotifier {
	if webhookURL == "" {
		webhookURL = os.Getenv("FEISHU_WEBHOOK_URL")
		if webhookURL != "" {
			logger.Info("Using Feishu webhook URL from environment variable")
		}
	}
	if webhookURL == "" {
		logger.WarnCtx(context.Background(), "Feishu webhook URL not configured, run notifications will be disabled")
	}

	return &FeishuNotifier{
		webhookURL:    webhookURL,
		notifySuccess: notifySuccess,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook is configured
func (f *FeishuNotifier) Enabled() bool {
	return f.webhookURL != ""
}

// NotifyRun sends the outcome of a run. Successful runs are only sent when
// configured to.
func (f *FeishuNotifier) NotifyRun(ctx context.Context, n *RunNotification) error {
	if !f.Enabled() || (n.Succeeded && !f.notifySuccess) {
		return nil
	}

	payload, err := json.Marshal(buildRunCard(n))
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "Feishu notification sent for run: %s", n.RunID)
	return nil
}

func lark(content string) map[string]interface{} {
	return map[string]interface{}{"content": content, "tag": "lark_md"}
}

func shortField(content string) map[string]interface{} {
	return map[string]interface{}{"is_short": true, "text": lark(content)}
}

// buildRunCard builds the interactive message card of a run
func buildRunCard(n *RunNotification) map[string]interface{} {
	template, title := "green", "Pipeline run succeeded"
	if !n.Succeeded {
		template, title = "red", "Pipeline run failed"
	}

	elements := []interface{}{
		map[string]interface{}{
			"tag":  "div",
			"text": lark(fmt.Sprintf("**Run**: %s\n**Periods**: %s", n.RunID, strings.Join(n.Periods, ", "))),
		},
		map[string]interface{}{"tag": "hr"},
		map[string]interface{}{
			"tag": "div",
			"fields": []interface{}{
				shortField(fmt.Sprintf("**Server**\n%s", orDash(n.Server))),
				shortField(fmt.Sprintf("**Trigger**\n%s", orDash(n.Trigger))),
			},
		},
	}

	if n.Succeeded {
		elements = append(elements, map[string]interface{}{
			"tag": "div",
			"fields": []interface{}{
				shortField(fmt.Sprintf("**Best model**\n%s", n.Winner)),
				shortField(fmt.Sprintf("**Serving URI**\n%s", orDash(n.ModelURI))),
			},
		})
		if len(n.Scores) > 0 {
			elements = append(elements, map[string]interface{}{
				"tag":  "div",
				"text": lark("**Scores**\n" + formatScores(n.Scores)),
			})
		}
	} else {
		elements = append(elements, map[string]interface{}{
			"tag":  "div",
			"text": lark(fmt.Sprintf("**Error**: %s", n.Error)),
		})
	}

	elements = append(elements,
		map[string]interface{}{"tag": "hr"},
		map[string]interface{}{
			"tag": "note",
			"elements": []interface{}{
				map[string]interface{}{
					"content": fmt.Sprintf("Finished at %s", n.FinishedAt.Format("2006-01-02 15:04:05")),
					"tag":     "plain_text",
				},
			},
		},
	)

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": template,
				"title": map[string]interface{}{
					"content": title,
					"tag":     "plain_text",
				},
			},
			"elements": elements,
		},
	}
}

func formatScores(scores map[string]float64) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s: %.4f", k, scores[k])
	}
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
