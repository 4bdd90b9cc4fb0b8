package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/model"
)

// WeComNotifier sends reports to WeCom (WeChat Work) via webhook.
type WeComNotifier struct {
	webhookURL string
	retries    int
	retryDelay time.Duration
	client     *http.Client
}

// wecomMessage represents the WeCom webhook message format.
type wecomMessage struct {
	MsgType  string           `json:"msgtype"`
	Markdown *markdownContent `json:"markdown,omitempty"`
}

type markdownContent struct {
	Content string `json:"content"`
}

// wecomResponse represents the WeCom API response.
type wecomResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewWeComNotifier creates a new WeCom notifier.
func NewWeComNotifier(cfg *config.NotifierConfig) (*WeComNotifier, error) {
	retryDelay, err := cfg.RetryDelayParsed()
	if err != nil {
		retryDelay = time.Second
	}

	return &WeComNotifier{
		webhookURL: cfg.WebhookURL,
		retries:    cfg.Retries,
		retryDelay: retryDelay,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns the notifier name.
func (w *WeComNotifier) Name() string {
	return "wecom"
}

// Send sends the report to WeCom.
func (w *WeComNotifier) Send(ctx context.Context, report *model.Report) error {
	msg := wecomMessage{
		MsgType: "markdown",
		Markdown: &markdownContent{
			Content: w.formatMessage(report),
		},
	}

	return w.sendWithRetry(ctx, msg)
}

// formatMessage creates a markdown message from the report.
func (w *WeComNotifier) formatMessage(report *model.Report) string {
	var sb strings.Builder
	md := report.Metadata

	sb.WriteString(fmt.Sprintf("## 📊 keyloc Report: table %d\n\n", report.TargetTableID))
	sb.WriteString(fmt.Sprintf("> **Source**: %s\n", report.Source))
	sb.WriteString(fmt.Sprintf("> **Samples**: %d | **Keys**: %d\n", md.SampleCount, md.KeySeqCount))
	sb.WriteString(fmt.Sprintf("> **Time Buckets**: %d × %ds\n", md.TSBucketCount, md.TSBucketSize))
	sb.WriteString(fmt.Sprintf("> **Key Buckets**: %d × %d keys\n\n", md.KeyBucketCount, md.KeyBucketSize))

	if len(report.Statistics) > 0 {
		sb.WriteString("### Statistics\n")
		for _, s := range report.Statistics {
			sb.WriteString(fmt.Sprintf("- **%s**: %s\n", s.Statistic, s.Highlight))
			if len(s.Artifacts) > 0 {
				names := make([]string, len(s.Artifacts))
				for i, a := range s.Artifacts {
					names[i] = filepath.Base(a)
				}
				sb.WriteString(fmt.Sprintf("   - `%s`\n", strings.Join(names, "`, `")))
			}
		}
		sb.WriteString("\n")
	}

	// Footer
	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("*Report ID: %s (%s)*\n", report.ReqID, report.ReportType))

	return sb.String()
}

// sendWithRetry sends the message with exponential backoff retry.
func (w *WeComNotifier) sendWithRetry(ctx context.Context, msg wecomMessage) error {
	var lastErr error
	delay := w.retryDelay

	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2 // Exponential backoff
			}
		}

		err := w.send(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", w.retries, lastErr)
}

// send performs the actual HTTP request to WeCom.
func (w *WeComNotifier) send(ctx context.Context, msg wecomMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result wecomResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if result.ErrCode != 0 {
		return fmt.Errorf("wecom error: %d - %s", result.ErrCode, result.ErrMsg)
	}

	return nil
}
