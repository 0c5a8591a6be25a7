package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/logging"
)

// retryLogger adapts the run logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// WebhookPublisher posts the run summary as JSON.
type WebhookPublisher struct {
	url    string
	client *retryablehttp.Client
}

// NewWebhookPublisher wraps httpClient with retries.
func NewWebhookPublisher(url string, httpClient *nethttp.Client, logger *logging.Logger) *WebhookPublisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	rc := retryablehttp.NewClient()
	if httpClient != nil {
		rc.HTTPClient = httpClient
	}
	rc.RetryMax = constants.MaxRetries
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 30 * time.Second
	rc.Logger = retryLogger{logger: logger}
	return &WebhookPublisher{url: url, client: rc}
}

// Name implements SummaryPublisher.
func (w *WebhookPublisher) Name() string { return "webhook" }

// SetRetryWait shortens retry backoff.
func (w *WebhookPublisher) SetRetryWait(min, max time.Duration) {
	w.client.RetryWaitMin = min
	w.client.RetryWaitMax = max
}

// Send implements SummaryPublisher. Any non-2xx final response is an error.
func (w *WebhookPublisher) Send(ctx context.Context, summary RunSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
