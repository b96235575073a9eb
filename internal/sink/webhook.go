package sink

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/incident-etl/internal/resilience"
)

// Webhook POSTs the GeoJSON document to an HTTP endpoint, retrying transient
// failures.
type Webhook struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

// NewWebhook creates a webhook sink. A non-positive timeout means 30s.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("sink", "webhook")
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		retry:  retry,
	}
}

// Name implements Sink.
func (w *Webhook) Name() string { return "webhook" }

// Submit implements Sink.
func (w *Webhook) Submit(ctx context.Context, sub *Submission) error {
	payload, err := sub.GeoJSON()
	if err != nil {
		return eris.Wrap(err, "webhook sink: encode")
	}

	return resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		return w.post(ctx, sub.RunID, payload)
	})
}

func (w *Webhook) post(ctx context.Context, runID string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "webhook sink: create request")
	}
	req.Header.Set("Content-Type", "application/geo+json")
	req.Header.Set("X-Run-ID", runID)

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook sink: request")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		err := eris.Errorf("webhook sink: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
