package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/incident-etl/internal/config"
	"github.com/sells-group/incident-etl/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed   AlertType = "run_failed"
	AlertLowFeatures AlertType = "low_feature_count"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunOutcome is what a finished run reports to the alerter.
type RunOutcome struct {
	RunID    string
	Features int
	Err      error
	Elapsed  time.Duration
}

// Alerter evaluates a run outcome against configured thresholds and sends
// alerts via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts raised by outcome.
func (a *Alerter) Evaluate(out RunOutcome) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if out.Err != nil {
		class := ErrorClass(out.Err)
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: severityFor(class),
			Message:  fmt.Sprintf("Incident run failed with %s error after %s", class, out.Elapsed.Round(time.Millisecond)),
			Details: map[string]any{
				"run_id":      out.RunID,
				"error_class": class,
				"error":       out.Err.Error(),
			},
			Timestamp: now,
		})
		return alerts
	}

	if a.cfg.MinFeatures > 0 && out.Features < a.cfg.MinFeatures {
		alerts = append(alerts, Alert{
			Type:     AlertLowFeatures,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Incident run produced %d feature(s), below the expected minimum of %d",
				out.Features, a.cfg.MinFeatures,
			),
			Details: map[string]any{
				"run_id":       out.RunID,
				"features":     out.Features,
				"min_features": a.cfg.MinFeatures,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// ErrorClass names the failure class of err for alerts and logs.
func ErrorClass(err error) string {
	switch {
	case model.IsAuth(err):
		return "auth"
	case model.IsTransport(err):
		return "transport"
	case model.IsProtocol(err):
		return "protocol"
	default:
		return "internal"
	}
}

// Auth failures need an operator; the others may clear on the next run.
func severityFor(class string) string {
	if class == "auth" {
		return "critical"
	}
	return "high"
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
