package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/incident-etl/internal/config"
	"github.com/sells-group/incident-etl/internal/model"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MinFeatures: 5})

	alerts := a.Evaluate(RunOutcome{RunID: "r1", Features: 12, Elapsed: time.Second})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_RunFailed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		class    string
		severity string
	}{
		{"auth", &model.AuthError{Reason: "missing token"}, "auth", "critical"},
		{"transport", &model.TransportError{Op: "fetch page", Err: errors.New("connection reset")}, "transport", "high"},
		{"protocol", model.NewProtocolError("decode", "bad body"), "protocol", "high"},
		{"other", errors.New("disk full"), "internal", "high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAlerter(config.MonitoringConfig{})

			alerts := a.Evaluate(RunOutcome{RunID: "r1", Err: tt.err, Elapsed: 1500 * time.Millisecond})
			require.Len(t, alerts, 1)
			assert.Equal(t, AlertRunFailed, alerts[0].Type)
			assert.Equal(t, tt.severity, alerts[0].Severity)
			assert.Equal(t, tt.class, alerts[0].Details["error_class"])
			assert.Equal(t, "r1", alerts[0].Details["run_id"])
			assert.Contains(t, alerts[0].Message, tt.class+" error")
		})
	}
}

func TestAlerter_Evaluate_FailureSuppressesLowCount(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MinFeatures: 10})

	alerts := a.Evaluate(RunOutcome{Err: errors.New("boom")})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailed, alerts[0].Type)
}

func TestAlerter_Evaluate_LowFeatureCount(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MinFeatures: 10})

	alerts := a.Evaluate(RunOutcome{RunID: "r2", Features: 3})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowFeatures, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Equal(t, 3, alerts[0].Details["features"])
	assert.Equal(t, 10, alerts[0].Details["min_features"])
}

func TestAlerter_Evaluate_ZeroMinFeatures(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MinFeatures: 0}) // disabled

	alerts := a.Evaluate(RunOutcome{Features: 0})
	assert.Empty(t, alerts)
}

func TestErrorClass_Wrapped(t *testing.T) {
	err := errors.Join(errors.New("sink failed"), &model.AuthError{Reason: "x"})
	assert.Equal(t, "auth", ErrorClass(err))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertRunFailed, Severity: "high", Message: "test alert 1"},
		{Type: AlertLowFeatures, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailed, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailed, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}
