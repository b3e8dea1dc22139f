package alerts_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starlink-awaken/omo-quota/pkg/alerts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier_Name(t *testing.T) {
	n := alerts.NewWebhookNotifier("https://example.com/webhook", "")
	assert.Equal(t, "webhook", n.Name())
}

func TestWebhookNotifier_Send(t *testing.T) {
	var received struct {
		Event     string       `json:"event"`
		Timestamp string       `json:"timestamp"`
		Alert     alerts.Alert `json:"alert"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "omo-quota/1.0", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get(alerts.DeliveryHeader))
		assert.Equal(t, http.MethodPost, r.Method)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "")
	alert := alerts.Alert{
		Level:        alerts.AlertCritical,
		Provider:     "openai",
		Kind:         "monthly",
		UsedPct:      93,
		RemainingPct: 7,
		Strategy:     "performance",
	}

	require.NoError(t, n.Send(context.Background(), alert))
	assert.Equal(t, alerts.EventQuotaAlert, received.Event)
	assert.NotEmpty(t, received.Timestamp)
	assert.Equal(t, alert, received.Alert)
}

func TestWebhookNotifier_Send_WithHMAC(t *testing.T) {
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(alerts.SignatureHeader)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "test-secret")
	require.NoError(t, n.Send(context.Background(), alerts.Alert{Level: alerts.AlertWarning}))
	assert.Equal(t, "sha256="+alerts.Sign(body, "test-secret"), signature)
}

func TestWebhookNotifier_Send_NoHMAC(t *testing.T) {
	var hasSignature bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSignature = r.Header.Get(alerts.SignatureHeader) != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "")
	require.NoError(t, n.Send(context.Background(), alerts.Alert{Level: alerts.AlertWarning}))
	assert.False(t, hasSignature)
}

func TestWebhookNotifier_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "")
	err := n.Send(context.Background(), alerts.Alert{Level: alerts.AlertWarning})
	assert.ErrorContains(t, err, "status 503")
}

func TestSign(t *testing.T) {
	assert.Len(t, alerts.Sign([]byte("payload"), "key"), 64)
	assert.NotEqual(t, alerts.Sign([]byte("payload"), "key"), alerts.Sign([]byte("payload"), "other"))
}
