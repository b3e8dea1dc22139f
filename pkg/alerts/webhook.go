package alerts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// EventQuotaAlert is the event name carried by webhook payloads.
const EventQuotaAlert = "quota_alert"

// SignatureHeader holds "sha256=<hex>" when a secret is configured.
const SignatureHeader = "X-Signature-256"

// WebhookNotifier posts alerts as JSON to an arbitrary HTTP endpoint.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookNotifier creates a generic webhook notifier. A non-empty secret
// signs every body.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{url: url, secret: secret, client: newHTTPClient()}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	var sign func([]byte, http.Header)
	if w.secret != "" {
		sign = func(body []byte, h http.Header) {
			h.Set(SignatureHeader, "sha256="+Sign(body, w.secret))
		}
	}

	body, h, err := encode(webhookEvent{
		Event:     EventQuotaAlert,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Alert:     alert,
	}, sign)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	return post(ctx, w.client, "webhook", w.url, body, h)
}

type webhookEvent struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Alert     Alert  `json:"alert"`
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
