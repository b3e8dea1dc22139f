package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DeliveryHeader carries an id that is stable across retries of one alert.
const DeliveryHeader = "X-Omo-Quota-Delivery"

const (
	userAgent     = "omo-quota/1.0"
	sendTimeout   = 10 * time.Second
	retryDelay    = 200 * time.Millisecond
	deliveryTries = 2
)

// statusError is a non-2xx answer from a notification endpoint.
type statusError struct {
	target string
	code   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.target, e.code)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: sendTimeout}
}

// encode marshals payload; sign, when set, adds headers derived from the body.
func encode(payload any, sign func(body []byte, h http.Header)) ([]byte, http.Header, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set(DeliveryHeader, uuid.NewString())
	if sign != nil {
		sign(body, h)
	}
	return body, h, nil
}

// post delivers body to url, retrying once on transport errors, 429 and 5xx.
func post(ctx context.Context, client *http.Client, target, url string, body []byte, h http.Header) error {
	var lastErr error
	for attempt := 0; attempt < deliveryTries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", target, err)
		}
		req.Header = h.Clone()

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("send %s alert: %w", target, err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		se := &statusError{target: target, code: resp.StatusCode}
		if !se.retryable() {
			return se
		}
		lastErr = se
	}
	return lastErr
}
