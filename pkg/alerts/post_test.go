package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost_RetriesServerErrorWithSameDeliveryID(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, r.Header.Get(DeliveryHeader))
		if len(ids) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	body, h, err := encode(map[string]string{"k": "v"}, nil)
	require.NoError(t, err)
	require.NoError(t, post(context.Background(), newHTTPClient(), "test", server.URL, body, h))

	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1])
}

func TestPost_NoRetryOnClientError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	body, h, err := encode(struct{}{}, nil)
	require.NoError(t, err)
	err = post(context.Background(), newHTTPClient(), "test", server.URL, body, h)

	var se *statusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.code)
	assert.Equal(t, 1, calls)
}

func TestPost_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	body, h, err := encode(struct{}{}, nil)
	require.NoError(t, err)
	err = post(ctx, newHTTPClient(), "test", server.URL, body, h)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncode_Sign(t *testing.T) {
	body, h, err := encode(map[string]int{"n": 1}, func(b []byte, h http.Header) {
		h.Set(SignatureHeader, "sha256="+Sign(b, "s"))
	})
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(body))
	assert.Equal(t, "sha256="+Sign(body, "s"), h.Get(SignatureHeader))
	assert.Equal(t, userAgent, h.Get("User-Agent"))
}

func TestAttachmentFor(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		level  AlertLevel
		color  string
		fields int
	}{
		{AlertNotice, "#f2c744", 5},
		{AlertWarning, "#ff9900", 5},
		{AlertCritical, "#d50200", 5},
		{AlertExpired, "#439fe0", 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			att := attachmentFor(Alert{Level: tt.level, Provider: "p", UsedPct: 91.3}, now)
			assert.Equal(t, tt.color, att.Color)
			assert.Len(t, att.Fields, tt.fields)
			assert.Equal(t, now.Unix(), att.Ts)
			if tt.fields == 5 {
				assert.Equal(t, "91.3%", att.Fields[3].Value)
			}
		})
	}
}
