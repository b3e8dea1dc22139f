package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/starlink-awaken/omo-quota/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC) // a Wednesday

func TestPeriodBounds_Daily(t *testing.T) {
	start, end := model.PeriodBounds(model.PeriodDaily, fixedNow)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, 14, start.Day())
}

func TestPeriodBounds_Weekly(t *testing.T) {
	start, end := model.PeriodBounds(model.PeriodWeekly, fixedNow)
	assert.Equal(t, 7*24*time.Hour, end.Sub(start))
	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, 12, start.Day())
}

func TestPeriodBounds_Monthly(t *testing.T) {
	start, end := model.PeriodBounds(model.PeriodMonthly, fixedNow)
	assert.Equal(t, 1, start.Day())
	assert.Equal(t, time.November, end.Month())
}

func TestPeriodBounds_Default(t *testing.T) {
	start, end := model.PeriodBounds("unknown", fixedNow)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestNewTrackerDocument(t *testing.T) {
	doc := model.NewTrackerDocument()
	assert.Equal(t, "balanced", doc.CurrentStrategy)
	assert.NotNil(t, doc.Providers)
	assert.Empty(t, doc.Providers)
}

func TestProviderStatus_OmitsAbsentFields(t *testing.T) {
	status := model.ProviderStatus{
		Month: "2026-10",
		Used:  model.Float64Ptr(12),
		Limit: model.Float64Ptr(300),
	}
	data, err := json.Marshal(status)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 3)
	assert.NotContains(t, raw, "balance")
	assert.NotContains(t, raw, "resetInterval")
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2026-10", model.MonthKey(fixedNow))
}
