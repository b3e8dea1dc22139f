package quota_test

import (
	"testing"
	"time"

	"github.com/starlink-awaken/omo-quota/pkg/model"
	"github.com/starlink-awaken/omo-quota/pkg/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func ts(t time.Time) string { return t.Format(time.RFC3339) }

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status model.ProviderStatus
		want   quota.Kind
	}{
		{
			name:   "monthly",
			status: model.ProviderStatus{Month: "2026-10", Used: model.Float64Ptr(10), Limit: model.Float64Ptr(300)},
			want:   quota.KindMonthly,
		},
		{
			name:   "balance",
			status: model.ProviderStatus{Balance: "¥450.50", Currency: "CNY"},
			want:   quota.KindBalance,
		},
		{
			name: "hourly",
			status: model.ProviderStatus{
				LastReset: ts(now.Add(-time.Hour)), NextReset: ts(now.Add(4 * time.Hour)), ResetInterval: "5h",
			},
			want: quota.KindHourly,
		},
		{
			name: "monthly wins over overlapping fields",
			status: model.ProviderStatus{
				Month: "2026-10", Limit: model.Float64Ptr(100),
				Balance: "$5", Currency: "USD", ResetInterval: "5h",
			},
			want: quota.KindMonthly,
		},
		{
			name: "balance wins over hourly",
			status: model.ProviderStatus{
				Balance: "$5", Currency: "USD", ResetInterval: "5h", NextReset: ts(now),
			},
			want: quota.KindBalance,
		},
		{
			name:   "month without limit falls through to hourly",
			status: model.ProviderStatus{Month: "2026-10", ResetInterval: "5h", NextReset: ts(now)},
			want:   quota.KindHourly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := quota.Classify(tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Kind())
		})
	}
}

func TestClassify_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		status model.ProviderStatus
	}{
		{"empty", model.ProviderStatus{}},
		{"balance without currency", model.ProviderStatus{Balance: "$10"}},
		{"hourly without next reset", model.ProviderStatus{ResetInterval: "5h"}},
		{"hourly with garbage next reset", model.ProviderStatus{ResetInterval: "5h", NextReset: "tomorrow"}},
		{"hourly with garbage last reset", model.ProviderStatus{ResetInterval: "5h", NextReset: ts(now), LastReset: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := quota.Classify(tt.status)
			assert.ErrorIs(t, err, quota.ErrMalformedStatus)
		})
	}
}

func TestApply_RoundTrip(t *testing.T) {
	original := model.ProviderStatus{
		LastReset:     "2026-10-18T07:00:00.000Z",
		NextReset:     "2026-10-18T12:00:00.000Z",
		ResetInterval: "5h",
		Usage:         model.Float64Ptr(30),
	}
	st, err := quota.Classify(original)
	require.NoError(t, err)
	assert.Equal(t, original, quota.Apply(st))
}

func TestMonthlyRemaining(t *testing.T) {
	est := quota.Remaining(quota.Monthly{Month: "2026-10", Used: 270, Limit: 300}, now)
	require.True(t, est.Valid)
	assert.InDelta(t, 10.0, est.Percent, 1e-9)
	assert.Equal(t, quota.LevelWarning, quota.ClassifyLevel(est.Percent, quota.DefaultThresholds()))

	est = quota.Remaining(quota.Monthly{Used: 1, Limit: 3}, now)
	assert.Equal(t, 66.7, est.Percent)

	est = quota.Remaining(quota.Monthly{Used: 5, Limit: 0}, now)
	assert.False(t, est.Valid)
}

func TestMonthlyRemaining_ComplementsUsed(t *testing.T) {
	for used := 0.0; used <= 300; used += 7 {
		m := quota.Monthly{Used: used, Limit: 300}
		est := quota.MonthlyRemaining(m)
		usedPct, ok := quota.MonthlyUsed(m)
		require.True(t, ok)
		assert.GreaterOrEqual(t, est.Percent, 0.0)
		assert.LessOrEqual(t, est.Percent, 100.0)
		assert.InDelta(t, 100, est.Percent+usedPct, 0.11)
	}
}

func TestHourlyRemaining_TimeWeighted(t *testing.T) {
	last := now.Add(-4 * time.Hour)
	h := quota.Hourly{LastReset: &last, NextReset: now.Add(time.Hour), Interval: 5 * time.Hour}

	est := quota.Remaining(h, now)
	require.True(t, est.Valid)
	assert.False(t, est.Expired)
	assert.InDelta(t, 20.0, est.Percent, 1e-9)
}

func TestHourlyRemaining_DeclaredUsageIsConservative(t *testing.T) {
	last := now.Add(-1 * time.Hour)
	next := now.Add(4 * time.Hour)

	heavy := quota.Hourly{LastReset: &last, NextReset: next, Usage: model.Float64Ptr(70)}
	assert.InDelta(t, 30.0, quota.Remaining(heavy, now).Percent, 1e-9)

	light := quota.Hourly{LastReset: &last, NextReset: next, Usage: model.Float64Ptr(5)}
	assert.InDelta(t, 80.0, quota.Remaining(light, now).Percent, 1e-9)
}

func TestHourlyRemaining_FallbackInterval(t *testing.T) {
	h := quota.Hourly{NextReset: now.Add(150 * time.Minute)}
	assert.InDelta(t, 50.0, quota.Remaining(h, now).Percent, 1e-9)

	// The configured interval only drives re-baselining.
	short := quota.Hourly{NextReset: now.Add(30 * time.Minute), Interval: time.Hour, RawInterval: "1h"}
	est := quota.Remaining(short, now)
	require.True(t, est.Valid)
	assert.InDelta(t, 10.0, est.Percent, 1e-9)
	assert.Equal(t, time.Hour, short.ResetEvery())
}

func TestHourlyRemaining_Expired(t *testing.T) {
	last := now.Add(-6 * time.Hour)
	h := quota.Hourly{LastReset: &last, NextReset: now.Add(-time.Hour)}

	est := quota.Remaining(h, now)
	assert.True(t, est.Valid)
	assert.True(t, est.Expired)
	assert.Equal(t, 0.0, est.Percent)
}

func TestHourlyRemaining_DecreasesToZero(t *testing.T) {
	last := now
	next := now.Add(5 * time.Hour)
	h := quota.Hourly{LastReset: &last, NextReset: next}

	prev := 101.0
	for at := now; at.Before(next); at = at.Add(17 * time.Minute) {
		est := quota.Remaining(h, at)
		require.False(t, est.Expired)
		assert.Less(t, est.Percent, prev)
		prev = est.Percent
	}

	atReset := quota.Remaining(h, next)
	assert.Equal(t, 0.0, atReset.Percent)
	assert.True(t, atReset.Expired)
}

func TestHourlyRemaining_InvertedBaseline(t *testing.T) {
	last := now.Add(2 * time.Hour)
	h := quota.Hourly{LastReset: &last, NextReset: now.Add(time.Hour)}
	assert.False(t, quota.Remaining(h, now).Valid)
}

func TestBalanceRemaining(t *testing.T) {
	tests := []struct {
		name     string
		balance  quota.Balance
		expected float64
		valid    bool
	}{
		{"cny half", quota.Balance{Raw: "¥250.00", Currency: "CNY"}, 50.0, true},
		{"usd", quota.Balance{Raw: "$25", Currency: "USD"}, 25.0, true},
		{"clamped high", quota.Balance{Raw: "¥900", Currency: "CNY"}, 100.0, true},
		{"clamped low", quota.Balance{Raw: "-5", Currency: "USD"}, 0.0, true},
		{"commas", quota.Balance{Raw: "$1,000.00", Currency: "USD"}, 100.0, true},
		{"suffix currency", quota.Balance{Raw: "40 EUR", Currency: "EUR"}, 40.0, true},
		{"no number", quota.Balance{Raw: "n/a", Currency: "USD"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := quota.Remaining(tt.balance, now)
			assert.Equal(t, tt.valid, est.Valid)
			if tt.valid {
				assert.InDelta(t, tt.expected, est.Percent, 1e-9)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "¥12.50", quota.FormatAmount(12.5, "CNY"))
	assert.Equal(t, "$3.00", quota.FormatAmount(3, "usd"))
	assert.Equal(t, "7.25 EUR", quota.FormatAmount(7.25, "EUR"))
}

func TestTimeUntilReset(t *testing.T) {
	assert.Equal(t, quota.Expired, quota.TimeUntilReset(now, now))
	assert.Equal(t, quota.Expired, quota.TimeUntilReset(now.Add(-time.Minute), now))
	assert.Equal(t, "0h 0m", quota.TimeUntilReset(now.Add(30*time.Second), now))
	assert.Equal(t, "1h 59m", quota.TimeUntilReset(now.Add(119*time.Minute+59*time.Second), now))
	assert.Equal(t, "26h 5m", quota.TimeUntilReset(now.Add(26*time.Hour+5*time.Minute), now))

	next := now.Add(3*time.Hour + 20*time.Minute)
	assert.Equal(t, quota.TimeUntilReset(next, now), quota.TimeUntilReset(next, now))
}

func TestClassifyLevel(t *testing.T) {
	th := quota.Thresholds{Warning: 20, Critical: 10}
	assert.Equal(t, quota.LevelCritical, quota.ClassifyLevel(9.9, th))
	assert.Equal(t, quota.LevelWarning, quota.ClassifyLevel(10.0, th))
	assert.Equal(t, quota.LevelWarning, quota.ClassifyLevel(19.9, th))
	assert.Equal(t, quota.LevelOK, quota.ClassifyLevel(20.0, th))

	strict := quota.Thresholds{Warning: 50, Critical: 25}
	assert.Equal(t, quota.LevelWarning, quota.ClassifyLevel(30, strict))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "hourly", quota.KindHourly.String())
	assert.Equal(t, "monthly", quota.KindMonthly.String())
	assert.Equal(t, "balance", quota.KindBalance.String())
	assert.Equal(t, "unknown", quota.KindUnknown.String())
}
