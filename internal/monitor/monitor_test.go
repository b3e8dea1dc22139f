package monitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starlink-awaken/omo-quota/internal/monitor"
	"github.com/starlink-awaken/omo-quota/pkg/alerts"
	"github.com/starlink-awaken/omo-quota/pkg/model"
	"github.com/starlink-awaken/omo-quota/pkg/quota"
	"github.com/starlink-awaken/omo-quota/pkg/strategy"
	"github.com/starlink-awaken/omo-quota/pkg/tracker"
	"github.com/starlink-awaken/omo-quota/pkg/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeSyncer struct {
	summary usage.Summary
	err     error
	onScan  func()
}

func (f *fakeSyncer) Scan(context.Context) (usage.Summary, error) {
	if f.onScan != nil {
		f.onScan()
	}
	return f.summary, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []alerts.Alert
	err  error
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Send(_ context.Context, a alerts.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a)
	return f.err
}

type fakeHistory struct {
	records []*model.AlertRecord
}

func (f *fakeHistory) RecordAlert(_ context.Context, r *model.AlertRecord) error {
	f.records = append(f.records, r)
	return nil
}

type fixture struct {
	tracker  *tracker.Tracker
	active   string
	notifier *fakeNotifier
	history  *fakeHistory
	syncer   *fakeSyncer
}

func newFixture(t *testing.T, autoSwitch bool) (*fixture, *monitor.Monitor) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := tracker.NewStore(filepath.Join(dir, "tracker.json"), logger)
	doc := model.NewTrackerDocument()
	doc.Providers["openai"] = model.ProviderStatus{
		Month: "2026-10",
		Used:  model.Float64Ptr(0),
		Limit: model.Float64Ptr(100),
	}
	require.NoError(t, store.Save(doc))

	tr := tracker.NewTracker(store, quota.DefaultThresholds(), logger)
	tr.SetClock(func() time.Time { return testNow })

	strategies := filepath.Join(dir, "strategies")
	require.NoError(t, os.MkdirAll(strategies, 0o755))
	for _, name := range []string{strategy.Performance, strategy.Balanced, strategy.Economical} {
		require.NoError(t, os.WriteFile(filepath.Join(strategies, name+strategy.FileExt), []byte(`{"name":"`+name+`"}`), 0o644))
	}
	catalog := strategy.DefaultCatalog(strategies)
	active := filepath.Join(dir, "oh-my-opencode.json")
	switcher := strategy.NewSwitcher(catalog, active, tr, nil, logger)

	f := &fixture{
		tracker:  tr,
		active:   active,
		notifier: &fakeNotifier{},
		history:  &fakeHistory{},
		syncer: &fakeSyncer{summary: usage.Summary{Providers: map[string]usage.ProviderUsage{
			"openai": {Requests: 95},
		}}},
	}

	m := monitor.New(tr, catalog, switcher, monitor.Options{
		Interval:   time.Hour,
		Threshold:  20,
		AutoSwitch: autoSwitch,
		Fallback:   strategy.Economical,
	}, logger).
		WithSyncer(f.syncer).
		WithNotifiers(f.notifier).
		WithHistory(f.history)
	return f, m
}

func TestTick_SyncAlertAndAutoSwitch(t *testing.T) {
	f, m := newFixture(t, true)
	ctx := context.Background()

	res, err := m.Tick(ctx)
	require.NoError(t, err)

	require.NotNil(t, res.Sync)
	assert.Equal(t, 95.0, res.Sync.Applied["openai"])

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, alerts.AlertCritical, res.Alerts[0].Level)
	assert.Len(t, f.notifier.sent, 1)
	require.Len(t, f.history.records, 1)
	assert.Equal(t, "critical", f.history.records[0].Level)

	require.NoError(t, res.SwitchErr)
	require.NotNil(t, res.Switched)
	assert.Equal(t, strategy.Economical, res.Switched.To)
	assert.Equal(t, strategy.Economical, f.tracker.CurrentStrategy())
	data, err := os.ReadFile(f.active)
	require.NoError(t, err)
	assert.Contains(t, string(data), "economical")

	// Second tick: same decile, no repeat alert and no second switch.
	res, err = m.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
	assert.Nil(t, res.Switched)
	assert.Len(t, f.notifier.sent, 1)
	assert.True(t, m.Seen().Has("openai-9"))
}

func TestTick_AutoSwitchDisabled(t *testing.T) {
	f, m := newFixture(t, false)

	res, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 1)
	assert.Nil(t, res.Switched)
	assert.Equal(t, model.DefaultStrategy, f.tracker.CurrentStrategy())

	_, statErr := os.Stat(f.active)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTick_SyncFailureStillEvaluates(t *testing.T) {
	f, m := newFixture(t, false)
	f.syncer.err = errors.New("permission denied")

	res, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Sync)
	assert.Empty(t, res.Alerts, "used stays at 0 without a sync")
	require.Len(t, res.Report.Providers, 1)
}

func TestTick_NotifierFailureIsNotFatal(t *testing.T) {
	f, m := newFixture(t, false)
	f.notifier.err = errors.New("slack down")

	res, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 1)
	assert.Len(t, f.history.records, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	_, m := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := 0
	m.OnTick(func(*monitor.TickResult) {
		ticks++
		cancel()
	})

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
	assert.Equal(t, 1, ticks)
}

func TestRun_SaveFailureReportedAfterCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Long enough that the temp file created by Save exceeds the name limit.
	path := filepath.Join(t.TempDir(), strings.Repeat("t", 240)+".json")
	require.NoError(t, os.WriteFile(path, []byte(`{"currentStrategy":"balanced","providers":{"openai":{"month":"2026-10","used":0,"limit":100}}}`), 0o600))

	tr := tracker.NewTracker(tracker.NewStore(path, logger), quota.DefaultThresholds(), logger)
	tr.SetClock(func() time.Time { return testNow })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncer := &fakeSyncer{
		summary: usage.Summary{Providers: map[string]usage.ProviderUsage{"openai": {Requests: 10}}},
		onScan:  cancel,
	}
	m := monitor.New(tr, nil, nil, monitor.Options{Interval: time.Hour}, logger).WithSyncer(syncer)

	err := m.Run(ctx)
	require.Error(t, ctx.Err())
	assert.ErrorIs(t, err, tracker.ErrSave)
}

func TestNew_Defaults(t *testing.T) {
	m := monitor.New(nil, nil, nil, monitor.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, monitor.DefaultInterval, m.Options().Interval)
	assert.Equal(t, usage.UnitRequests, m.Options().Unit)
}
