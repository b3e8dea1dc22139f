// Package monitor runs the periodic quota check used by `omo-quota watch`.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starlink-awaken/omo-quota/pkg/alerts"
	"github.com/starlink-awaken/omo-quota/pkg/metrics"
	"github.com/starlink-awaken/omo-quota/pkg/model"
	"github.com/starlink-awaken/omo-quota/pkg/strategy"
	"github.com/starlink-awaken/omo-quota/pkg/tracker"
	"github.com/starlink-awaken/omo-quota/pkg/usage"
)

// DefaultInterval is the delay between two ticks.
const DefaultInterval = 5 * time.Minute

// Syncer produces usage counts for the current month.
type Syncer interface {
	Scan(ctx context.Context) (usage.Summary, error)
}

// AlertHistory stores emitted alerts.
type AlertHistory interface {
	RecordAlert(ctx context.Context, record *model.AlertRecord) error
}

// Options configures a Monitor.
type Options struct {
	Interval time.Duration
	// Threshold is the remaining percentage below which a mild alert fires.
	Threshold float64
	// AutoSwitch enables switching to the most economical strategy when a
	// provider becomes critical.
	AutoSwitch bool
	// Fallback is the preferred economical strategy name.
	Fallback string
	Unit     usage.Unit
}

// TickResult is what one evaluation did.
type TickResult struct {
	Report    *tracker.Report
	Sync      *tracker.SyncResult
	Alerts    []alerts.Alert
	Switched  *strategy.Result
	SwitchErr error
}

// Monitor evaluates all providers on a fixed interval. Only one tick is ever
// in flight; a slow tick delays the next one.
type Monitor struct {
	tracker   *tracker.Tracker
	catalog   *strategy.Catalog
	switcher  *strategy.Switcher
	syncer    Syncer
	notifiers []alerts.Notifier
	history   AlertHistory
	opts      Options
	logger    *slog.Logger

	seen   Set
	onTick func(*TickResult)
}

// New creates a monitor. syncer, history and switcher may be nil.
func New(t *tracker.Tracker, catalog *strategy.Catalog, switcher *strategy.Switcher, opts Options, logger *slog.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Unit == "" {
		opts.Unit = usage.UnitRequests
	}
	return &Monitor{
		tracker:  t,
		catalog:  catalog,
		switcher: switcher,
		opts:     opts,
		logger:   logger,
		seen:     make(Set),
	}
}

// WithSyncer sets the usage source refreshed before every evaluation.
func (m *Monitor) WithSyncer(s Syncer) *Monitor {
	m.syncer = s
	return m
}

// WithNotifiers sets the alert destinations.
func (m *Monitor) WithNotifiers(n ...alerts.Notifier) *Monitor {
	m.notifiers = append(m.notifiers, n...)
	return m
}

// WithHistory sets where alerts are recorded.
func (m *Monitor) WithHistory(h AlertHistory) *Monitor {
	m.history = h
	return m
}

// OnTick registers a callback invoked after every tick, used for rendering.
func (m *Monitor) OnTick(fn func(*TickResult)) *Monitor {
	m.onTick = fn
	return m
}

// Options returns the effective options.
func (m *Monitor) Options() Options {
	return m.opts
}

// Run ticks immediately and then every interval until ctx is cancelled.
// A tracker save failure stops the loop and is returned, even when ctx was
// cancelled at the same time.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", "interval", m.opts.Interval, "threshold", m.opts.Threshold, "auto_switch", m.opts.AutoSwitch)

	for {
		res, err := m.Tick(ctx)
		if err != nil {
			if errors.Is(err, tracker.ErrSave) || ctx.Err() == nil {
				return err
			}
			break
		}
		if m.onTick != nil {
			m.onTick(res)
		}

		timer := time.NewTimer(m.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("monitor stopped")
			return nil
		case <-timer.C:
		}
	}

	m.logger.Info("monitor stopped")
	return nil
}

// Tick runs one evaluation: sync, reload, evaluate, notify and optionally
// switch strategy.
func (m *Monitor) Tick(ctx context.Context) (*TickResult, error) {
	res := &TickResult{}

	if m.syncer != nil {
		summary, err := m.syncer.Scan(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			m.logger.Warn("usage sync failed", "error", err)
		default:
			res.Sync, err = m.tracker.Sync(summary.Values(m.opts.Unit))
			if err != nil {
				return nil, fmt.Errorf("sync tracker: %w", err)
			}
		}
	}

	res.Report = m.tracker.Report()
	if res.Report.Diagnostic != nil {
		m.logger.Warn("tracker file unreadable, using defaults", "error", res.Report.Diagnostic)
	}
	for _, pr := range res.Report.Providers {
		if pr.Estimate.Valid {
			metrics.RemainingPercent.WithLabelValues(pr.ID).Set(pr.Estimate.Percent)
		}
	}

	ev := Evaluate(res.Report, m.opts.Threshold, m.seen)
	m.seen = ev.Next
	res.Alerts = ev.Alerts

	for _, a := range ev.Alerts {
		m.emit(ctx, a)
	}

	if ev.Critical && m.opts.AutoSwitch {
		res.Switched, res.SwitchErr = m.autoSwitch(ctx, res.Report.CurrentStrategy)
	}
	return res, nil
}

// Seen returns the alert keys raised on the last tick.
func (m *Monitor) Seen() Set {
	return m.seen
}

func (m *Monitor) emit(ctx context.Context, a alerts.Alert) {
	metrics.AlertsTotal.WithLabelValues(string(a.Level)).Inc()
	m.logger.Warn("quota alert", "provider", a.Provider, "level", string(a.Level), "used_pct", a.UsedPct)

	for _, n := range m.notifiers {
		if err := n.Send(ctx, a); err != nil {
			m.logger.Error("alert delivery failed", "notifier", n.Name(), "provider", a.Provider, "error", err)
		}
	}

	if m.history == nil {
		return
	}
	rec := &model.AlertRecord{
		Provider: a.Provider,
		Level:    string(a.Level),
		UsedPct:  a.UsedPct,
		Message:  a.Message,
	}
	if err := m.history.RecordAlert(ctx, rec); err != nil {
		m.logger.Warn("record alert history", "provider", a.Provider, "error", err)
	}
}

func (m *Monitor) autoSwitch(ctx context.Context, current string) (*strategy.Result, error) {
	if m.switcher == nil || m.catalog == nil {
		return nil, nil
	}
	target, ok := m.catalog.MostEconomical(m.opts.Fallback)
	if !ok || target == current {
		return nil, nil
	}

	m.logger.Warn("critical quota, switching strategy", "from", current, "to", target)
	res, err := m.switcher.Switch(ctx, strategy.Request{Strategy: target, Automatic: true})
	if err != nil {
		var swErr *strategy.SwitchError
		if errors.As(err, &swErr) {
			m.logger.Error("automatic switch failed", "state", swErr.IntactMessage())
		}
		return nil, err
	}
	return res, nil
}
