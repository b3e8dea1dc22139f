package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starlink-awaken/omo-quota/pkg/model"
	"github.com/starlink-awaken/omo-quota/pkg/quota"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNotResettable   = errors.New("provider has no reset semantics")
	ErrInvalidValue    = errors.New("invalid value")
)

// ProviderReport is the derived view of one provider.
type ProviderReport struct {
	ID             string
	Kind           quota.Kind
	Status         quota.Status
	Estimate       quota.Estimate
	Level          quota.Level
	TimeUntilReset string
	Err            error
}

// Report is the derived view of the whole tracker document.
type Report struct {
	CurrentStrategy string
	Providers       []ProviderReport
	// Diagnostic is set when the tracker file was corrupt and defaults were used.
	Diagnostic error
}

// SyncResult describes what Sync changed.
type SyncResult struct {
	Applied map[string]float64
	Skipped map[string]string
}

// Tracker applies operator mutations to the tracker document and derives
// quota reports from it. Every mutation is a load-modify-save cycle.
type Tracker struct {
	store      *Store
	thresholds quota.Thresholds
	now        func() time.Time
	logger     *slog.Logger
}

// NewTracker creates a tracker over store.
func NewTracker(store *Store, thresholds quota.Thresholds, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:      store,
		thresholds: thresholds,
		now:        time.Now,
		logger:     logger,
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Store returns the underlying store.
func (t *Tracker) Store() *Store {
	return t.store
}

// Thresholds returns the configured warning thresholds.
func (t *Tracker) Thresholds() quota.Thresholds {
	return t.thresholds
}

// Report loads the document and evaluates every provider. A malformed
// provider is reported with Err set; the rest are still evaluated.
func (t *Tracker) Report() *Report {
	res := t.store.Load()
	now := t.now()

	ids := make([]string, 0, len(res.Doc.Providers)+len(res.Doc.Malformed))
	for id := range res.Doc.Providers {
		ids = append(ids, id)
	}
	for id := range res.Doc.Malformed {
		if _, ok := res.Doc.Providers[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	report := &Report{
		CurrentStrategy: res.Doc.CurrentStrategy,
		Providers:       make([]ProviderReport, 0, len(ids)),
		Diagnostic:      res.Diagnostic,
	}
	for _, id := range ids {
		status, ok := res.Doc.Providers[id]
		if !ok {
			report.Providers = append(report.Providers, ProviderReport{ID: id, Err: malformedErr(res.Doc.Malformed[id])})
			continue
		}
		report.Providers = append(report.Providers, t.evaluate(id, status, now))
	}
	return report
}

func (t *Tracker) evaluate(id string, status ProviderStatus, now time.Time) ProviderReport {
	pr := ProviderReport{ID: id}

	st, err := quota.Classify(status)
	if err != nil {
		t.logger.Warn("malformed provider status", "provider", id, "error", err)
		pr.Err = err
		return pr
	}
	pr.Kind = st.Kind()
	pr.Status = st
	pr.Estimate = quota.Remaining(st, now)
	if pr.Estimate.Valid {
		pr.Level = quota.ClassifyLevel(pr.Estimate.Percent, t.thresholds)
	}
	if h, ok := st.(quota.Hourly); ok {
		pr.TimeUntilReset = quota.TimeUntilReset(h.NextReset, now)
	}
	return pr
}

// Update sets the raw usage number of a provider: used for monthly, percent
// used for hourly, and the remaining amount for balance providers.
func (t *Tracker) Update(id string, value float64) error {
	return t.mutate(id, func(st quota.Status) (quota.Status, error) {
		switch v := st.(type) {
		case quota.Monthly:
			if value < 0 {
				return nil, fmt.Errorf("%w: used must be >= 0, got %g", ErrInvalidValue, value)
			}
			v.Used = value
			return v, nil
		case quota.Hourly:
			if value < 0 || value > 100 {
				return nil, fmt.Errorf("%w: usage must be within 0-100, got %g", ErrInvalidValue, value)
			}
			v.Usage = model.Float64Ptr(value)
			return v, nil
		case quota.Balance:
			v.Raw = quota.FormatAmount(value, v.Currency)
			return v, nil
		default:
			return nil, fmt.Errorf("update: unsupported status %T", st)
		}
	})
}

// Reset re-baselines a provider at the current time.
func (t *Tracker) Reset(id string) error {
	now := t.now()
	return t.mutate(id, func(st quota.Status) (quota.Status, error) {
		switch v := st.(type) {
		case quota.Hourly:
			return rebaseline(v, now), nil
		case quota.Monthly:
			v.Used = 0
			v.Month = model.MonthKey(now)
			return v, nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrNotResettable, st.Kind())
		}
	})
}

// ResetExpired re-baselines every hourly provider whose reset time has passed.
// It returns the ids that were reset.
func (t *Tracker) ResetExpired() ([]string, error) {
	res := t.store.Load()
	now := t.now()

	var reset []string
	for id, status := range res.Doc.Providers {
		st, err := quota.Classify(status)
		if err != nil {
			continue
		}
		h, ok := st.(quota.Hourly)
		if !ok || now.Before(h.NextReset) {
			continue
		}
		res.Doc.Providers[id] = quota.Apply(rebaseline(h, now))
		reset = append(reset, id)
	}
	sort.Strings(reset)

	if len(reset) == 0 {
		return nil, nil
	}
	if err := t.store.Save(res.Doc); err != nil {
		return nil, err
	}
	t.logger.Info("expired providers re-baselined", "providers", reset)
	return reset, nil
}

func rebaseline(h quota.Hourly, now time.Time) quota.Hourly {
	last := now
	h.LastReset = &last
	h.NextReset = now.Add(h.ResetEvery())
	h.Usage = nil
	return h
}

// Sync bulk-sets monthly usage from externally aggregated counts. Providers
// that are not monthly, not tracked, or malformed are skipped.
func (t *Tracker) Sync(counts map[string]float64) (*SyncResult, error) {
	res := t.store.Load()
	result := &SyncResult{
		Applied: make(map[string]float64),
		Skipped: make(map[string]string),
	}

	for id, count := range counts {
		status, ok := res.Doc.Providers[id]
		if !ok {
			result.Skipped[id] = "not tracked"
			if m, bad := res.Doc.Malformed[id]; bad {
				result.Skipped[id] = malformedErr(m).Error()
			}
			continue
		}
		st, err := quota.Classify(status)
		if err != nil {
			result.Skipped[id] = err.Error()
			continue
		}
		m, ok := st.(quota.Monthly)
		if !ok {
			result.Skipped[id] = st.Kind().String() + " provider"
			continue
		}
		m.Used = count
		res.Doc.Providers[id] = quota.Apply(m)
		result.Applied[id] = count
	}

	if len(result.Applied) == 0 {
		return result, nil
	}
	if err := t.store.Save(res.Doc); err != nil {
		return nil, err
	}
	t.logger.Info("usage synced", "applied", len(result.Applied), "skipped", len(result.Skipped))
	return result, nil
}

// CurrentStrategy returns the strategy recorded in the tracker.
func (t *Tracker) CurrentStrategy() string {
	return t.store.Load().Doc.CurrentStrategy
}

// RecordStrategy persists name as the active strategy. Provider statuses are
// left as loaded.
func (t *Tracker) RecordStrategy(name string) error {
	res := t.store.Load()
	res.Doc.CurrentStrategy = name
	return t.store.Save(res.Doc)
}

func (t *Tracker) mutate(id string, fn func(quota.Status) (quota.Status, error)) error {
	res := t.store.Load()
	status, ok := res.Doc.Providers[id]
	if !ok {
		if m, bad := res.Doc.Malformed[id]; bad {
			return fmt.Errorf("provider %q: %w", id, malformedErr(m))
		}
		return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	st, err := quota.Classify(status)
	if err != nil {
		return fmt.Errorf("provider %q: %w", id, err)
	}
	updated, err := fn(st)
	if err != nil {
		return fmt.Errorf("provider %q: %w", id, err)
	}
	res.Doc.Providers[id] = quota.Apply(updated)
	if err := t.store.Save(res.Doc); err != nil {
		return err
	}
	t.logger.Info("provider updated", "provider", id, "kind", st.Kind().String())
	return nil
}

func malformedErr(m MalformedEntry) error {
	return fmt.Errorf("%w: %v", quota.ErrMalformedStatus, m.Err)
}
