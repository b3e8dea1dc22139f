// Package quota interprets provider statuses and derives remaining capacity
// and time-to-reset from them.
package quota

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starlink-awaken/omo-quota/pkg/model"
)

// ErrMalformedStatus is returned when a status cannot be classified.
var ErrMalformedStatus = errors.New("malformed provider status")

// DefaultResetInterval is assumed when an hourly provider has no usable interval.
const DefaultResetInterval = 5 * time.Hour

// Kind identifies a provider status variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindHourly
	KindMonthly
	KindBalance
)

func (k Kind) String() string {
	switch k {
	case KindHourly:
		return "hourly"
	case KindMonthly:
		return "monthly"
	case KindBalance:
		return "balance"
	default:
		return "unknown"
	}
}

// Status is a classified provider status. Implementations are Hourly,
// Monthly and Balance.
type Status interface {
	Kind() Kind
	sealed()
}

// Hourly is a pool that fully refills at NextReset.
type Hourly struct {
	LastReset *time.Time
	NextReset time.Time
	// Interval is the parsed reset interval; zero when RawInterval did not parse.
	Interval    time.Duration
	RawInterval string
	// Usage is the declared percent used, if any.
	Usage *float64
}

// Monthly is a hard cap that resets each calendar month.
type Monthly struct {
	Month string
	Used  float64
	Limit float64
}

// Balance is a prepaid balance without a reset.
type Balance struct {
	Raw      string
	Currency string
}

func (Hourly) Kind() Kind  { return KindHourly }
func (Monthly) Kind() Kind { return KindMonthly }
func (Balance) Kind() Kind { return KindBalance }

func (Hourly) sealed()  {}
func (Monthly) sealed() {}
func (Balance) sealed() {}

// ResetEvery returns the interval used to re-baseline the pool. Remaining
// capacity does not use it.
func (h Hourly) ResetEvery() time.Duration {
	if h.Interval > 0 {
		return h.Interval
	}
	return DefaultResetInterval
}

// Classify decides the variant of a wire status. Precedence is monthly, then
// balance, then hourly; anything else is malformed.
func Classify(s model.ProviderStatus) (Status, error) {
	switch {
	case s.Month != "" && s.Limit != nil:
		m := Monthly{Month: s.Month, Limit: *s.Limit}
		if s.Used != nil {
			m.Used = *s.Used
		}
		return m, nil
	case s.Balance != "" && s.Currency != "":
		return Balance{Raw: s.Balance, Currency: strings.ToUpper(strings.TrimSpace(s.Currency))}, nil
	case s.ResetInterval != "":
		return classifyHourly(s)
	default:
		return nil, fmt.Errorf("%w: no month/limit, balance/currency or resetInterval fields", ErrMalformedStatus)
	}
}

func classifyHourly(s model.ProviderStatus) (Status, error) {
	next, err := parseTimestamp(s.NextReset)
	if err != nil {
		return nil, fmt.Errorf("%w: nextReset: %v", ErrMalformedStatus, err)
	}

	h := Hourly{
		NextReset:   next,
		RawInterval: s.ResetInterval,
		Usage:       s.Usage,
	}
	if d, err := time.ParseDuration(strings.TrimSpace(s.ResetInterval)); err == nil && d > 0 {
		h.Interval = d
	}
	if s.LastReset != "" {
		last, err := parseTimestamp(s.LastReset)
		if err != nil {
			return nil, fmt.Errorf("%w: lastReset: %v", ErrMalformedStatus, err)
		}
		h.LastReset = &last
	}
	return h, nil
}

// Apply writes a classified status back into its wire shape.
func Apply(st Status) model.ProviderStatus {
	switch v := st.(type) {
	case Hourly:
		out := model.ProviderStatus{
			NextReset:     formatTimestamp(v.NextReset),
			ResetInterval: v.RawInterval,
			Usage:         v.Usage,
		}
		if v.LastReset != nil {
			out.LastReset = formatTimestamp(*v.LastReset)
		}
		return out
	case Monthly:
		return model.ProviderStatus{
			Month: v.Month,
			Used:  model.Float64Ptr(v.Used),
			Limit: model.Float64Ptr(v.Limit),
		}
	case Balance:
		return model.ProviderStatus{Balance: v.Raw, Currency: v.Currency}
	default:
		panic(fmt.Sprintf("quota: cannot apply status of type %T", st))
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
