package quota

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Expired is returned by TimeUntilReset once the reset time has passed.
const Expired = "expired"

// Assumed starting balances. No initial balance is persisted, so the remaining
// share of a balance provider is measured against these.
const (
	assumedInitialCNY   = 500.0
	assumedInitialOther = 100.0
)

// Estimate is the derived remaining capacity of a provider.
type Estimate struct {
	// Percent is the remaining capacity in [0, 100]. Meaningless unless Valid.
	Percent float64
	Valid   bool
	// Expired marks an hourly pool past its reset time. Percent is 0, but the
	// pool should be re-baselined rather than switched away from.
	Expired bool
}

// UsedPercent returns 100 - Percent.
func (e Estimate) UsedPercent() float64 {
	return 100 - e.Percent
}

// Remaining derives the remaining percentage of a classified status at now.
func Remaining(st Status, now time.Time) Estimate {
	switch v := st.(type) {
	case Monthly:
		return MonthlyRemaining(v)
	case Hourly:
		return HourlyRemaining(v, now)
	case Balance:
		return BalanceRemaining(v)
	default:
		return Estimate{}
	}
}

// MonthlyRemaining is (limit-used)/limit rounded to one decimal.
func MonthlyRemaining(m Monthly) Estimate {
	if m.Limit <= 0 {
		return Estimate{}
	}
	return Estimate{Percent: round1((m.Limit - m.Used) / m.Limit * 100), Valid: true}
}

// MonthlyUsed is used/limit rounded to one decimal.
func MonthlyUsed(m Monthly) (float64, bool) {
	if m.Limit <= 0 {
		return 0, false
	}
	return round1(m.Used / m.Limit * 100), true
}

// HourlyRemaining estimates remaining capacity from elapsed time. A declared
// usage caps the estimate; the smaller of the two wins.
func HourlyRemaining(h Hourly, now time.Time) Estimate {
	if !now.Before(h.NextReset) {
		return Estimate{Percent: 0, Valid: true, Expired: true}
	}

	// Without a last reset the window is assumed to be the default length,
	// whatever resetInterval says.
	total := DefaultResetInterval
	if h.LastReset != nil {
		total = h.NextReset.Sub(*h.LastReset)
	}
	if total <= 0 {
		return Estimate{}
	}

	remaining := h.NextReset.Sub(now)
	pct := math.Min(100, float64(remaining)/float64(total)*100)
	if h.Usage != nil {
		pct = math.Min(100-*h.Usage, pct)
	}
	return Estimate{Percent: clamp(pct), Valid: true}
}

// BalanceRemaining compares the parsed balance with the assumed initial balance.
func BalanceRemaining(b Balance) Estimate {
	amount, ok := ParseAmount(b.Raw)
	if !ok {
		return Estimate{}
	}
	return Estimate{Percent: clamp(amount / InitialBalance(b.Currency) * 100), Valid: true}
}

// InitialBalance returns the assumed starting balance for currency.
func InitialBalance(currency string) float64 {
	if strings.EqualFold(strings.TrimSpace(currency), "CNY") {
		return assumedInitialCNY
	}
	return assumedInitialOther
}

var amountPattern = regexp.MustCompile(`^[-+]?(\d[\d,]*(\.\d+)?|\.\d+)`)

// ParseAmount reads the leading number of a currency-formatted string such as
// "¥450.50" or "$1,200". Currency symbols and spaces before the number are skipped.
func ParseAmount(raw string) (float64, bool) {
	text := strings.TrimLeftFunc(raw, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '-' && r != '+' && r != '.'
	})
	match := amountPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatAmount renders v with the symbol conventionally used for currency.
func FormatAmount(v float64, currency string) string {
	switch strings.ToUpper(currency) {
	case "CNY":
		return fmt.Sprintf("¥%.2f", v)
	case "USD":
		return fmt.Sprintf("$%.2f", v)
	default:
		return fmt.Sprintf("%.2f %s", v, strings.ToUpper(currency))
	}
}

// TimeUntilReset renders the time left until next as "{h}h {m}m".
func TimeUntilReset(next, now time.Time) string {
	d := next.Sub(now)
	if d <= 0 {
		return Expired
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
