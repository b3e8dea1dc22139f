// Package usage derives per-provider consumption from local agent session logs.
package usage

import (
	"fmt"
	"sort"
)

// Unit selects which counter is applied to monthly providers.
type Unit string

const (
	UnitRequests Unit = "requests"
	UnitTokens   Unit = "tokens"
)

// ParseUnit validates a configured unit. An empty string means requests.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case "", UnitRequests:
		return UnitRequests, nil
	case UnitTokens:
		return UnitTokens, nil
	default:
		return "", fmt.Errorf("unknown usage unit %q (want requests or tokens)", s)
	}
}

// ProviderUsage is the consumption of a single provider within the scanned month.
type ProviderUsage struct {
	Requests     int64 `json:"requests"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	// Estimated counts the requests whose tokens were estimated from content.
	Estimated int64 `json:"estimated"`
}

// Tokens returns input plus output tokens.
func (p ProviderUsage) Tokens() int64 {
	return p.InputTokens + p.OutputTokens
}

// Summary is the result of one scan.
type Summary struct {
	Month     string                   `json:"month"`
	Providers map[string]ProviderUsage `json:"providers"`
	Files     int                      `json:"files"`
	Skipped   int                      `json:"skipped_lines"`
}

// Values converts the summary into the counts consumed by tracker sync.
func (s Summary) Values(unit Unit) map[string]float64 {
	out := make(map[string]float64, len(s.Providers))
	for id, p := range s.Providers {
		if unit == UnitTokens {
			out[id] = float64(p.Tokens())
		} else {
			out[id] = float64(p.Requests)
		}
	}
	return out
}

// ProviderIDs returns provider ids in sorted order.
func (s Summary) ProviderIDs() []string {
	ids := make([]string, 0, len(s.Providers))
	for id := range s.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
