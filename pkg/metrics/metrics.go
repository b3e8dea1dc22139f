// Package metrics holds the Prometheus collectors exported by omo-quota.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RemainingPercent tracks the estimated remaining capacity per provider.
	RemainingPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "omo_quota_remaining_percent",
			Help: "Estimated remaining capacity of a provider in percent",
		},
		[]string{"provider"},
	)

	// AlertsTotal counts quota alerts emitted by the monitor.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omo_quota_alerts_total",
			Help: "Total number of quota alerts emitted",
		},
		[]string{"level"},
	)

	// SwitchTotal counts strategy switch attempts by outcome.
	SwitchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omo_quota_switch_total",
			Help: "Total number of strategy switch attempts",
		},
		[]string{"strategy", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(RemainingPercent)
	prometheus.MustRegister(AlertsTotal)
	prometheus.MustRegister(SwitchTotal)
}
