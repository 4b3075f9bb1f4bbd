// Package metrics holds tripwire's Prometheus collectors. They register
// with the default registry and are exposed by the status server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcomes.
const (
	OutcomeUnchanged = "unchanged"
	OutcomeChanged   = "changed"
	OutcomeNotified  = "notified"
	OutcomeFailed    = "failed"
)

var (
	// Monitor metrics
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_ticks_total",
			Help: "Total number of completed site checks",
		},
		[]string{"site", "outcome"}, // outcome: unchanged, changed, notified, failed
	)

	MonitorsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripwire_monitors_running",
			Help: "Number of site monitors currently running",
		},
	)

	MonitorTerminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_monitor_terminations_total",
			Help: "Total number of monitors stopped by a tick error",
		},
		[]string{"site", "stage"},
	)

	// Fetch metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripwire_fetch_duration_seconds",
			Help:    "Page acquisition latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"strategy"}, // strategy: http, browser
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"site", "channel", "status"}, // status: success, failed
	)

	// Status server metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_http_requests_total",
			Help: "Total number of status server requests",
		},
		[]string{"route", "status"},
	)
)

// Strategy returns the fetch strategy label for a site.
func Strategy(useBrowser bool) string {
	if useBrowser {
		return "browser"
	}
	return "http"
}

// Status returns the delivery status label for err.
func Status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
