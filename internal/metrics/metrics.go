// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Probes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusmonitor_probes_total", Help: "Probes by site and resulting status",
	}, []string{"site", "status"})

	ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusmonitor_probe_failures_total", Help: "Failed probes by failure class",
	}, []string{"class"})

	ProbeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "statusmonitor_probe_duration_seconds", Help: "Wall-clock duration of probes",
		Buckets: prometheus.DefBuckets,
	}, []string{"site"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusmonitor_transitions_total", Help: "Status transitions by target status",
	}, []string{"to"})

	TrackerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statusmonitor_tracker_errors_total", Help: "Site updates that failed to persist",
	})

	SiteUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statusmonitor_site_up", Help: "1 when the site is Online, 0 otherwise",
	}, []string{"site"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "statusmonitor_cycle_duration_seconds", Help: "Duration of one sweep over all sites",
		Buckets: prometheus.DefBuckets,
	})

	CyclePanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statusmonitor_cycle_panics_total", Help: "Sweeps aborted by a recovered panic",
	})

	HistoryPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statusmonitor_history_pruned_total", Help: "History records removed by the retention sweep",
	})

	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusmonitor_alerts_sent_total", Help: "Notifications delivered by kind",
	}, []string{"kind"})

	AlertErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statusmonitor_alert_errors_total", Help: "Notifications that failed to send",
	})
)
