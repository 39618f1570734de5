// Package metrics declares the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcomes, used as the "outcome" label
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid"
	OutcomeExpired       = "expired"
	OutcomeUsed          = "used"
	OutcomeEntityMissing = "entity_missing"
	OutcomeError         = "error"
)

var (
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_access_resolutions_total",
		Help: "Token resolutions by outcome",
	}, []string{"outcome"})

	ResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nfc_access_resolution_duration_seconds",
		Help:    "End-to-end resolution latency",
		Buckets: prometheus.DefBuckets,
	})

	// SideEffectFailuresTotal counts swallowed failures after a successful
	// resolution (scan counter, session recorder).
	SideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_access_side_effect_failures_total",
		Help: "Best-effort steps that failed after a successful resolution",
	}, []string{"step"})

	TokensCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_access_tokens_created_total",
		Help: "Access tokens issued by kind",
	}, []string{"kind"})

	NotifierEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_access_notifier_events_total",
		Help: "Scan events handed to the realtime notifier",
	}, []string{"status"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nfc_access_websocket_clients",
		Help: "Connected realtime dashboard clients",
	})

	SweepRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_access_sweep_records_total",
		Help: "Records affected by background sweeps",
	}, []string{"job"})

	SweepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_access_sweep_failures_total",
		Help: "Failed background sweep runs",
	}, []string{"job"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nfc_access_rate_limited_total",
		Help: "Requests rejected by admission control",
	})
)

