// Package metrics holds the Prometheus collectors of the chat core. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chatsync"

type Metrics struct {
	OpenSubscriptions   prometheus.Gauge
	DeliveredSnapshots  *prometheus.CounterVec
	DroppedRecords      prometheus.Counter
	Uploads             *prometheus.CounterVec
	Recordings          *prometheus.CounterVec
	PlaybackTransitions *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a private registry,
// which keeps tests independent of the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		OpenSubscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_subscriptions",
			Help:      "Channel subscriptions currently attached to the document store.",
		}),
		DeliveredSnapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_delivered_total",
			Help:      "Channel snapshots applied to a local message store, by outcome.",
		}, []string{"outcome"}),
		DroppedRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Stored records skipped because they could not be decoded.",
		}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Media uploads by result and message kind.",
		}, []string{"result", "kind"}),
		Recordings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Audio recordings by result.",
		}, []string{"result"}),
		PlaybackTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_transitions_total",
			Help:      "Playback state transitions by target state.",
		}, []string{"state"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open websocket chat sessions.",
		}),
	}
}

func (m *Metrics) SubscriptionOpened() {
	if m != nil {
		m.OpenSubscriptions.Inc()
	}
}

func (m *Metrics) SubscriptionClosed() {
	if m != nil {
		m.OpenSubscriptions.Dec()
	}
}

// SnapshotDelivered counts one delivery. outcome is "applied", "error" or
// "panic".
func (m *Metrics) SnapshotDelivered(outcome string) {
	if m != nil {
		m.DeliveredSnapshots.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RecordsDropped(n int) {
	if m != nil && n > 0 {
		m.DroppedRecords.Add(float64(n))
	}
}

func (m *Metrics) Upload(result, kind string) {
	if m != nil {
		m.Uploads.WithLabelValues(result, kind).Inc()
	}
}

func (m *Metrics) Recording(result string) {
	if m != nil {
		m.Recordings.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) PlaybackTransition(state string) {
	if m != nil {
		m.PlaybackTransitions.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.SessionsActive.Dec()
	}
}
