// Package metrics provides Prometheus metrics for the interpreter core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "live_interpreter"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SpeakerToggles  prometheus.Counter

	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter

	TurnsAppended        *prometheus.CounterVec
	TranslationFailures  prometheus.Counter
	RecognitionFailures  prometheus.Counter
	TurnRecordsSubmitted prometheus.Counter
	TurnRecordErrors     prometheus.Counter

	PlaybacksStarted  prometheus.Counter
	PlaybacksRejected prometheus.Counter
	PlaybackFailures  prometheus.Counter
}

// Default is the process-wide metrics instance.
var Default = New()

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of conversation sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently listening or processing",
		}),
		SpeakerToggles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaker_toggles_total",
			Help:      "Total number of accepted speaker toggles",
		}),
		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts applied",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of finalized utterances",
		}),
		TurnsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_appended_total",
			Help:      "Total turns appended to the in-memory history",
		}, []string{"kind"}),
		TranslationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_failures_total",
			Help:      "Total failed translation attempts",
		}),
		RecognitionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_failures_total",
			Help:      "Total recognition stream errors and open failures",
		}),
		TurnRecordsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_records_submitted_total",
			Help:      "Total persisted turn records handed to the turn log",
		}),
		TurnRecordErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_record_errors_total",
			Help:      "Total turn log append failures (fire-and-forget)",
		}),
		PlaybacksStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_started_total",
			Help:      "Total speech playbacks started by the coordinator",
		}),
		PlaybacksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_rejected_total",
			Help:      "Total speak calls rejected because the coordinator was busy",
		}),
		PlaybackFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_failures_total",
			Help:      "Total speech output port failures",
		}),
	}
}
