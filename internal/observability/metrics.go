package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subdub_synthesis_requests_total",
		Help: "Total speech synthesis attempts by result",
	}, []string{"status"}) // status: "success" or "error"

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "subdub_synthesis_latency_seconds",
		Help:    "Speech synthesis request latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	segments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subdub_segments_total",
		Help: "Cue segments processed by outcome",
	}, []string{"outcome"}) // generated, cached, resumed, empty, failed

	timingAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subdub_timing_anomalies_total",
		Help: "Timeline anomalies detected while fitting slots",
	}, []string{"kind"}) // overlap, late_start

	audioSecondsProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subdub_audio_seconds_produced_total",
		Help: "Seconds of audio placed into the output track",
	})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subdub_synthesis_retries_total",
		Help: "Synthesis attempts beyond the first, across all cues",
	})
)

// RecordSynthesis records one synthesis attempt and its latency.
func RecordSynthesis(success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	synthesisRequests.WithLabelValues(status).Inc()
	synthesisLatency.Observe(elapsed.Seconds())
}

// RecordRetry counts a repeated synthesis attempt.
func RecordRetry() {
	retriesTotal.Inc()
}

// RecordSegment counts a processed cue segment by outcome.
func RecordSegment(outcome string) {
	segments.WithLabelValues(outcome).Inc()
}

// RecordOverlap counts a detected cue overlap.
func RecordOverlap() {
	timingAnomalies.WithLabelValues("overlap").Inc()
}

// RecordLateStart counts a late-start speed-up.
func RecordLateStart() {
	timingAnomalies.WithLabelValues("late_start").Inc()
}

// RecordAudioProduced adds placed audio time to the output counter.
func RecordAudioProduced(d time.Duration) {
	audioSecondsProduced.Add(d.Seconds())
}
