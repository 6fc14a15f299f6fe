// Package metrics exposes prometheus collectors for playback and
// catalog activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelbox_playback_sessions_total",
		Help: "Total number of playback sessions started",
	})

	playbackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelbox_playback_failures_total",
		Help: "Playback failures surfaced to the user, by kind",
	}, []string{"kind"}) // kind=source-not-found|permission-expired|unsupported-format|io|timeout|unknown

	playbackRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelbox_playback_retries_total",
		Help: "Silent re-resolution attempts after permission errors",
	})

	autoAdvance = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelbox_playlist_auto_advance_total",
		Help: "Automatic advances to the next playlist entry",
	})

	positionWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelbox_position_writes_total",
		Help: "Last-position persistence attempts by outcome",
	}, []string{"outcome"}) // outcome=ok|error

	subtitleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelbox_subtitle_events_total",
		Help: "Subtitle show/hide events emitted by the tracker",
	}, []string{"kind"}) // kind=show|hide

	catalogVideos = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelbox_catalog_videos",
		Help: "Number of videos in the catalog after the last scan",
	})

	catalogScanSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelbox_catalog_scan_duration_seconds",
		Help:    "Duration of full catalog scans",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordSessionStart counts one started playback session.
func RecordSessionStart() {
	sessionsStarted.Inc()
}

// RecordPlaybackFailure counts one user-visible playback failure.
func RecordPlaybackFailure(kind string) {
	playbackFailures.WithLabelValues(kind).Inc()
}

// RecordPlaybackRetry counts one silent re-resolution attempt.
func RecordPlaybackRetry() {
	playbackRetries.Inc()
}

// RecordAutoAdvance counts one playlist auto-advance.
func RecordAutoAdvance() {
	autoAdvance.Inc()
}

// RecordPositionWrite counts one position persistence attempt.
func RecordPositionWrite(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	positionWrites.WithLabelValues(outcome).Inc()
}

// RecordSubtitleEvent counts one show/hide emission.
func RecordSubtitleEvent(show bool) {
	kind := "hide"
	if show {
		kind = "show"
	}
	subtitleEvents.WithLabelValues(kind).Inc()
}

// RecordCatalogScan records the outcome of a full scan.
func RecordCatalogScan(videos int, seconds float64) {
	catalogVideos.Set(float64(videos))
	catalogScanSeconds.Observe(seconds)
}
