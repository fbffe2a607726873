// Package metrics exposes Prometheus counters and histograms for
// sessions, attachments, and the frame pipeline, scraped over the
// management API's /metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the server publishes. Callers construct
// one at startup and pass it to the launcher, which records into it,
// and to the management server, which exposes it, rather than reaching
// for global state.
type Registry struct {
	reg *prometheus.Registry

	sessionsActive    prometheus.Gauge
	sessionsStarted   prometheus.Counter
	sessionsReaped    prometheus.Counter
	attachmentsActive prometheus.Gauge

	videoFramesSent    prometheus.Counter
	videoFramesDropped prometheus.Counter
	audioFramesSent    prometheus.Counter
	audioFramesDropped prometheus.Counter

	frameEncodeDuration prometheus.Histogram
	sessionAttachWait   prometheus.Histogram

	fecRepairRatio *prometheus.GaugeVec
}

// New creates a Registry with its own private Prometheus registry, so
// multiple Registries (as in tests) never collide on metric names.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mmserverd_sessions_active",
			Help: "Number of sessions currently tracked by the session manager.",
		}),
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmserverd_sessions_started_total",
			Help: "Total number of sessions started.",
		}),
		sessionsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmserverd_sessions_reaped_total",
			Help: "Total number of sessions reaped for idle timeout.",
		}),
		attachmentsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mmserverd_attachments_active",
			Help: "Number of client attachments currently receiving frames.",
		}),
		videoFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmserverd_video_frames_sent_total",
			Help: "Total number of video frames delivered to an attachment.",
		}),
		videoFramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmserverd_video_frames_dropped_total",
			Help: "Total number of video frames dropped by backpressure or a poisoned GOP.",
		}),
		audioFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmserverd_audio_frames_sent_total",
			Help: "Total number of audio frames delivered to an attachment.",
		}),
		audioFramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmserverd_audio_frames_dropped_total",
			Help: "Total number of audio frames dropped by backpressure.",
		}),
		frameEncodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mmserverd_frame_encode_duration_seconds",
			Help:    "Time spent compositing, converting, and encoding one frame.",
			Buckets: []float64{0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.066},
		}),
		sessionAttachWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mmserverd_session_attach_wait_seconds",
			Help:    "Time from an Attach request to the first frame sent.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		fecRepairRatio: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mmserverd_fec_repair_ratio",
			Help: "Configured FEC repair-to-source chunk ratio, by hierarchical layer.",
		}, []string{"layer"}),
	}
}

// SessionStarted records a new session joining the manager.
func (r *Registry) SessionStarted() {
	r.sessionsActive.Inc()
	r.sessionsStarted.Inc()
}

// SessionEnded records a session leaving the manager, whether by normal
// termination or idle reaping.
func (r *Registry) SessionEnded(reaped bool) {
	r.sessionsActive.Dec()
	if reaped {
		r.sessionsReaped.Inc()
	}
}

// AttachmentStarted records a client attaching to a session.
func (r *Registry) AttachmentStarted() {
	r.attachmentsActive.Inc()
}

// AttachmentEnded records a client detaching.
func (r *Registry) AttachmentEnded() {
	r.attachmentsActive.Dec()
}

// RecordVideoDelivery updates video delivery counters.
func (r *Registry) RecordVideoDelivery(sent bool) {
	if sent {
		r.videoFramesSent.Inc()
	} else {
		r.videoFramesDropped.Inc()
	}
}

// RecordAudioDelivery updates audio delivery counters.
func (r *Registry) RecordAudioDelivery(sent bool) {
	if sent {
		r.audioFramesSent.Inc()
	} else {
		r.audioFramesDropped.Inc()
	}
}

// ObserveFrameEncode records one frame's composite-convert-encode latency.
func (r *Registry) ObserveFrameEncode(d time.Duration) {
	r.frameEncodeDuration.Observe(d.Seconds())
}

// ObserveAttachWait records the latency from Attach to first frame sent.
func (r *Registry) ObserveAttachWait(d time.Duration) {
	r.sessionAttachWait.Observe(d.Seconds())
}

// SetFECRepairRatio records the configured FEC ratio for a hierarchical layer.
func (r *Registry) SetFECRepairRatio(layer int, ratio float64) {
	r.fecRepairRatio.WithLabelValues(layerLabel(layer)).Set(ratio)
}

// Handler returns the HTTP handler that serves this Registry's metrics
// in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func layerLabel(layer int) string {
	switch layer {
	case 0:
		return "0"
	case 1:
		return "1"
	default:
		return "2+"
	}
}
