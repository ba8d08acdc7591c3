package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queue occupancy
	queueBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playout_queue_bytes",
		Help: "Bytes currently held per queue",
	}, []string{"kind"})

	queueUnits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playout_queue_units",
		Help: "Decoded units currently held per queue",
	}, []string{"kind"})

	decodeReady = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playout_decode_ready",
		Help: "Decode readiness gate (1 open, 0 closed)",
	}, []string{"kind"})

	// Video pacing
	videoFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_video_frames_total",
		Help: "Video frames by dequeue outcome",
	}, []string{"outcome"})

	videoDrift = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playout_video_drift_seconds",
		Help:    "Head PTS minus target PTS for delivered frames",
		Buckets: []float64{0, 0.001, 0.002, 0.004, 0.006, 0.008, 0.010},
	})

	// Audio ring and buffer
	ringFractionalOffsets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playout_ring_fractional_offsets_total",
		Help: "PTS to byte conversions that did not land on a whole byte",
	})

	audioBackBufferTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_audio_back_buffer_total",
		Help: "Back-buffer events by action",
	}, []string{"action"})

	// Decode loop
	decodeResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_decode_results_total",
		Help: "Decoder results by code",
	}, []string{"result"})

	seeksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_seeks_total",
		Help: "Queue seeks by kind and outcome",
	}, []string{"kind", "outcome"})

	// Debug metrics
	activeGoroutines = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "debug_goroutines_active",
		Help: "Number of active goroutines",
	}, []string{"component"})
)

// SetQueueState records queue occupancy for a media kind
func SetQueueState(kind string, bytes int64, units int64) {
	queueBytes.WithLabelValues(kind).Set(float64(bytes))
	queueUnits.WithLabelValues(kind).Set(float64(units))
}

// SetDecodeReady records a readiness gate
func SetDecodeReady(kind string, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	decodeReady.WithLabelValues(kind).Set(v)
}

// IncrementVideoFrames counts a dequeue outcome: delivered, dropped or early
func IncrementVideoFrames(outcome string) {
	videoFramesTotal.WithLabelValues(outcome).Inc()
}

// ObserveVideoDrift records how far ahead of the clock a delivered frame was
func ObserveVideoDrift(seconds float64) {
	videoDrift.Observe(seconds)
}

// IncrementFractionalOffset counts a non-integer ring byte offset
func IncrementFractionalOffset() {
	ringFractionalOffsets.Inc()
}

// IncrementBackBuffer counts back-buffer stash, drain and reject events
func IncrementBackBuffer(action string) {
	audioBackBufferTotal.WithLabelValues(action).Inc()
}

// IncrementDecodeResult counts a decoder result code
func IncrementDecodeResult(result string) {
	decodeResultsTotal.WithLabelValues(result).Inc()
}

// IncrementSeek counts a queue seek
func IncrementSeek(kind string, ok bool) {
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	seeksTotal.WithLabelValues(kind, outcome).Inc()
}

// IncrementGoroutineCreated tracks a started worker goroutine
func IncrementGoroutineCreated(component string) {
	activeGoroutines.WithLabelValues(component).Inc()
}

// IncrementGoroutineDestroyed tracks a finished worker goroutine
func IncrementGoroutineDestroyed(component string) {
	activeGoroutines.WithLabelValues(component).Dec()
}
