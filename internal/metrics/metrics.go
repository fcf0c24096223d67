// Package metrics provides Prometheus metrics for channel ingestion and capture calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	channelsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camgate",
		Subsystem: "channel",
		Name:      "live",
		Help:      "Number of channels with a running push listener",
	})

	connectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camgate",
		Subsystem: "channel",
		Name:      "connections_active",
		Help:      "Camera push connections currently open",
	}, []string{"port"})

	connectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgate",
		Subsystem: "channel",
		Name:      "connections_rejected_total",
		Help:      "Camera push connections refused because the channel was at capacity",
	}, []string{"port"})

	connectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgate",
		Subsystem: "channel",
		Name:      "connection_errors_total",
		Help:      "Camera push connections dropped after an I/O or framing error",
	}, []string{"port", "reason"})

	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgate",
		Subsystem: "channel",
		Name:      "frames_total",
		Help:      "Complete push frames received",
	}, []string{"port"})

	decodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgate",
		Subsystem: "channel",
		Name:      "decode_failures_total",
		Help:      "Push frames that did not decode into an event",
	}, []string{"port", "type"})

	eventsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgate",
		Subsystem: "channel",
		Name:      "events_total",
		Help:      "Decoded events written into the result slot",
	}, []string{"port", "type"})

	polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgate",
		Subsystem: "channel",
		Name:      "polls_total",
		Help:      "Poll calls by outcome",
	}, []string{"port", "outcome"})

	captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgate",
		Subsystem: "capture",
		Name:      "requests_total",
		Help:      "Synchronous capture calls by outcome",
	}, []string{"type", "outcome"})

	captureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "camgate",
		Subsystem: "capture",
		Name:      "duration_seconds",
		Help:      "Synchronous capture round trip time",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"type"})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ChannelStarted marks a channel as live.
func ChannelStarted() {
	channelsLive.Inc()
}

// ChannelStopped removes a channel and drops its per-port series.
func ChannelStopped(port int) {
	channelsLive.Dec()
	p := strconv.Itoa(port)
	connectionsActive.DeleteLabelValues(p)
}

// ConnectionOpened records an accepted camera connection.
func ConnectionOpened(port int) {
	connectionsActive.WithLabelValues(strconv.Itoa(port)).Inc()
}

// ConnectionClosed records a camera connection going away.
func ConnectionClosed(port int) {
	connectionsActive.WithLabelValues(strconv.Itoa(port)).Dec()
}

// ConnectionRejected records a connection refused at capacity.
func ConnectionRejected(port int) {
	connectionsRejected.WithLabelValues(strconv.Itoa(port)).Inc()
}

// ConnectionError records a connection dropped for reason (io, timeout, overflow, decode).
func ConnectionError(port int, reason string) {
	connectionErrors.WithLabelValues(strconv.Itoa(port), reason).Inc()
}

// FrameReceived records one complete push frame.
func FrameReceived(port int) {
	framesReceived.WithLabelValues(strconv.Itoa(port)).Inc()
}

// DecodeFailed records a frame that produced no event.
func DecodeFailed(port int, channelType string) {
	decodeFailures.WithLabelValues(strconv.Itoa(port), channelType).Inc()
}

// EventStored records an event overwriting the result slot.
func EventStored(port int, channelType string) {
	eventsStored.WithLabelValues(strconv.Itoa(port), channelType).Inc()
}

// Polled records a poll call; hit is true when a result was returned.
func Polled(port int, hit bool) {
	outcome := "empty"
	if hit {
		outcome = "hit"
	}
	polls.WithLabelValues(strconv.Itoa(port), outcome).Inc()
}

// CaptureDone records a capture call outcome and latency.
func CaptureDone(channelType, outcome string, elapsed time.Duration) {
	captures.WithLabelValues(channelType, outcome).Inc()
	captureDuration.WithLabelValues(channelType).Observe(elapsed.Seconds())
}
