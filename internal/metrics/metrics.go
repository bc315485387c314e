// Package metrics defines the bridge's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tabwire_build_info",
			Help: "Build information for the tabwire bridge",
		},
		[]string{"date", "sha", "version"},
	)

	framesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabwire_peer_frames_read_total",
			Help: "Frames successfully decoded from the peer",
		},
	)

	framesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabwire_peer_frames_written_total",
			Help: "Frames written to the peer",
		},
	)

	frameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabwire_peer_frame_errors_total",
			Help: "Peer frame decode failures by kind",
		},
		[]string{"kind"},
	)

	busPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabwire_bus_published_total",
			Help: "Messages published to the command bus by origin",
		},
		[]string{"origin"},
	)

	busLagDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabwire_bus_lag_dropped_total",
			Help: "Messages dropped because a receiver lagged the bus buffer",
		},
	)

	wsSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabwire_ws_subscribers",
			Help: "Currently connected WebSocket subscribers",
		},
	)
)

// Register registers all bridge collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, framesRead, framesWritten, frameErrors,
		busPublished, busLagDropped, wsSubscribers)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// FrameRead counts one successfully decoded peer frame.
func FrameRead() { framesRead.Inc() }

// FrameWritten counts one frame written to the peer.
func FrameWritten() { framesWritten.Inc() }

// FrameError counts one decode failure. Kind is "truncated", "malformed"
// or "io".
func FrameError(kind string) { frameErrors.WithLabelValues(kind).Inc() }

// Published counts one bus publication from the given origin ("local" or
// "peer").
func Published(origin string) { busPublished.WithLabelValues(origin).Inc() }

// LagDropped counts messages a receiver skipped after lagging.
func LagDropped(n uint64) { busLagDropped.Add(float64(n)) }

// SubscriberConnected tracks the live WebSocket subscriber gauge.
func SubscriberConnected()    { wsSubscribers.Inc() }
func SubscriberDisconnected() { wsSubscribers.Dec() }
