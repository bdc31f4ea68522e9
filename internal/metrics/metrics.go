// Package metrics exposes Prometheus counters/gauges for the XMODEM core
// and gateway, plus a local atomic mirror for periodic slog-based logging
// without scraping Prometheus in-process.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-xmodem/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters / gauges.
var (
	PacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_packets_sent_total",
		Help: "Total XMODEM frames transmitted, including retransmits.",
	})
	PacketsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_packets_received_total",
		Help: "Total unique XMODEM frames accepted by the receiver (duplicates are not counted).",
	})
	PacketsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_packets_rejected_total",
		Help: "Total XMODEM frames rejected by the receiver (bad header/seq/integrity or timeout).",
	})
	Retransmits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_retransmits_total",
		Help: "Total transmitter retransmit rounds (NAK, timeout, or other byte).",
	})
	SyncAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_sync_attempts_total",
		Help: "Total sync-character emissions by the receiver during negotiation.",
	})
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_bytes_sent_total",
		Help: "Total payload bytes transmitted, including SUB padding of the final frame.",
	})
	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_bytes_received_total",
		Help: "Total payload bytes delivered to a receive sink.",
	})
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xmodem_sessions_total",
		Help: "Total Receive/Transmit sessions, labeled by terminal result.",
	}, []string{"result"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xmodem_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	ActiveMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xmodem_active_mode",
		Help: "Integrity mode of the most recently resolved session (0=unknown, 1=checksum, 2=crc).",
	})
	WatcherClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xmodem_watcher_clients",
		Help: "Current number of connected gateway watch clients.",
	})
	BroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xmodem_broadcast_fanout",
		Help: "Number of watchers targeted in the most recent event broadcast.",
	})
	HubDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_hub_dropped_events_total",
		Help: "Total progress events dropped by the hub due to slow watchers.",
	})
	HubKicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmodem_hub_kicked_clients_total",
		Help: "Total watchers disconnected due to the backpressure kick policy.",
	})
	QueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xmodem_hub_queue_depth_max",
		Help: "Observed max queued events among watchers in the last broadcast.",
	})
	QueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xmodem_hub_queue_depth_avg",
		Help: "Approximate average queued events per watcher in the last broadcast.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrTCPRead    = "tcp_read"
	ErrTCPWrite   = "tcp_write"
	ErrHandshake  = "handshake"
	ErrSerialRead = "serial_read"
	ErrTransport  = "transport"
	ErrSession    = "session"
)

// Session result label constants.
const (
	ResultOK                 = "ok"
	ResultCancelledByRemote  = "cancelled_by_remote"
	ResultNoSync             = "no_sync"
	ResultTooManyRetries     = "too_many_retries"
	ResultTransmitError      = "transmit_error"
	ResultUnexpectedResponse = "unexpected_response"
	ResultBufferFull         = "buffer_full"
	ResultOther              = "other"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process).
var (
	localPacketsSent     uint64
	localPacketsReceived uint64
	localPacketsRejected uint64
	localRetransmits     uint64
	localSyncAttempts    uint64
	localBytesSent       uint64
	localBytesReceived   uint64
	localErrors          uint64
	localWatcherClients  uint64
	localFanout          uint64
	localHubDrop         uint64
	localHubKick         uint64
	localQDMax           uint64
	localQDAvg           uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsRejected uint64
	Retransmits     uint64
	SyncAttempts    uint64
	BytesSent       uint64
	BytesReceived   uint64
	Errors          uint64 // sum across error labels
	WatcherClients  uint64
	Fanout          uint64
	HubDrops        uint64
	HubKicks        uint64
	QueueDepthMax   uint64
	QueueDepthAvg   uint64
}

func Snap() Snapshot {
	return Snapshot{
		PacketsSent:     atomic.LoadUint64(&localPacketsSent),
		PacketsReceived: atomic.LoadUint64(&localPacketsReceived),
		PacketsRejected: atomic.LoadUint64(&localPacketsRejected),
		Retransmits:     atomic.LoadUint64(&localRetransmits),
		SyncAttempts:    atomic.LoadUint64(&localSyncAttempts),
		BytesSent:       atomic.LoadUint64(&localBytesSent),
		BytesReceived:   atomic.LoadUint64(&localBytesReceived),
		Errors:          atomic.LoadUint64(&localErrors),
		WatcherClients:  atomic.LoadUint64(&localWatcherClients),
		Fanout:          atomic.LoadUint64(&localFanout),
		HubDrops:        atomic.LoadUint64(&localHubDrop),
		HubKicks:        atomic.LoadUint64(&localHubKick),
		QueueDepthMax:   atomic.LoadUint64(&localQDMax),
		QueueDepthAvg:   atomic.LoadUint64(&localQDAvg),
	}
}

// IncPacketSent records one transmitted frame (including retransmits).
func IncPacketSent() {
	PacketsSent.Inc()
	atomic.AddUint64(&localPacketsSent, 1)
}

// IncPacketAccepted records one uniquely accepted received frame.
func IncPacketAccepted() {
	PacketsReceived.Inc()
	atomic.AddUint64(&localPacketsReceived, 1)
}

// IncPacketRejected records one rejected received frame.
func IncPacketRejected() {
	PacketsRejected.Inc()
	atomic.AddUint64(&localPacketsRejected, 1)
}

// IncRetransmit records one transmitter retransmit round.
func IncRetransmit() {
	Retransmits.Inc()
	atomic.AddUint64(&localRetransmits, 1)
}

// IncSyncAttempt records one sync-character emission.
func IncSyncAttempt() {
	SyncAttempts.Inc()
	atomic.AddUint64(&localSyncAttempts, 1)
}

// AddBytesSent records n payload bytes transmitted (including padding).
func AddBytesSent(n int) {
	BytesSent.Add(float64(n))
	atomic.AddUint64(&localBytesSent, uint64(n))
}

// AddBytesReceived records n payload bytes delivered to a sink.
func AddBytesReceived(n int) {
	BytesReceived.Add(float64(n))
	atomic.AddUint64(&localBytesReceived, uint64(n))
}

// SetActiveMode records the integrity mode resolved for the most recent
// session: 0 unknown, 1 checksum, 2 crc.
func SetActiveMode(n int) { ActiveMode.Set(float64(n)) }

// IncSession records one terminated session labeled by its result.
func IncSession(result string) { Sessions.WithLabelValues(result).Inc() }

// IncError records one error, classified by subsystem label.
func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func SetWatcherClients(n int) {
	WatcherClients.Set(float64(n))
	atomic.StoreUint64(&localWatcherClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	BroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncHubDrop() {
	HubDropped.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKicked.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	QueueDepthMax.Set(float64(max))
	QueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a
	// registration latency.
	for _, lbl := range []string{ErrTCPRead, ErrTCPWrite, ErrHandshake, ErrSerialRead, ErrTransport, ErrSession} {
		Errors.WithLabelValues(lbl).Add(0)
	}
	for _, res := range []string{
		ResultOK, ResultCancelledByRemote, ResultNoSync, ResultTooManyRetries,
		ResultTransmitError, ResultUnexpectedResponse, ResultBufferFull, ResultOther,
	} {
		Sessions.WithLabelValues(res).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
