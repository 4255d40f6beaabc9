package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus series
var (
	SerialRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_bytes_total",
		Help: "Total bytes read from serial devices across all routes.",
	})
	SocketTxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socket_tx_bytes_total",
		Help: "Total bytes forwarded to TCP targets across all routes.",
	})
	RelayCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_cycles_total",
		Help: "Total relay loop cycles executed across all routes.",
	})
	RoutesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routes_started_total",
		Help: "Total routes that reached the running state.",
	})
	RoutesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routes_failed_total",
		Help: "Total route start attempts that failed to connect.",
	})
	RoutesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "routes_active",
		Help: "Current number of registered routes.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSerialOpen  = "serial_open"
	ErrDial        = "dial"
	ErrSerialRead  = "serial_read"
	ErrSocketWrite = "socket_write"
	ErrSerialClose = "serial_close"
	ErrSocketClose = "socket_close"
	ErrPairing     = "pairing"
	ErrHTTP        = "http"
)

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSerialRx     uint64
	localSocketTx     uint64
	localCycles       uint64
	localStarted      uint64
	localFailed       uint64
	localActiveRoutes uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SerialRxBytes uint64
	SocketTxBytes uint64
	RelayCycles   uint64
	RoutesStarted uint64
	RoutesFailed  uint64
	RoutesActive  uint64
	Errors        uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		SerialRxBytes: atomic.LoadUint64(&localSerialRx),
		SocketTxBytes: atomic.LoadUint64(&localSocketTx),
		RelayCycles:   atomic.LoadUint64(&localCycles),
		RoutesStarted: atomic.LoadUint64(&localStarted),
		RoutesFailed:  atomic.LoadUint64(&localFailed),
		RoutesActive:  atomic.LoadUint64(&localActiveRoutes),
		Errors:        atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func AddSerialRx(n int) {
	SerialRxBytes.Add(float64(n))
	atomic.AddUint64(&localSerialRx, uint64(n))
}

func AddSocketTx(n int) {
	SocketTxBytes.Add(float64(n))
	atomic.AddUint64(&localSocketTx, uint64(n))
}

func IncRelayCycle() {
	RelayCycles.Inc()
	atomic.AddUint64(&localCycles, 1)
}

func IncRouteStarted() {
	RoutesStarted.Inc()
	atomic.AddUint64(&localStarted, 1)
}

func IncRouteFailed() {
	RoutesFailed.Inc()
	atomic.AddUint64(&localFailed, 1)
}

func SetActiveRoutes(n int) {
	RoutesActive.Set(float64(n))
	atomic.StoreUint64(&localActiveRoutes, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error label series so the first error does not pay the
	// registration cost.
	for _, lbl := range []string{
		ErrSerialOpen, ErrDial, ErrSerialRead, ErrSocketWrite,
		ErrSerialClose, ErrSocketClose, ErrPairing, ErrHTTP,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so the endpoint doesn't flap
		return true
	}
	return fn()
}
