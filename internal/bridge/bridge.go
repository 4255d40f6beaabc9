// Package bridge relays bytes from a serial device into a TCP connection.
//
// A Bridge owns exactly one serial handle and one socket handle for the
// lifetime of a route. Start connects both endpoints (serial first) and
// spawns a single relay goroutine; Stop cancels it cooperatively, joins it
// with a bounded wait and releases both handles. The relay is unidirectional
// and imposes no framing on the byte stream: whatever the device produces is
// written to the socket in arrival order. The first I/O failure on either
// side ends the route; recovery is the caller's job (build a new Bridge).
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-com-router/internal/logging"
	"github.com/kstaniek/go-com-router/internal/metrics"
	"github.com/kstaniek/go-com-router/internal/serial"
)

const (
	defaultReadTimeout    = 200 * time.Millisecond
	defaultConnectTimeout = 5 * time.Second
	defaultStopTimeout    = 2 * time.Second
	defaultCycleDelay     = 10 * time.Millisecond
	relayBufSize          = 4096 // per cycle read buffer
)

// OpenFunc opens the serial endpoint. Replaceable for tests.
type OpenFunc func(device string, baud int, readTimeout time.Duration) (serial.Port, error)

// DialFunc connects the socket endpoint. Replaceable for tests.
type DialFunc func(network, addr string, timeout time.Duration) (net.Conn, error)

// Bridge routes bytes from one serial device to one TCP target.
type Bridge struct {
	device string
	baud   int
	host   string
	port   int

	readTimeout    time.Duration
	connectTimeout time.Duration
	stopTimeout    time.Duration
	cycleDelay     time.Duration

	open   OpenFunc
	dial   DialFunc
	logger *slog.Logger

	mu      sync.Mutex // guards handles and relay bookkeeping
	sp      serial.Port
	conn    net.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

type Option func(*Bridge)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.readTimeout = d
		}
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.connectTimeout = d
		}
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.stopTimeout = d
		}
	}
}

func WithCycleDelay(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.cycleDelay = d
		}
	}
}

func WithOpenFunc(fn OpenFunc) Option {
	return func(b *Bridge) {
		if fn != nil {
			b.open = fn
		}
	}
}

func WithDialFunc(fn DialFunc) Option {
	return func(b *Bridge) {
		if fn != nil {
			b.dial = fn
		}
	}
}

// New builds a Bridge for device@baud -> host:port. Nothing is opened until
// Start.
func New(device string, baud int, host string, port int, opts ...Option) *Bridge {
	b := &Bridge{
		device:         device,
		baud:           baud,
		host:           host,
		port:           port,
		readTimeout:    defaultReadTimeout,
		connectTimeout: defaultConnectTimeout,
		stopTimeout:    defaultStopTimeout,
		cycleDelay:     defaultCycleDelay,
		open: func(device string, baud int, readTimeout time.Duration) (serial.Port, error) {
			return serial.Open(device, baud, readTimeout, serial.DriverTermios)
		},
		dial:   net.DialTimeout,
		logger: logging.L(),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.With("device", b.device, "target", b.Target())
	return b
}

// Device returns the serial device identifier.
func (b *Bridge) Device() string { return b.device }

// Baud returns the configured baud rate.
func (b *Bridge) Baud() int { return b.baud }

// Host returns the target host.
func (b *Bridge) Host() string { return b.host }

// Port returns the target TCP port.
func (b *Bridge) Port() int { return b.port }

// Target returns the host:port destination.
func (b *Bridge) Target() string { return net.JoinHostPort(b.host, strconv.Itoa(b.port)) }

// Running reports whether the relay goroutine is active.
func (b *Bridge) Running() bool { return b.running.Load() }

// Start connects both endpoints and launches the relay goroutine. It is
// idempotent-safe: a call while already running logs and returns nil without
// a second connection attempt. On a connect failure both handles end up
// released and no goroutine is spawned.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running.Load() {
		b.logger.Info("route_already_running")
		return nil
	}
	sp, conn, err := b.connect()
	if err != nil {
		metrics.IncRouteFailed()
		return err
	}
	b.sp = sp
	b.conn = conn
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running.Store(true)
	go b.relay(ctx, sp, conn, b.done)
	metrics.IncRouteStarted()
	b.logger.Info("route_started", "baud", b.baud)
	return nil
}

// connect opens the serial endpoint first, then dials the target. Serial
// acquisition is the scarcer resource, so it fails fast before any network
// I/O. If the dial fails the already-open serial handle is closed before
// returning.
func (b *Bridge) connect() (serial.Port, net.Conn, error) {
	sp, err := b.open(b.device, b.baud, b.readTimeout)
	if err != nil {
		metrics.IncError(metrics.ErrSerialOpen)
		b.logger.Error("serial_open_error", "baud", b.baud, "error", err)
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, b.device, err)
	}
	b.logger.Info("serial_open", "baud", b.baud)
	conn, err := b.dial("tcp", b.Target(), b.connectTimeout)
	if err != nil {
		if cerr := sp.Close(); cerr != nil {
			metrics.IncError(metrics.ErrSerialClose)
			b.logger.Warn("serial_close_error", "error", cerr)
		}
		metrics.IncError(metrics.ErrDial)
		b.logger.Error("socket_connect_error", "error", err)
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrConnect, b.Target(), err)
	}
	b.logger.Info("socket_connected")
	return sp, conn, nil
}

// relay is the background loop. It runs until cancelled or until the first
// I/O error, and flips running to false on the way out so status readers see
// the route as dead immediately.
func (b *Bridge) relay(ctx context.Context, sp serial.Port, conn net.Conn, done chan struct{}) {
	defer close(done)
	defer b.running.Store(false)
	b.logger.Info("relay_start")
	defer b.logger.Info("relay_end")
	buf := make([]byte, relayBufSize)
	delay := time.NewTimer(b.cycleDelay)
	defer delay.Stop()
	for b.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !sp.IsOpen() {
			b.logger.Warn("serial_not_open")
			return
		}
		avail, err := sp.BytesAvailable()
		if err != nil {
			metrics.IncError(metrics.ErrSerialRead)
			b.logger.Error("serial_read_error", "error", err)
			return
		}
		// Drain whatever is queued; otherwise a single timed byte read so an
		// idle device does not spin the loop.
		want := avail
		if want <= 0 {
			want = 1
		}
		if want > len(buf) {
			want = len(buf)
		}
		n, rerr := sp.Read(buf[:want])
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				metrics.IncError(metrics.ErrSocketWrite)
				b.logger.Error("socket_write_error", "error", werr)
				return
			}
			metrics.AddSerialRx(n)
			metrics.AddSocketTx(n)
		}
		if rerr != nil && !isReadTimeout(rerr) {
			if ctx.Err() != nil { // shutting down; the closed handle is expected
				return
			}
			metrics.IncError(metrics.ErrSerialRead)
			b.logger.Error("serial_read_error", "error", rerr)
			return
		}
		metrics.IncRelayCycle()
		delay.Reset(b.cycleDelay)
		select {
		case <-ctx.Done():
			return
		case <-delay.C:
		}
	}
}

// isReadTimeout reports whether a serial read error is a timeout artifact.
// Both drivers surface an expired VTIME read as io.EOF (zero-byte read on an
// *os.File), which is "no data yet", not a device failure.
func isReadTimeout(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Stop requests cooperative shutdown and releases both handles. It is safe
// to call from any goroutine, any number of times, including when Start
// never succeeded. It never fails: a close error on one handle is logged and
// does not prevent closing the other.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running.Store(false)
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.done != nil {
		select {
		case <-b.done:
		case <-time.After(b.stopTimeout):
			// Proceed anyway: worst case the relay is wedged in a blocking
			// read or write; closing the handles below unblocks it.
			b.logger.Warn("relay_join_timeout", "waited", b.stopTimeout)
		}
		b.done = nil
	}
	if b.sp != nil {
		if err := b.sp.Close(); err != nil {
			metrics.IncError(metrics.ErrSerialClose)
			b.logger.Warn("serial_close_error", "error", err)
		} else {
			b.logger.Info("serial_closed")
		}
		b.sp = nil
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			metrics.IncError(metrics.ErrSocketClose)
			b.logger.Warn("socket_close_error", "error", err)
		} else {
			b.logger.Info("socket_closed")
		}
		b.conn = nil
	}
	b.logger.Info("route_stopped")
}
