package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-com-router/internal/bridge"
	"github.com/kstaniek/go-com-router/internal/registry"
	"github.com/kstaniek/go-com-router/internal/serial"
)

type idlePort struct {
	mu     sync.Mutex
	closed bool
}

func (p *idlePort) BytesAvailable() (int, error) { return 0, nil }
func (p *idlePort) Read(b []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, io.EOF
}
func (p *idlePort) IsOpen() bool { p.mu.Lock(); defer p.mu.Unlock(); return !p.closed }
func (p *idlePort) Close() error { p.mu.Lock(); defer p.mu.Unlock(); p.closed = true; return nil }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// TestStartInitialRoutesSkipsFailures verifies a dead device does not take
// the remaining initial routes down.
func TestStartInitialRoutesSkipsFailures(t *testing.T) {
	cfg := baseConfig()
	cfg.routes = []routeSpec{
		{device: "COM1", baud: 9600, host: "127.0.0.1", port: 9000},
		{device: "BROKEN", baud: 9600, host: "127.0.0.1", port: 9001},
		{device: "COM2", baud: 9600, host: "127.0.0.1", port: 9002},
	}
	reg := registry.New(func(device string, baud int, host string, port int) *bridge.Bridge {
		return bridge.New(device, baud, host, port,
			bridge.WithLogger(testLogger()),
			bridge.WithOpenFunc(func(device string, baud int, readTimeout time.Duration) (serial.Port, error) {
				if device == "BROKEN" {
					return nil, errors.New("device busy")
				}
				return &idlePort{}, nil
			}),
			bridge.WithDialFunc(func(network, addr string, timeout time.Duration) (net.Conn, error) {
				c1, c2 := net.Pipe()
				go func() { _, _ = io.Copy(io.Discard, c2) }()
				return c1, nil
			}),
		)
	})
	defer reg.StopAll()

	startInitialRoutes(cfg, reg, testLogger())
	if reg.Count() != 2 {
		t.Fatalf("expected 2 routes, got %d", reg.Count())
	}
	if _, ok := reg.Get("BROKEN"); ok {
		t.Fatal("failed route must not be registered")
	}
	for _, dev := range []string{"COM1", "COM2"} {
		b, ok := reg.Get(dev)
		if !ok || !b.Running() {
			t.Fatalf("expected %s running", dev)
		}
	}
}
