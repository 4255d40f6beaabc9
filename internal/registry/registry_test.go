package registry

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-com-router/internal/bridge"
	"github.com/kstaniek/go-com-router/internal/serial"
)

// quietPort is a serial.Port that never produces data.
type quietPort struct {
	mu     sync.Mutex
	closed bool
}

func (q *quietPort) BytesAvailable() (int, error) { return 0, nil }

func (q *quietPort) Read(p []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, io.EOF
}

func (q *quietPort) IsOpen() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed
}

func (q *quietPort) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// pipeDial hands the bridge one side of an in-memory pipe and discards
// whatever arrives on the other side.
func pipeDial(network, addr string, timeout time.Duration) (net.Conn, error) {
	c1, c2 := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, c2) }()
	return c1, nil
}

func testBuilder(openErr error) BuildFunc {
	return func(device string, baud int, host string, port int) *bridge.Bridge {
		return bridge.New(device, baud, host, port,
			bridge.WithLogger(testLogger()),
			bridge.WithOpenFunc(func(string, int, time.Duration) (serial.Port, error) {
				if openErr != nil {
					return nil, openErr
				}
				return &quietPort{}, nil
			}),
			bridge.WithDialFunc(pipeDial),
		)
	}
}

func TestRegistryCreateAndList(t *testing.T) {
	r := New(testBuilder(nil))
	if _, err := r.Create("COM7", 9600, "127.0.0.1", 9000); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer r.StopAll()
	if _, err := r.Create("COM8", 115200, "127.0.0.1", 9001); err != nil {
		t.Fatalf("create second: %v", err)
	}
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(list))
	}
	if list[0].Device != "COM7" || list[1].Device != "COM8" {
		t.Fatalf("list not sorted by device: %+v", list)
	}
	if !list[0].Running || !list[1].Running {
		t.Fatalf("expected both routes running: %+v", list)
	}
	if list[0].Target != "127.0.0.1:9000" {
		t.Fatalf("unexpected target %q", list[0].Target)
	}
}

func TestRegistryDuplicateDevice(t *testing.T) {
	r := New(testBuilder(nil))
	defer r.StopAll()
	if _, err := r.Create("COM7", 9600, "127.0.0.1", 9000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Create("COM7", 9600, "127.0.0.1", 9001); !errors.Is(err, ErrRouteExists) {
		t.Fatalf("expected ErrRouteExists, got %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 route, got %d", r.Count())
	}
}

func TestRegistryFailedStartLeavesNoEntry(t *testing.T) {
	r := New(testBuilder(errors.New("device busy")))
	if _, err := r.Create("COM7", 9600, "127.0.0.1", 9000); !errors.Is(err, bridge.ErrPortUnavailable) {
		t.Fatalf("expected ErrPortUnavailable, got %v", err)
	}
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
	if _, ok := r.Get("COM7"); ok {
		t.Fatal("failed route must not be registered")
	}
}

func TestRegistryRemove(t *testing.T) {
	r := New(testBuilder(nil))
	b, err := r.Create("COM7", 9600, "127.0.0.1", 9000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Remove("COM7"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if b.Running() {
		t.Fatal("removed route should be stopped")
	}
	if err := r.Remove("COM7"); !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
}

func TestRegistryStopAll(t *testing.T) {
	r := New(testBuilder(nil))
	b1, _ := r.Create("COM7", 9600, "127.0.0.1", 9000)
	b2, _ := r.Create("COM8", 9600, "127.0.0.1", 9001)
	r.StopAll()
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
	if b1.Running() || b2.Running() {
		t.Fatal("expected all routes stopped")
	}
}
