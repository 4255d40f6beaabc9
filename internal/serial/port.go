package serial

import (
	"fmt"
	"time"
)

// Driver names accepted by Open.
const (
	// DriverTermios configures the device directly through termios ioctls.
	// Only available on Linux; it is the only driver that can report the
	// kernel input queue length via BytesAvailable.
	DriverTermios = "termios"
	// DriverTarm wraps github.com/tarm/serial and works on every platform
	// the library supports. Its BytesAvailable always reports 0.
	DriverTarm = "tarm"
)

// Port is the serial endpoint surface consumed by the bridge.
//
// Read returns (0, io.EOF) when the configured read timeout expires with no
// data; callers must treat that as "no bytes yet", not as a device failure.
// BytesAvailable reports how many bytes can be read without blocking, or 0
// when the driver cannot ask the kernel.
type Port interface {
	Read(p []byte) (int, error)
	BytesAvailable() (int, error)
	IsOpen() bool
	Close() error
}

// Open opens the named device at the given baud rate with a read timeout,
// using the selected driver.
func Open(device string, baud int, readTimeout time.Duration, driver string) (Port, error) {
	switch driver {
	case DriverTermios, "":
		return openTermios(device, baud, readTimeout)
	case DriverTarm:
		return openTarm(device, baud, readTimeout)
	default:
		return nil, fmt.Errorf("unknown serial driver %q (use termios|tarm)", driver)
	}
}
