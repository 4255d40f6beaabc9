//go:build !linux

package serial

import (
	"errors"
	"runtime"
	"time"
)

// The termios driver needs Linux tty ioctls; other platforms use DriverTarm.
func openTermios(device string, baud int, readTimeout time.Duration) (Port, error) {
	return nil, errors.New("termios driver not supported on " + runtime.GOOS + " (use -serial-driver=tarm)")
}
