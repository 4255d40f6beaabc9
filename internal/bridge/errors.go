package bridge

import "errors"

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	// ErrPortUnavailable means the serial device could not be opened
	// (missing, busy or misconfigured baud).
	ErrPortUnavailable = errors.New("port unavailable")
	// ErrConnect means the TCP connection to the target was refused or the
	// target is unreachable.
	ErrConnect = errors.New("connect")
)
