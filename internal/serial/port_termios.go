//go:build linux

package serial

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// baudConsts maps supported baud rates to their termios constants.
var baudConsts = map[int]uint32{
	50:     unix.B50,
	75:     unix.B75,
	110:    unix.B110,
	134:    unix.B134,
	150:    unix.B150,
	200:    unix.B200,
	300:    unix.B300,
	600:    unix.B600,
	1200:   unix.B1200,
	1800:   unix.B1800,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// termiosPort is a raw 8N1 tty handle with VMIN=0/VTIME reads.
type termiosPort struct {
	mu sync.Mutex
	f  *os.File
	fd int
}

func openTermios(device string, baud int, readTimeout time.Duration) (Port, error) {
	speed, ok := baudConsts[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("tcgetattr %s: %w", device, err)
	}
	t.Cflag |= unix.CLOCAL | unix.CREAD
	t.Cflag &^= unix.CSIZE | unix.CSTOPB | unix.PARENB
	t.Cflag |= unix.CS8
	t.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHONL | unix.ISIG | unix.IEXTEN
	t.Oflag &^= unix.OPOST | unix.ONLCR | unix.OCRNL
	t.Iflag &^= unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IGNBRK | unix.IXON | unix.IXOFF
	t.Ispeed = speed
	t.Ospeed = speed
	// VMIN=0 with VTIME makes read() return whatever is buffered, or zero
	// bytes once the timeout expires. VTIME is in deciseconds, 1..255.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = clampVTime(readTimeout)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("tcsetattr %s: %w", device, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set blocking %s: %w", device, err)
	}
	return &termiosPort{f: os.NewFile(uintptr(fd), device), fd: fd}, nil
}

func clampVTime(d time.Duration) uint8 {
	ds := int64(d / (100 * time.Millisecond))
	if ds < 1 {
		ds = 1
	}
	if ds > 255 {
		ds = 255
	}
	return uint8(ds)
}

func (p *termiosPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	f := p.f
	p.mu.Unlock()
	if f == nil {
		return 0, os.ErrClosed
	}
	// A zero-byte read after VTIME surfaces as io.EOF from os.File.
	return f.Read(b)
}

func (p *termiosPort) BytesAvailable() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return 0, os.ErrClosed
	}
	n, err := unix.IoctlGetInt(p.fd, unix.TIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("tiocinq: %w", err)
	}
	return n, nil
}

func (p *termiosPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.f != nil
}

func (p *termiosPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}
