package serial

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// tarmPort adapts tarm/serial to the Port interface. The library exposes no
// input queue counter, so BytesAvailable reports 0 and the bridge falls back
// to its timed single-byte read.
type tarmPort struct {
	mu sync.Mutex
	p  *serial.Port
}

func openTarm(device string, baud int, readTimeout time.Duration) (Port, error) {
	p, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud, ReadTimeout: readTimeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	return &tarmPort{p: p}, nil
}

func (t *tarmPort) Read(b []byte) (int, error) {
	t.mu.Lock()
	p := t.p
	t.mu.Unlock()
	if p == nil {
		return 0, os.ErrClosed
	}
	return p.Read(b)
}

func (t *tarmPort) BytesAvailable() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p == nil {
		return 0, os.ErrClosed
	}
	return 0, nil
}

func (t *tarmPort) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p != nil
}

func (t *tarmPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p == nil {
		return nil
	}
	err := t.p.Close()
	t.p = nil
	return err
}
