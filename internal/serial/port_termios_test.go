//go:build linux

package serial

import (
	"testing"
	"time"
)

func TestClampVTime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want uint8
	}{
		{0, 1},
		{10 * time.Millisecond, 1},
		{100 * time.Millisecond, 1},
		{time.Second, 10},
		{time.Minute, 255},
	}
	for _, tc := range tests {
		if got := clampVTime(tc.d); got != tc.want {
			t.Errorf("clampVTime(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestOpenTermiosUnsupportedBaud(t *testing.T) {
	if _, err := openTermios("/dev/null", 12345, 50*time.Millisecond); err == nil {
		t.Fatal("expected error for unsupported baud")
	}
}

func TestOpenTermiosNotATTY(t *testing.T) {
	if _, err := openTermios("/dev/null", 9600, 50*time.Millisecond); err == nil {
		t.Fatal("expected error opening a non-tty device")
	}
}
