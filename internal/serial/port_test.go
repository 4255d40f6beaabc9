package serial

import (
	"testing"
	"time"
)

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("/dev/null", 9600, 50*time.Millisecond, "pigeon"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenTarmMissingDevice(t *testing.T) {
	if _, err := Open("/dev/does-not-exist-0", 9600, 50*time.Millisecond, DriverTarm); err == nil {
		t.Fatal("expected error for missing device")
	}
}
