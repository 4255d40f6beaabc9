package pairing

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCreateArgs(t *testing.T) {
	got := createArgs("COM7", "CNCB0")
	want := []string{"install", "PortName=COM7,EmuBR=yes", "PortName=CNCB0,EmuBR=yes"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("createArgs = %v, want %v", got, want)
	}
}

func TestRemoveArgs(t *testing.T) {
	got := removeArgs("COM7")
	want := []string{"remove", "COM7"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("removeArgs = %v, want %v", got, want)
	}
}

func TestEnabled(t *testing.T) {
	if New("", time.Second, testLogger()).Enabled() {
		t.Fatal("empty command must be disabled")
	}
	var nilPairer *Pairer
	if nilPairer.Enabled() {
		t.Fatal("nil pairer must be disabled")
	}
	if !New("setupc", time.Second, testLogger()).Enabled() {
		t.Fatal("configured command must be enabled")
	}
}

func TestRunSuccess(t *testing.T) {
	p := New("true", time.Second, testLogger())
	if err := p.run("install"); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunFailure(t *testing.T) {
	p := New("false", time.Second, testLogger())
	if err := p.run("install"); err == nil {
		t.Fatal("expected error from failing command")
	}
}

func TestRunMissingBinary(t *testing.T) {
	p := New("definitely-not-a-real-binary-xyz", time.Second, testLogger())
	if err := p.Create("COM7", "CNCB0"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
