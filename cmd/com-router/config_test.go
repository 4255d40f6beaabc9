package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		apiAddr:        ":8400",
		serialDriver:   "termios",
		readTimeout:    200 * time.Millisecond,
		connectTimeout: 5 * time.Second,
		stopTimeout:    2 * time.Second,
		cycleDelay:     10 * time.Millisecond,
		pairTimeout:    10 * time.Second,
		logFormat:      "text",
		logLevel:       "info",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badDriver", func(c *appConfig) { c.serialDriver = "x" }},
		{"badReadTO", func(c *appConfig) { c.readTimeout = 0 }},
		{"badConnectTO", func(c *appConfig) { c.connectTimeout = 0 }},
		{"badStopTO", func(c *appConfig) { c.stopTimeout = 0 }},
		{"badCycleDelay", func(c *appConfig) { c.cycleDelay = 0 }},
		{"badPairTO", func(c *appConfig) { c.pairTimeout = 0 }},
	}
	for _, tc := range tests {
		c := baseConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestParseRouteSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    routeSpec
		wantErr bool
	}{
		{in: "COM7@9600->127.0.0.1:9000", want: routeSpec{device: "COM7", baud: 9600, host: "127.0.0.1", port: 9000}},
		{in: "/dev/ttyUSB0@115200->example.com:20000", want: routeSpec{device: "/dev/ttyUSB0", baud: 115200, host: "example.com", port: 20000}},
		{in: "COM7@9600->[::1]:9000", want: routeSpec{device: "COM7", baud: 9600, host: "::1", port: 9000}},
		{in: "COM7@9600", wantErr: true},
		{in: "COM7->127.0.0.1:9000", wantErr: true},
		{in: "@9600->127.0.0.1:9000", wantErr: true},
		{in: "COM7@abc->127.0.0.1:9000", wantErr: true},
		{in: "COM7@0->127.0.0.1:9000", wantErr: true},
		{in: "COM7@9600->127.0.0.1", wantErr: true},
		{in: "COM7@9600->127.0.0.1:notaport", wantErr: true},
		{in: "COM7@9600->127.0.0.1:99999", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseRouteSpec(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestRouteListRoundTrip(t *testing.T) {
	var rl routeList
	if err := rl.Set("COM7@9600->127.0.0.1:9000"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := rl.Set("COM8@115200->10.0.0.1:9001"); err != nil {
		t.Fatalf("set second: %v", err)
	}
	want := "COM7@9600->127.0.0.1:9000,COM8@115200->10.0.0.1:9001"
	if got := rl.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if err := rl.Set("garbage"); err == nil {
		t.Fatal("expected error for garbage spec")
	}
}
