package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// routeSpec is one initial route given on the command line, in the form
// device@baud->host:port (e.g. /dev/ttyUSB0@9600->127.0.0.1:9000).
type routeSpec struct {
	device string
	baud   int
	host   string
	port   int
}

func parseRouteSpec(s string) (routeSpec, error) {
	var rs routeSpec
	left, target, ok := strings.Cut(s, "->")
	if !ok {
		return rs, fmt.Errorf("invalid route %q (want device@baud->host:port)", s)
	}
	device, baudStr, ok := strings.Cut(left, "@")
	if !ok || device == "" {
		return rs, fmt.Errorf("invalid route %q: missing device@baud", s)
	}
	baud, err := strconv.Atoi(baudStr)
	if err != nil || baud <= 0 {
		return rs, fmt.Errorf("invalid route %q: bad baud %q", s, baudStr)
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return rs, fmt.Errorf("invalid route %q: bad target %q", s, target)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return rs, fmt.Errorf("invalid route %q: bad port %q", s, portStr)
	}
	rs.device = device
	rs.baud = baud
	rs.host = host
	rs.port = port
	return rs, nil
}

// routeList collects repeated -route flags.
type routeList []routeSpec

func (r *routeList) String() string {
	parts := make([]string, 0, len(*r))
	for _, rs := range *r {
		parts = append(parts, fmt.Sprintf("%s@%d->%s", rs.device, rs.baud, net.JoinHostPort(rs.host, strconv.Itoa(rs.port))))
	}
	return strings.Join(parts, ",")
}

func (r *routeList) Set(v string) error {
	rs, err := parseRouteSpec(v)
	if err != nil {
		return err
	}
	*r = append(*r, rs)
	return nil
}

type appConfig struct {
	routes          []routeSpec
	apiAddr         string
	serialDriver    string
	readTimeout     time.Duration
	connectTimeout  time.Duration
	stopTimeout     time.Duration
	cycleDelay      time.Duration
	pairCommand     string
	pairTimeout     time.Duration
	logFormat       string
	logLevel        string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	var routes routeList
	flag.Var(&routes, "route", "Initial route device@baud->host:port (repeatable)")
	apiAddr := flag.String("api-addr", ":8400", "Control API listen address (routes, metrics, ready); empty disables")
	serialDriver := flag.String("serial-driver", "termios", "Serial driver: termios|tarm")
	readTimeout := flag.Duration("read-timeout", 200*time.Millisecond, "Serial read timeout")
	connectTimeout := flag.Duration("connect-timeout", 5*time.Second, "TCP connect timeout")
	stopTimeout := flag.Duration("stop-timeout", 2*time.Second, "Bounded wait for a relay to exit on stop")
	cycleDelay := flag.Duration("cycle-delay", 10*time.Millisecond, "Relay inter-cycle delay")
	pairCommand := flag.String("pair-command", "", "Virtual port pairing command (e.g. setupc); empty disables pairing")
	pairTimeout := flag.Duration("pair-timeout", 10*time.Second, "Pairing command timeout")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement of the control API")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default com-router-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.routes = routes
	cfg.apiAddr = *apiAddr
	cfg.serialDriver = *serialDriver
	cfg.readTimeout = *readTimeout
	cfg.connectTimeout = *connectTimeout
	cfg.stopTimeout = *stopTimeout
	cfg.cycleDelay = *cycleDelay
	cfg.pairCommand = *pairCommand
	cfg.pairTimeout = *pairTimeout
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners, only checks values.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.serialDriver {
	case "termios", "tarm":
	default:
		return fmt.Errorf("invalid serial-driver: %s", c.serialDriver)
	}
	if c.readTimeout <= 0 {
		return fmt.Errorf("read-timeout must be > 0")
	}
	if c.connectTimeout <= 0 {
		return fmt.Errorf("connect-timeout must be > 0")
	}
	if c.stopTimeout <= 0 {
		return fmt.Errorf("stop-timeout must be > 0")
	}
	if c.cycleDelay <= 0 {
		return fmt.Errorf("cycle-delay must be > 0")
	}
	if c.pairTimeout <= 0 {
		return fmt.Errorf("pair-timeout must be > 0")
	}
	return nil
}

// applyEnvOverrides maps COM_ROUTER_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Durations accept Go time.ParseDuration format; routes are comma separated.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["route"]; !ok {
		if v, ok := get("COM_ROUTER_ROUTES"); ok && v != "" {
			var routes []routeSpec
			for _, item := range strings.Split(v, ",") {
				rs, err := parseRouteSpec(strings.TrimSpace(item))
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("invalid COM_ROUTER_ROUTES: %w", err)
					}
					continue
				}
				routes = append(routes, rs)
			}
			if routes != nil {
				c.routes = routes
			}
		}
	}
	if _, ok := set["api-addr"]; !ok {
		if v, ok := get("COM_ROUTER_API_ADDR"); ok {
			c.apiAddr = v
		}
	}
	if _, ok := set["serial-driver"]; !ok {
		if v, ok := get("COM_ROUTER_SERIAL_DRIVER"); ok && v != "" {
			c.serialDriver = v
		}
	}
	if _, ok := set["read-timeout"]; !ok {
		if v, ok := get("COM_ROUTER_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.readTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid COM_ROUTER_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["connect-timeout"]; !ok {
		if v, ok := get("COM_ROUTER_CONNECT_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.connectTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid COM_ROUTER_CONNECT_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["stop-timeout"]; !ok {
		if v, ok := get("COM_ROUTER_STOP_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.stopTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid COM_ROUTER_STOP_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["cycle-delay"]; !ok {
		if v, ok := get("COM_ROUTER_CYCLE_DELAY"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.cycleDelay = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid COM_ROUTER_CYCLE_DELAY: %w", err)
			}
		}
	}
	if _, ok := set["pair-command"]; !ok {
		if v, ok := get("COM_ROUTER_PAIR_COMMAND"); ok {
			c.pairCommand = v
		}
	}
	if _, ok := set["pair-timeout"]; !ok {
		if v, ok := get("COM_ROUTER_PAIR_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.pairTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid COM_ROUTER_PAIR_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("COM_ROUTER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("COM_ROUTER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("COM_ROUTER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid COM_ROUTER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("COM_ROUTER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("COM_ROUTER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
