package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/go-com-router/internal/bridge"
	"github.com/kstaniek/go-com-router/internal/control"
	"github.com/kstaniek/go-com-router/internal/metrics"
	"github.com/kstaniek/go-com-router/internal/pairing"
	"github.com/kstaniek/go-com-router/internal/registry"
	"github.com/kstaniek/go-com-router/internal/serial"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("com-router %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	reg := registry.New(func(device string, baud int, host string, port int) *bridge.Bridge {
		return bridge.New(device, baud, host, port,
			bridge.WithLogger(l),
			bridge.WithOpenFunc(func(device string, baud int, readTimeout time.Duration) (serial.Port, error) {
				return serial.Open(device, baud, readTimeout, cfg.serialDriver)
			}),
			bridge.WithReadTimeout(cfg.readTimeout),
			bridge.WithConnectTimeout(cfg.connectTimeout),
			bridge.WithStopTimeout(cfg.stopTimeout),
			bridge.WithCycleDelay(cfg.cycleDelay),
		)
	})
	startInitialRoutes(cfg, reg, l)

	var pairer *pairing.Pairer
	if cfg.pairCommand != "" {
		pairer = pairing.New(cfg.pairCommand, cfg.pairTimeout, l)
		l.Info("pairing_enabled", "command", cfg.pairCommand)
	}

	if cfg.apiAddr != "" {
		srv := control.NewServer(
			control.WithListenAddr(cfg.apiAddr),
			control.WithRegistry(reg),
			control.WithPairer(pairer),
			control.WithLogger(l),
		)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				l.Error("control_server_error", "error", err)
				cancel()
			}
		}()

		// Start mDNS advertisement once the control listener is bound.
		go func() {
			if !cfg.mdnsEnable {
				return
			}
			select {
			case <-srv.Ready():
			case <-ctx.Done():
				return
			}
			var portNum int
			if _, p, err := net.SplitHostPort(srv.Addr()); err == nil {
				if pn, perr := strconv.Atoi(p); perr == nil {
					portNum = pn
				}
			}
			cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
				return
			}
			l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
			go func() { <-ctx.Done(); cleanupMDNS() }()
		}()

		// Ready when the control listener is bound and context not cancelled.
		metrics.SetReadinessFunc(func() bool {
			select {
			case <-srv.Ready():
			default:
				return false
			}
			return ctx.Err() == nil
		})
	}
	metrics.InitBuildInfo(version, commit, date)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	reg.StopAll()
	wg.Wait()
}
