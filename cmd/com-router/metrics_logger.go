package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-com-router/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"serial_rx_bytes", snap.SerialRxBytes,
					"socket_tx_bytes", snap.SocketTxBytes,
					"relay_cycles", snap.RelayCycles,
					"routes_active", snap.RoutesActive,
					"routes_started", snap.RoutesStarted,
					"routes_failed", snap.RoutesFailed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
