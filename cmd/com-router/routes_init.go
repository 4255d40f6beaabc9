package main

import (
	"log/slog"

	"github.com/kstaniek/go-com-router/internal/registry"
)

// startInitialRoutes starts the routes given on the command line. A failed
// route is logged and skipped; it never takes the other routes or the
// process down.
func startInitialRoutes(cfg *appConfig, reg *registry.Registry, l *slog.Logger) {
	for _, rs := range cfg.routes {
		if _, err := reg.Create(rs.device, rs.baud, rs.host, rs.port); err != nil {
			l.Error("initial_route_failed", "device", rs.device, "error", err)
			continue
		}
	}
	if n := reg.Count(); n > 0 {
		l.Info("initial_routes_started", "count", n)
	}
}
