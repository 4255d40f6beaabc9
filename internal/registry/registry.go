// Package registry tracks the active routes of one host process. There is no
// ambient package-level state: the hosting process creates one Registry and
// hands it to whatever issues route commands.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kstaniek/go-com-router/internal/bridge"
	"github.com/kstaniek/go-com-router/internal/logging"
	"github.com/kstaniek/go-com-router/internal/metrics"
)

var (
	ErrRouteExists   = errors.New("route exists")
	ErrRouteNotFound = errors.New("route not found")
)

// BuildFunc constructs a Bridge for a route; the host wires serial driver,
// timeouts and logger through it.
type BuildFunc func(device string, baud int, host string, port int) *bridge.Bridge

// RouteStatus is the listing view of one route.
type RouteStatus struct {
	Device  string `json:"device"`
	Baud    int    `json:"baud"`
	Target  string `json:"target"`
	Running bool   `json:"running"`
}

// Registry owns the device -> Bridge mapping. Routes are keyed by the serial
// device identifier; one bridge per device.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]*bridge.Bridge
	build  BuildFunc
}

func New(build BuildFunc) *Registry {
	return &Registry{routes: make(map[string]*bridge.Bridge), build: build}
}

// Create builds and starts a route. A device already registered is rejected
// before any connection attempt; a route that fails to start leaves no entry
// behind.
func (r *Registry) Create(device string, baud int, host string, port int) (*bridge.Bridge, error) {
	r.mu.Lock()
	if _, ok := r.routes[device]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRouteExists, device)
	}
	b := r.build(device, baud, host, port)
	// Reserve the slot so a concurrent Create for the same device fails fast
	// instead of racing the connection attempt below.
	r.routes[device] = b
	prev := len(r.routes) - 1
	r.mu.Unlock()

	if err := b.Start(); err != nil {
		r.mu.Lock()
		delete(r.routes, device)
		n := len(r.routes)
		r.mu.Unlock()
		metrics.SetActiveRoutes(n)
		return nil, err
	}
	metrics.SetActiveRoutes(r.Count())
	if prev == 0 {
		logging.L().Info("first_route_active")
	}
	return b, nil
}

// Remove stops and deletes a route. Unknown devices report ErrRouteNotFound.
func (r *Registry) Remove(device string) error {
	r.mu.Lock()
	b, ok := r.routes[device]
	if ok {
		delete(r.routes, device)
	}
	n := len(r.routes)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, device)
	}
	b.Stop()
	metrics.SetActiveRoutes(n)
	if n == 0 {
		logging.L().Info("last_route_removed")
	}
	return nil
}

// Get returns the bridge for a device, if registered.
func (r *Registry) Get(device string) (*bridge.Bridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.routes[device]
	return b, ok
}

// List returns a status snapshot sorted by device name.
func (r *Registry) List() []RouteStatus {
	r.mu.RLock()
	out := make([]RouteStatus, 0, len(r.routes))
	for _, b := range r.routes {
		out = append(out, RouteStatus{
			Device:  b.Device(),
			Baud:    b.Baud(),
			Target:  b.Target(),
			Running: b.Running(),
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// Count returns the number of registered routes.
func (r *Registry) Count() int { r.mu.RLock(); n := len(r.routes); r.mu.RUnlock(); return n }

// StopAll stops every route and empties the registry. Used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	routes := make([]*bridge.Bridge, 0, len(r.routes))
	for _, b := range r.routes {
		routes = append(routes, b)
	}
	r.routes = make(map[string]*bridge.Bridge)
	r.mu.Unlock()
	for _, b := range routes {
		b.Stop()
	}
	metrics.SetActiveRoutes(0)
}
