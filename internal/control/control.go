// Package control exposes the operator command surface over HTTP: route
// listing, creation and teardown, plus the Prometheus metrics and readiness
// endpoints on the same mux.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kstaniek/go-com-router/internal/logging"
	"github.com/kstaniek/go-com-router/internal/metrics"
	"github.com/kstaniek/go-com-router/internal/pairing"
	"github.com/kstaniek/go-com-router/internal/registry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownGrace = 2 * time.Second

// Server serves the route command API for one Registry.
type Server struct {
	mu       sync.RWMutex
	addr     string
	reg      *registry.Registry
	pairer   *pairing.Pairer
	logger   *slog.Logger
	readyCh  chan struct{}
	readyOne sync.Once
	listener net.Listener
}

type Option func(*Server)

func WithListenAddr(a string) Option           { return func(s *Server) { s.addr = a } }
func WithRegistry(r *registry.Registry) Option { return func(s *Server) { s.reg = r } }
func WithPairer(p *pairing.Pairer) Option      { return func(s *Server) { s.pairer = p } }
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		readyCh: make(chan struct{}),
		logger:  logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Handler returns the API mux; exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /routes", s.handleList)
	mux.HandleFunc("POST /routes", s.handleCreate)
	mux.HandleFunc("DELETE /routes", s.handleDelete)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if metrics.IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	return mux
}

// Serve binds the listener, signals Ready and serves until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		metrics.IncError(metrics.ErrHTTP)
		return fmt.Errorf("control listen: %w", err)
	}
	s.setAddr(ln.Addr().String())
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.readyOne.Do(func() { close(s.readyCh) })
	s.logger.Info("control_listen", "addr", s.Addr())

	srv := &http.Server{Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.IncError(metrics.ErrHTTP)
		return fmt.Errorf("control serve: %w", err)
	}
	return nil
}

type createRequest struct {
	Device   string `json:"device"`
	Baud     int    `json:"baud"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	PairWith string `json:"pair_with,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.List())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Device == "" || req.Host == "" || req.Baud <= 0 || req.Port <= 0 || req.Port > 65535 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "device, baud, host and port are required"})
		return
	}
	paired := false
	if req.PairWith != "" {
		if !s.pairer.Enabled() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "pair_with given but pairing is not configured"})
			return
		}
		if err := s.pairer.Create(req.Device, req.PairWith); err != nil {
			s.logger.Error("pairing_create_failed", "device", req.Device, "error", err)
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}
		paired = true
	}
	b, err := s.reg.Create(req.Device, req.Baud, req.Host, req.Port)
	if err != nil {
		// Creating the pair succeeded but the route did not start; take the
		// pair back down so the operator is not left with a dangling device.
		if paired {
			if rerr := s.pairer.Remove(req.Device); rerr != nil {
				s.logger.Warn("pairing_rollback_failed", "device", req.Device, "error", rerr)
			}
		}
		code := http.StatusInternalServerError
		if errors.Is(err, registry.ErrRouteExists) {
			code = http.StatusConflict
		}
		writeJSON(w, code, errorResponse{Error: err.Error()})
		return
	}
	s.logger.Info("route_created", "device", req.Device, "target", b.Target())
	writeJSON(w, http.StatusCreated, registry.RouteStatus{
		Device:  b.Device(),
		Baud:    b.Baud(),
		Target:  b.Target(),
		Running: b.Running(),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	if device == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "device query parameter required"})
		return
	}
	if err := s.reg.Remove(device); err != nil {
		if errors.Is(err, registry.ErrRouteNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if r.URL.Query().Get("remove_pair") == "1" && s.pairer.Enabled() {
		if err := s.pairer.Remove(device); err != nil {
			s.logger.Warn("pairing_remove_failed", "device", device, "error", err)
		}
	}
	s.logger.Info("route_deleted", "device", device)
	w.WriteHeader(http.StatusNoContent)
}
