// Package health serves the liveness endpoint polled by the hosting
// platform to keep the bot process awake.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	Path                   = "/healthz"
	ReadyPath              = "/readyz"
	defaultShutdownTimeout = 5 * time.Second
)

// Check reports whether a dependency is usable. A nil error means healthy.
type Check func(ctx context.Context) error

type status struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Server answers GET /healthz and GET /readyz. It is bound lazily by Serve.
type Server struct {
	address         string
	logger          *slog.Logger
	checks          map[string]Check
	started         time.Time
	shutdownTimeout time.Duration

	ready chan struct{}
	addr  net.Addr
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCheck adds a named check. Failures are listed by both endpoints but
// only turn ReadyPath into 503; Path stays 200 while the process is up.
func WithCheck(name string, c Check) Option {
	return func(s *Server) {
		if c != nil {
			s.checks[name] = c
		}
	}
}

func New(address string, opts ...Option) (*Server, error) {
	if address == "" {
		return nil, errors.New("health: address must not be empty")
	}
	s := &Server{
		address:         address,
		logger:          slog.Default(),
		checks:          map[string]Check{},
		started:         time.Now(),
		shutdownTimeout: defaultShutdownTimeout,
		ready:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the mux serving Path and ReadyPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+Path, s.handleHealth)
	mux.HandleFunc("GET "+ReadyPath, s.handleReady)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body, _ := s.run(r.Context())
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	body, ok := s.run(r.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

func (s *Server) run(ctx context.Context) (status, bool) {
	body := status{Status: "ok", Uptime: time.Since(s.started).Round(time.Second).String()}
	ok := true
	if len(s.checks) > 0 {
		body.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				body.Checks[name] = err.Error()
				body.Status = "degraded"
				ok = false
				continue
			}
			body.Checks[name] = "ok"
		}
	}
	return body, ok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address. Only valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("health: listen on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("health server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		if err != nil {
			return fmt.Errorf("health: serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	s.logger.Info("health server stopped")
	return nil
}
