// Package serve exposes the installed packages of a packages root over HTTP
// for inspection by other processes.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/livepkg/livepkg/pkg/pkg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultAddr is the default listen address of the status server.
	DefaultAddr = "127.0.0.1:19513"
	// DefaultRefreshInterval is how often the server rereads the packages
	// root to pick up changes made by other processes.
	DefaultRefreshInterval = 30 * time.Second
	// DefaultShutdownTimeout bounds how long in-flight requests may run
	// after a shutdown signal.
	DefaultShutdownTimeout = 10 * time.Second
)

// Packages is the part of the package manager the server reads from.
type Packages interface {
	List() []*pkg.Package
	Info(name string) *pkg.Package
	Restore(ctx context.Context) error
	Root() string
}

// Server is the livepkg status server.
type Server struct {
	Addr            string
	Packages        Packages
	Gatherer        prometheus.Gatherer
	Logger          *log.Logger
	RefreshInterval time.Duration
}

func (s *Server) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard)
	}
	return s.Logger
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/packages", s.listHandler)
	r.Get("/packages/{name}", s.infoHandler)
	r.Get("/packages/{scope}/{name}", s.infoHandler)
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type listResponse struct {
	Root     string         `json:"root"`
	Packages []*pkg.Package `json:"packages"`
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	packages := s.Packages.List()
	if packages == nil {
		packages = []*pkg.Package{}
	}
	s.writeJSON(w, http.StatusOK, listResponse{Root: s.Packages.Root(), Packages: packages})
}

func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if scope := chi.URLParam(r, "scope"); scope != "" {
		name = scope + "/" + name
	}

	p := s.Packages.Info(name)
	if p == nil {
		http.Error(w, fmt.Sprintf("package %q is not installed", name), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger().Warn("writing response", "err", err)
	}
}

// ListenAndServe starts the server and blocks until a shutdown signal is
// received or ctx is done. It returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	logger := s.logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Packages.Restore(ctx); err != nil {
		return fmt.Errorf("restoring packages: %w", err)
	}

	interval := s.RefreshInterval
	if interval == 0 {
		interval = DefaultRefreshInterval
	}
	go s.refresh(ctx, interval)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("livepkg serve listening", "addr", addr, "root", s.Packages.Root())
		for _, p := range s.Packages.List() {
			logger.Info("  installed", "package", p)
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			break
		}
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "err", err)
	}
	return nil
}

// refresh rereads the packages root every interval until ctx is done.
func (s *Server) refresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Packages.Restore(ctx); err != nil && ctx.Err() == nil {
				s.logger().Warn("refreshing packages", "err", err)
			}
		}
	}
}
