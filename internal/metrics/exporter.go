package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-guardian/internal/logging"
)

// Exporter serves /metrics and /healthz.
type Exporter struct {
	addr    string
	router  chi.Router
	healthy atomic.Bool
}

func NewExporter(addr, diskPath string) *Exporter {
	e := &Exporter{addr: addr}

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewSystemCollector(diskPath))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", e.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, reg},
		promhttp.HandlerOpts{},
	))
	e.router = r
	return e
}

// SetHealthy flips the /healthz result.
func (e *Exporter) SetHealthy(ok bool) {
	e.healthy.Store(ok)
}

func (e *Exporter) Handler() http.Handler {
	return e.router
}

func (e *Exporter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !e.healthy.Load() {
		http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Serve runs the HTTP server until ctx is cancelled.
func (e *Exporter) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              e.addr,
		Handler:           e.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("[METRICS] Listening on %s", e.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("[METRICS] Shutdown: %v", err)
		}
		return ctx.Err()
	}
}

func (e *Exporter) String() string {
	return "metrics-exporter"
}
