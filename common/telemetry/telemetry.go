package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry serves pprof and Prometheus endpoints
type Telemetry struct {
	log         *logger.Logger
	service     string
	pprofAddr   string
	metricsAddr string

	enablePprof   bool
	enableMetrics bool

	servers []*http.Server
}

// New creates telemetry components
func New(service string, enablePprof bool, pprofPort int, enableMetrics bool, metricsPort int, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:           log,
		service:       service,
		pprofAddr:     fmt.Sprintf("localhost:%d", pprofPort),
		metricsAddr:   fmt.Sprintf(":%d", metricsPort),
		enablePprof:   enablePprof,
		enableMetrics: enableMetrics,
	}
}

// Start starts the enabled endpoints in background goroutines
func (t *Telemetry) Start(ctx context.Context) error {
	if t.enablePprof {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		t.serve("pprof", t.pprofAddr, mux)
	}

	if t.enableMetrics {
		metrics.Register(t.service)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		t.serve("metrics", t.metricsAddr, mux)
	}

	return nil
}

func (t *Telemetry) serve(name, addr string, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	t.servers = append(t.servers, srv)

	go func() {
		t.log.Info(name+" server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error(name+" server error", "error", err)
		}
	}()
}

// Shutdown stops the telemetry servers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range t.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	duration := time.Since(start)
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}
