package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var metricsAddress = flag.String("metrics_address", ":9090",
	"The ip:port serving Prometheus metrics on /metrics; empty disables the endpoint.")

const metricsShutdownTimeout = 5 * time.Second

// newMetricsMux routes /metrics to the default Prometheus registry, where every evicache counter is registered.
func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// RunMetricsServer serves Prometheus metrics until `ctx` is cancelled. It returns immediately if the
// --metrics_address flag is empty.
func RunMetricsServer(ctx context.Context) error {
	if *metricsAddress == "" {
		slog.Info("Metrics endpoint is disabled.")
		return nil
	}

	server := &http.Server{Addr: *metricsAddress, Handler: newMetricsMux(), ReadHeaderTimeout: time.Second}
	serverErrSignal := make(chan error, 1)
	go func() {
		slog.Info("Serving metrics.", "address", *metricsAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
	case err, ok := <-serverErrSignal:
		if ok {
			return fmt.Errorf("metrics server stopped unexpectedly: %w", err)
		}
	}
	return nil
}
