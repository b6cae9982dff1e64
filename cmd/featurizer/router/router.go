// Package router configures the featurizer's status HTTP API.
//
// The server is optional and lives only as long as a run. Routes configured:
//   - GET /healthz - Liveness check (returns 200 OK)
//   - GET /readyz  - 503 once the run has failed, 200 otherwise
//   - GET /status  - Run progress as JSON
//   - GET /metrics - Prometheus metrics for the run
package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/gridcast/pkg/httpx"
	"github.com/HatiCode/gridcast/pkg/pipeline"
)

// ProgressFunc reports the current run's progress.
type ProgressFunc func() pipeline.Progress

// SetupRoutes configures HTTP endpoints for the featurizer.
func SetupRoutes(progress ProgressFunc, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(func() error {
		if p := progress(); p.State == pipeline.StateFailed {
			return errors.New(p.Error)
		}
		return nil
	}))
	mux.HandleFunc("GET /status", handleStatus(progress, logger))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
}

func handleStatus(progress ProgressFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, progress()); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}
