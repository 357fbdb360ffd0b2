// Package admin serves the operator HTTP endpoints: health, telemetry, job
// lookup and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HendryAvila/vibe-check/internal/health"
	"github.com/HendryAvila/vibe-check/internal/telemetry"
)

// HealthSource summarizes server health.
type HealthSource interface {
	Summary() health.Summary
}

// TelemetrySource summarizes response telemetry.
type TelemetrySource interface {
	Summary() telemetry.Summary
}

// JobSource reports the state of an analysis job as a status-tagged payload.
type JobSource interface {
	Status(ctx context.Context, jobID string) (map[string]any, error)
}

// Dependencies holds the handler dependencies. Nil sources answer 501.
type Dependencies struct {
	Health    HealthSource
	Telemetry TelemetrySource
	Jobs      JobSource
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(recovery(deps.Logger))

	r.Get("/healthz", healthHandler(deps.Health))
	r.Get("/telemetry", telemetryHandler(deps.Telemetry))
	r.Get("/jobs/{jobID}", jobHandler(deps.Jobs))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func healthHandler(src HealthSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeError(w, http.StatusNotImplemented, "health monitoring is disabled")
			return
		}
		s := src.Summary()
		status := http.StatusOK
		if s.Overall == health.Critical {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, s)
	}
}

func telemetryHandler(src TelemetrySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeError(w, http.StatusNotImplemented, "telemetry is disabled")
			return
		}
		writeJSON(w, http.StatusOK, src.Summary())
	}
}

func jobHandler(src JobSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeError(w, http.StatusNotImplemented, "async analysis is disabled")
			return
		}
		res, err := src.Status(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		status := http.StatusOK
		switch res["status"] {
		case "not_found":
			status = http.StatusNotFound
		case "validation_error":
			status = http.StatusBadRequest
		}
		writeJSON(w, status, res)
	}
}

func recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("admin: panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
					)
					writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs h on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin: listening", "addr", addr)
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
		return srv.Shutdown(shutdownCtx)
	}
}
