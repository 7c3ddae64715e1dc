package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcourtman/pulse-anomaly/internal/monitor"
	"github.com/rs/zerolog/log"
)

var (
	metricsShutdownTimeout = 5 * time.Second
)

// summarySource returns the statistics of the run so far.
type summarySource func() monitor.Summary

// newMetricsHandler routes /metrics and /healthz, plus /summary when
// summaries is non-nil.
func newMetricsHandler(summaries summarySource) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if summaries != nil {
		r.Get("/summary", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(summaries()); err != nil {
				log.Debug().Err(err).Msg("Failed to write summary response")
			}
		})
	}
	return r
}

// serveMetrics serves the metrics routes until ctx is done. A server that
// fails to start is logged and does not stop monitoring.
func serveMetrics(ctx context.Context, addr string, summaries summarySource) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMetricsHandler(summaries),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", addr).Msg("Metrics server stopped unexpectedly")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("Failed to shut down metrics server cleanly")
	}
	return nil
}
