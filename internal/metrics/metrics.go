// Package metrics holds the Prometheus collectors of the relay and the HTTP
// endpoint that exposes them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values for OperatorReplies.
const (
	SourceTyped      = "typed"
	SourceSuggestion = "suggestion"
)

// Label values for SuggestionSetsCleared.
const (
	ReasonSuperseded = "superseded"
	ReasonReplied    = "replied"
	ReasonSelected   = "selected"
	ReasonExpired    = "expired"
)

var (
	InboundMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replybot_inbound_messages_total",
			Help: "Total number of customer messages received",
		},
	)

	SuggestionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_suggestions_generated_total",
			Help: "Total number of suggestion sets generated, by message kind",
		},
		[]string{"kind"},
	)

	SuggestionCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replybot_suggestion_candidates",
			Help:    "Number of replies offered per suggestion set",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 8},
		},
	)

	OperatorReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_operator_replies_total",
			Help: "Total number of replies sent to customers, by source",
		},
		[]string{"source"},
	)

	SuggestionSetsCleared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_suggestion_sets_cleared_total",
			Help: "Total number of suggestion sets cleared, by reason",
		},
		[]string{"reason"},
	)
)

// HealthCheck reports whether a dependency behind /health is usable.
type HealthCheck func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// NewMux returns the handler serving /metrics and /health. A nil check makes
// /health always report ok.
func NewMux(check HealthCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve exposes the metrics on addr until ctx is cancelled. An empty addr
// disables the endpoint and Serve returns immediately.
func Serve(ctx context.Context, addr string, check HealthCheck, logger *slog.Logger) error {
	log := logger.With("component", "metrics")
	if addr == "" {
		log.Info("Metrics endpoint disabled")
		return nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return serve(ctx, listener, check, log)
}

func serve(ctx context.Context, listener net.Listener, check HealthCheck, log *slog.Logger) error {
	srv := &http.Server{
		Handler:           NewMux(check),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Metrics server listening", "addr", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down metrics server", "error", err)
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	<-errCh

	log.Info("Metrics server stopped")
	return nil
}
