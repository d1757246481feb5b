package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Inference outcomes, used as the "outcome" label.
const (
	OutcomeOK              = "ok"
	OutcomeValidationError = "validation_error"
	OutcomeScoringError    = "scoring_error"
)

type MetricsCollector struct {
	registry             *prometheus.Registry
	inferenceRequests    *prometheus.CounterVec
	inferenceDuration    prometheus.Histogram
	probabilityHistogram prometheus.Histogram
	flagged              prometheus.Counter
	validationFailures   *prometheus.CounterVec
	modelLoaded          prometheus.Gauge
	logger               *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		inferenceRequests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_inference_requests_total",
			Help: "Total number of inference requests by outcome",
		}, []string{"outcome"}),
		inferenceDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_inference_duration_seconds",
			Help:    "Time taken to validate and score a request",
			Buckets: prometheus.DefBuckets,
		}),
		probabilityHistogram: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_probability_distribution",
			Help:    "Distribution of returned fraud probabilities",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		flagged: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "fraud_flagged_total",
			Help: "Total number of requests flagged as fraud",
		}),
		validationFailures: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_validation_failures_total",
			Help: "Rejected input fields by field and error type",
		}, []string{"field", "type"}),
		modelLoaded: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "fraud_model_loaded",
			Help: "1 when a classifier is loaded, 0 when serving fallback scores",
		}),
		logger: logger,
	}

	return collector
}

// RecordInference records one finished /infer call. probability and flagged
// are ignored unless outcome is OutcomeOK.
func (m *MetricsCollector) RecordInference(duration time.Duration, outcome string, probability float64, flagged bool) {
	m.inferenceRequests.WithLabelValues(outcome).Inc()
	m.inferenceDuration.Observe(duration.Seconds())

	if outcome != OutcomeOK {
		return
	}
	m.probabilityHistogram.Observe(probability)
	if flagged {
		m.flagged.Inc()
	}
}

func (m *MetricsCollector) RecordValidationFailure(field, errType string) {
	if field == "" {
		field = "body"
	}
	m.validationFailures.WithLabelValues(field, errType).Inc()
}

func (m *MetricsCollector) SetModelLoaded(loaded bool) {
	if loaded {
		m.modelLoaded.Set(1)
		return
	}
	m.modelLoaded.Set(0)
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context, server *http.Server) error {
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	m.logger.Info("Metrics server shutdown complete")
	return nil
}
