package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"fraudscore/internal/domain"
	"fraudscore/internal/scoring"
	"fraudscore/pkg/metrics"
	"fraudscore/pkg/validator"
)

// DefaultMaxBodyBytes caps /infer request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Scorer is the part of scoring.Engine the HTTP layer depends on.
type Scorer interface {
	Infer(fv domain.FeatureVector) (domain.ScoreResult, error)
	State() scoring.State
	ModelInfo() scoring.ModelInfo
	LoadErr() error
}

type APIHandler struct {
	engine       Scorer
	validator    *validator.FeatureValidator
	metrics      *metrics.MetricsCollector
	logger       *slog.Logger
	maxBodyBytes int64
}

func NewAPIHandler(
	engine Scorer,
	validator *validator.FeatureValidator,
	metrics *metrics.MetricsCollector,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		engine:       engine,
		validator:    validator,
		metrics:      metrics,
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for scoring failures and malformed transport.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ValidationErrorResponse lists every rejected field.
type ValidationErrorResponse struct {
	Detail []validator.FieldError `json:"detail"`
}

type ModelResponse struct {
	State string `json:"state"`
	scoring.ModelInfo
	LoadError string `json:"load_error,omitempty"`
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, HealthResponse{Status: "ok"}, http.StatusOK)
}

func (h *APIHandler) InferHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := RequestIDFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fv, err := h.validator.ValidateJSON(body)
	if err != nil {
		var verr *validator.ValidationError
		if !errors.As(err, &verr) {
			h.sendError(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		for _, fe := range verr.Errors {
			h.metrics.RecordValidationFailure(fe.Field(), fe.Type)
		}
		h.metrics.RecordInference(time.Since(startTime), metrics.OutcomeValidationError, 0, false)
		h.logger.Warn("Rejected inference request",
			slog.String("request_id", requestID),
			slog.Int("field_errors", len(verr.Errors)),
			slog.String("error", verr.Error()))
		h.sendJSON(w, ValidationErrorResponse{Detail: verr.Errors}, http.StatusUnprocessableEntity)
		return
	}

	result, err := h.engine.Infer(fv)
	duration := time.Since(startTime)
	if err != nil {
		h.metrics.RecordInference(duration, metrics.OutcomeScoringError, 0, false)
		h.logger.Error("Scoring failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		h.sendError(w, "Error while scoring: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.metrics.RecordInference(duration, metrics.OutcomeOK, result.FraudProbability, result.FraudFlag)
	h.sendJSON(w, result, http.StatusOK)
	h.logger.Debug("Request scored",
		slog.String("request_id", requestID),
		slog.String("model_state", h.engine.State().String()),
		slog.Float64("fraud_probability", result.FraudProbability),
		slog.Bool("fraud_flag", result.FraudFlag),
		slog.Duration("duration", duration))
}

func (h *APIHandler) ModelHandler(w http.ResponseWriter, r *http.Request) {
	resp := ModelResponse{
		State:     h.engine.State().String(),
		ModelInfo: h.engine.ModelInfo(),
	}
	if err := h.engine.LoadErr(); err != nil {
		resp.LoadError = err.Error()
	}
	h.sendJSON(w, resp, http.StatusOK)
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, detail string, statusCode int) {
	h.sendJSON(w, ErrorResponse{Detail: detail}, statusCode)

	h.logger.Warn("API error response",
		slog.String("detail", detail),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheckHandler)
	mux.HandleFunc("POST /infer", h.InferHandler)
	mux.HandleFunc("GET /model", h.ModelHandler)
}

// Handler returns the routed API wrapped in request-ID middleware.
func (h *APIHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return WithRequestID(mux)
}
