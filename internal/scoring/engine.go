package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"fraudscore/internal/domain"
	"fraudscore/pkg/crypto"
)

type State int

const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "unloaded"
}

type Options struct {
	ModelPath string
	// ExpectedSHA256 pins the artifact digest when non-empty.
	ExpectedSHA256 string
	Logger         *slog.Logger
	// Fallback overrides the random source used while Unloaded. It must be
	// safe for concurrent use and return values in [0,1).
	Fallback func() float64
}

// Engine scores feature vectors. Its state is fixed at construction: Loaded
// with a model, or Unloaded, in which case it returns fallback scores. An
// Engine is safe for concurrent use.
type Engine struct {
	model    Model
	info     ModelInfo
	loadErr  error
	fallback func() float64
	logger   *slog.Logger
}

// New builds the engine once for the process. It never fails: a missing or
// unusable artifact leaves the engine Unloaded with the reason in LoadErr.
func New(opts Options) *Engine {
	e := newEngine(opts.Logger, opts.Fallback)
	e.info = ModelInfo{Path: opts.ModelPath}

	if opts.ModelPath == "" {
		e.loadErr = ErrNoModelPath
		e.logger.Warn("No model path configured, serving fallback scores")
		return e
	}

	model, info, err := LoadModel(opts.ModelPath, crypto.NewVerifier(opts.ExpectedSHA256, e.logger))
	e.info = info
	if err != nil {
		e.loadErr = err
		if errors.Is(err, ErrModelNotFound) {
			e.logger.Warn("Model artifact not found, serving fallback scores",
				slog.String("path", opts.ModelPath))
		} else {
			e.logger.Error("Failed to load model, serving fallback scores",
				slog.String("path", opts.ModelPath),
				slog.String("error", err.Error()))
		}
		return e
	}

	e.model = model
	e.logger.Info("Model loaded",
		slog.String("path", info.Path),
		slog.String("format", string(info.Format)),
		slog.String("sha256", info.SHA256),
		slog.Int("num_features", info.NumFeatures),
		slog.Bool("manifest", info.Manifest))

	return e
}

// NewWithModel returns a Loaded engine around an already constructed model.
// The model must accept domain.NumFeatures inputs.
func NewWithModel(model Model, logger *slog.Logger) (*Engine, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if n := model.NumFeatures(); n != domain.NumFeatures {
		return nil, fmt.Errorf("%w: model expects %d features, request rows have %d",
			ErrShapeMismatch, n, domain.NumFeatures)
	}

	e := newEngine(logger, nil)
	e.model = model
	e.info = ModelInfo{NumFeatures: model.NumFeatures()}
	return e, nil
}

func newEngine(logger *slog.Logger, fallback func() float64) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == nil {
		fallback = rand.Float64
	}
	return &Engine{
		fallback: fallback,
		logger:   logger,
	}
}

func (e *Engine) State() State {
	if e.model != nil {
		return StateLoaded
	}
	return StateUnloaded
}

// LoadErr returns why the engine is Unloaded, or nil when Loaded.
func (e *Engine) LoadErr() error {
	return e.loadErr
}

func (e *Engine) ModelInfo() ModelInfo {
	return e.info
}

// Score returns the fraud probability for fv. Inference failures on a loaded
// model are returned as *ScoringError and never replaced by a fallback score.
func (e *Engine) Score(fv domain.FeatureVector) (p float64, err error) {
	if e.model == nil {
		return e.fallback(), nil
	}

	defer func() {
		if r := recover(); r != nil {
			p, err = 0, &ScoringError{Err: fmt.Errorf("model panicked: %v", r)}
		}
	}()

	p, err = e.model.PredictProba(fv.Row())
	if err != nil {
		return 0, &ScoringError{Err: err}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &ScoringError{Err: fmt.Errorf("%w: %v", ErrProbabilityOutOfRange, p)}
	}

	return p, nil
}

// Infer scores fv and derives the fraud flag.
func (e *Engine) Infer(fv domain.FeatureVector) (domain.ScoreResult, error) {
	p, err := e.Score(fv)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	return domain.NewScoreResult(p), nil
}
