package scoring

import (
	"errors"
	"fmt"
)

var (
	ErrNoModelPath           = errors.New("no model path configured")
	ErrModelNotFound         = errors.New("model artifact not found")
	ErrShapeMismatch         = errors.New("model input shape mismatch")
	ErrUnsupportedModel      = errors.New("unsupported model")
	ErrProbabilityOutOfRange = errors.New("probability out of range")
)

// ModelLoadError is a construction-time artifact failure. The engine recovers
// from it by staying Unloaded; it is never returned to API callers.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// ScoringError is an inference failure on a loaded model.
type ScoringError struct {
	Err error
}

func (e *ScoringError) Error() string {
	return e.Err.Error()
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}
