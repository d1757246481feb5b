package scoring

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dmitryikh/leaves"
	"github.com/dmitryikh/leaves/transformation"
	"gopkg.in/yaml.v3"

	"fraudscore/internal/domain"
	"fraudscore/pkg/crypto"
)

// Model is a loaded classifier. Implementations must be safe for concurrent
// PredictProba calls and must not change after loading.
type Model interface {
	NumFeatures() int
	// PredictProba returns the probability of the positive (fraud) class.
	PredictProba(row []float64) (float64, error)
}

type Format string

const (
	FormatXGBoost      Format = "xgboost"
	FormatLightGBM     Format = "lightgbm"
	FormatLightGBMJSON Format = "lightgbm_json"
)

// ManifestSuffix names the optional sidecar listing the training column order.
const ManifestSuffix = ".features.yaml"

type ModelInfo struct {
	Path        string `json:"path"`
	Format      Format `json:"format"`
	SHA256      string `json:"sha256"`
	NumFeatures int    `json:"num_features"`
	Manifest    bool   `json:"manifest"`
}

type featureManifest struct {
	Features []string `yaml:"features"`
}

// FormatFromPath picks the artifact parser by file extension. Anything not
// recognised as LightGBM is read as an XGBoost binary model.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatLightGBMJSON
	case ".txt", ".lgb":
		return FormatLightGBM
	default:
		return FormatXGBoost
	}
}

// LoadModel reads, verifies and parses the artifact at path, then checks it
// against the FeatureVector row layout. Any failure is a *ModelLoadError.
func LoadModel(path string, verifier *crypto.Verifier) (Model, ModelInfo, error) {
	info := ModelInfo{Path: path, Format: FormatFromPath(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrModelNotFound
		}
		return nil, info, &ModelLoadError{Path: path, Err: err}
	}

	if verifier == nil {
		verifier = crypto.NewVerifier("", nil)
	}
	info.SHA256, err = verifier.Verify(data)
	if err != nil {
		return nil, info, &ModelLoadError{Path: path, Err: err}
	}

	ensemble, err := parseEnsemble(info.Format, data)
	if err != nil {
		return nil, info, &ModelLoadError{Path: path, Err: err}
	}

	var link linkFunc
	if info.Format == FormatLightGBMJSON {
		// leaves loads JSON dumps without their output transform, so the
		// objective recorded in the dump decides it here.
		link, err = jsonObjectiveLink(data, ensemble.NRawOutputGroups())
		if err != nil {
			return nil, info, &ModelLoadError{Path: path, Err: err}
		}
	}

	model, err := newEnsembleModel(ensemble, link)
	if err != nil {
		return nil, info, &ModelLoadError{Path: path, Err: err}
	}
	info.NumFeatures = model.NumFeatures()

	info.Manifest, err = checkShape(model, path+ManifestSuffix)
	if err != nil {
		return nil, info, &ModelLoadError{Path: path, Err: err}
	}

	return model, info, nil
}

func parseEnsemble(format Format, data []byte) (ensemble *leaves.Ensemble, err error) {
	// The parsers index into the input without bounds checks on some
	// truncated artifacts.
	defer func() {
		if r := recover(); r != nil {
			ensemble, err = nil, fmt.Errorf("parse %s model: %v", format, r)
		}
	}()

	switch format {
	case FormatLightGBMJSON:
		ensemble, err = leaves.LGEnsembleFromJSON(bytes.NewReader(data), false)
	case FormatLightGBM:
		ensemble, err = leaves.LGEnsembleFromReader(bufio.NewReader(bytes.NewReader(data)), true)
	default:
		ensemble, err = leaves.XGEnsembleFromReader(bufio.NewReader(bytes.NewReader(data)), true)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s model: %w", format, err)
	}
	return ensemble, nil
}

// checkShape enforces the row contract once, at load time: the model must take
// exactly the nine features, and when a manifest is present its names must
// match domain.FeatureNames in order.
func checkShape(model Model, manifestPath string) (bool, error) {
	if n := model.NumFeatures(); n != domain.NumFeatures {
		return false, fmt.Errorf("%w: model expects %d features, request rows have %d",
			ErrShapeMismatch, n, domain.NumFeatures)
	}

	raw, err := os.ReadFile(manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read feature manifest: %w", err)
	}

	var manifest featureManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return false, fmt.Errorf("parse feature manifest: %w", err)
	}
	if !slices.Equal(manifest.Features, domain.FeatureNames) {
		return false, fmt.Errorf("%w: manifest columns %v, expected %v",
			ErrShapeMismatch, manifest.Features, domain.FeatureNames)
	}

	return true, nil
}

// linkFunc turns raw ensemble scores into the positive-class probability.
type linkFunc func(raw []float64) float64

func sigmoidLink(raw []float64) float64 {
	return 1 / (1 + math.Exp(-raw[0]))
}

// softmaxLink is the class 1 share of a two-class softmax.
func softmaxLink(raw []float64) float64 {
	return 1 / (1 + math.Exp(raw[0]-raw[1]))
}

// jsonObjectiveLink reads the "objective" field of a LightGBM JSON dump.
// Only "binary sigmoid:1" and "multiclass num_class:2" produce probabilities.
func jsonObjectiveLink(data []byte, groups int) (linkFunc, error) {
	var dump struct {
		Objective string `json:"objective"`
	}
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("parse %s model: %w", FormatLightGBMJSON, err)
	}

	switch objective := strings.Join(strings.Fields(dump.Objective), " "); {
	case objective == "binary sigmoid:1" && groups == 1:
		return sigmoidLink, nil
	case objective == "multiclass num_class:2" && groups == 2:
		return softmaxLink, nil
	case objective == "":
		return nil, fmt.Errorf("%w: JSON dump has no objective", ErrUnsupportedModel)
	default:
		return nil, fmt.Errorf("%w: objective %q over %d output groups is not a binary classifier",
			ErrUnsupportedModel, objective, groups)
	}
}

type ensembleModel struct {
	ensemble *leaves.Ensemble
	groups   int
	proba    linkFunc
}

// newEnsembleModel accepts only ensembles whose output is a probability:
// a logistic transform over one group or a softmax over two. A raw ensemble
// is accepted when link supplies the transform. Regression, exponential and
// leaf-index outputs are rejected.
func newEnsembleModel(e *leaves.Ensemble, link linkFunc) (*ensembleModel, error) {
	groups := e.NOutputGroups()
	kind := e.Transformation().Type()

	m := &ensembleModel{ensemble: e, groups: groups, proba: link}
	switch {
	case kind == transformation.Raw && link != nil:
		// link was matched to the dump's objective
	case kind == transformation.Logistic && groups == 1:
		m.proba = func(preds []float64) float64 { return preds[0] }
	case kind == transformation.Softmax && groups == 2:
		m.proba = func(preds []float64) float64 { return preds[1] }
	default:
		return nil, fmt.Errorf("%w: %s has %s output over %d groups, need a binary classifier",
			ErrUnsupportedModel, e.Name(), transformName(kind), groups)
	}
	return m, nil
}

// transformName avoids TransformType.Name, which has no entry for
// exponential.
func transformName(kind transformation.TransformType) string {
	switch kind {
	case transformation.Raw:
		return "raw"
	case transformation.Logistic:
		return "logistic"
	case transformation.Softmax:
		return "softmax"
	case transformation.LeafIndex:
		return "leaf index"
	case transformation.Exponential:
		return "exponential"
	default:
		return fmt.Sprintf("transform %d", int(kind))
	}
}

func (m *ensembleModel) NumFeatures() int {
	return m.ensemble.NFeatures()
}

func (m *ensembleModel) PredictProba(row []float64) (float64, error) {
	if len(row) != m.ensemble.NFeatures() {
		return 0, fmt.Errorf("%w: row has %d values, model expects %d",
			ErrShapeMismatch, len(row), m.ensemble.NFeatures())
	}

	preds := make([]float64, m.groups)
	if err := m.ensemble.Predict(row, 0, preds); err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return m.proba(preds), nil
}
