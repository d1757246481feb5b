package scoring

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudscore/internal/domain"
	"fraudscore/pkg/crypto"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"fraud_model.pkl", FormatXGBoost},
		{"models/fraud.bin", FormatXGBoost},
		{"models/fraud.model", FormatXGBoost},
		{"models/fraud.txt", FormatLightGBM},
		{"models/fraud.LGB", FormatLightGBM},
		{"models/fraud.json", FormatLightGBMJSON},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFromPath(tt.path))
		})
	}
}

func TestLoadModel_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.bin")

	model, _, err := LoadModel(path, nil)

	require.Error(t, err)
	assert.Nil(t, model)
	assert.ErrorIs(t, err, ErrModelNotFound)

	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Path)
}

func TestLoadModel_CorruptArtifact(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fraud.json", "this is not a model")

	model, info, err := LoadModel(path, nil)

	require.Error(t, err)
	assert.Nil(t, model)
	var loadErr *ModelLoadError
	assert.True(t, errors.As(err, &loadErr))
	assert.Equal(t, FormatLightGBMJSON, info.Format)
	assert.Equal(t, crypto.Digest([]byte("this is not a model")), info.SHA256)
}

func vectorWithValue(v float64) domain.FeatureVector {
	fv := sampleVector()
	fv.TransactionValue = v
	return fv
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// copyFixture copies a testdata artifact into a temp dir, optionally editing
// its text, so sidecar files and variants do not touch testdata.
func copyFixture(t *testing.T, fixture, name string, edit func(string) string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", fixture))
	require.NoError(t, err)
	content := string(raw)
	if edit != nil {
		content = edit(content)
	}
	return writeFile(t, t.TempDir(), name, content)
}

// All fixtures split on transaction_value at 1000.
func TestNew_LoadsArtifactFixtures(t *testing.T) {
	tests := []struct {
		name     string
		fixture  string
		format   Format
		wantLow  float64
		wantHigh float64
	}{
		{"lightgbm text binary", "fraud_binary.txt", FormatLightGBM, sigmoid(-1), sigmoid(2)},
		{"lightgbm json binary", "fraud_binary.json", FormatLightGBMJSON, sigmoid(-1), sigmoid(2)},
		{"xgboost binary", "fraud_binary.model", FormatXGBoost, sigmoid(-1), sigmoid(2)},
		// class 1 of raw scores (1, -1) and (-1, 1)
		{"lightgbm two-class softmax", "fraud_softmax.txt", FormatLightGBM, sigmoid(-2), sigmoid(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join("testdata", tt.fixture)
			raw, err := os.ReadFile(path)
			require.NoError(t, err)

			e := New(Options{ModelPath: path})

			require.NoError(t, e.LoadErr())
			require.Equal(t, StateLoaded, e.State())
			info := e.ModelInfo()
			assert.Equal(t, tt.format, info.Format)
			assert.Equal(t, domain.NumFeatures, info.NumFeatures)
			assert.Equal(t, crypto.Digest(raw), info.SHA256)
			assert.False(t, info.Manifest)

			low, err := e.Score(vectorWithValue(150.75))
			require.NoError(t, err)
			assert.InDelta(t, tt.wantLow, low, 1e-9)

			high, err := e.Score(vectorWithValue(5000))
			require.NoError(t, err)
			assert.InDelta(t, tt.wantHigh, high, 1e-9)

			result, err := e.Infer(vectorWithValue(5000))
			require.NoError(t, err)
			assert.True(t, result.FraudFlag)
		})
	}
}

func TestLoadModel_FixtureWithManifest(t *testing.T) {
	path := copyFixture(t, "fraud_binary.txt", "fraud.txt", nil)
	writeFile(t, filepath.Dir(path), "fraud.txt"+ManifestSuffix,
		"features: ["+strings.Join(domain.FeatureNames, ", ")+"]\n")

	model, info, err := LoadModel(path, nil)

	require.NoError(t, err)
	assert.True(t, info.Manifest)
	assert.Equal(t, domain.NumFeatures, model.NumFeatures())
}

func TestLoadModel_RejectsNonProbabilityObjectives(t *testing.T) {
	const textBinary = "objective=binary sigmoid:1"
	const jsonBinary = `"objective": "binary sigmoid:1"`

	tests := []struct {
		name    string
		fixture string
		file    string
		from    string
		to      string
	}{
		{"lightgbm regression", "fraud_binary.txt", "fraud.txt", textBinary, "objective=regression"},
		{"lightgbm regression_l1", "fraud_binary.txt", "fraud.txt", textBinary, "objective=regression_l1"},
		{"lightgbm poisson", "fraud_binary.txt", "fraud.txt", textBinary, "objective=poisson"},
		{"json regression", "fraud_binary.json", "fraud.json", jsonBinary, `"objective": "regression"`},
		{"json multiclass with one group", "fraud_binary.json", "fraud.json", jsonBinary, `"objective": "multiclass num_class:2"`},
		{"json without objective", "fraud_binary.json", "fraud.json", jsonBinary + ",", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := copyFixture(t, tt.fixture, tt.file, func(s string) string {
				require.Contains(t, s, tt.from)
				return strings.Replace(s, tt.from, tt.to, 1)
			})

			model, _, err := LoadModel(path, nil)

			require.Error(t, err)
			assert.Nil(t, model)
			assert.ErrorIs(t, err, ErrUnsupportedModel)

			e := New(Options{ModelPath: path})
			assert.Equal(t, StateUnloaded, e.State())
			assert.ErrorIs(t, e.LoadErr(), ErrUnsupportedModel)
		})
	}
}

func TestLoadModel_DigestMismatchRejectedBeforeParsing(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fraud.json", "{}")

	_, _, err := LoadModel(path, crypto.NewVerifier(crypto.Digest([]byte("other")), nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, crypto.ErrDigestMismatch)
}

func TestCheckShape(t *testing.T) {
	const ordered = `features:
  - age
  - gender_code
  - location
  - subscription_type_code
  - tenure_months
  - income_bracket_code
  - event_created_at_ts
  - transaction_value
  - channel_code
`
	const swapped = `features:
  - gender_code
  - age
  - location
  - subscription_type_code
  - tenure_months
  - income_bracket_code
  - event_created_at_ts
  - transaction_value
  - channel_code
`

	tests := []struct {
		name         string
		features     int
		manifest     string
		wantManifest bool
		wantErr      error
		wantAnyErr   bool
	}{
		{name: "no manifest", features: 9},
		{name: "matching manifest", features: 9, manifest: ordered, wantManifest: true},
		{name: "reordered manifest", features: 9, manifest: swapped, wantErr: ErrShapeMismatch},
		{name: "too few model features", features: 8, wantErr: ErrShapeMismatch},
		{name: "too many model features", features: 12, manifest: ordered, wantErr: ErrShapeMismatch},
		{name: "manifest not yaml", features: 9, manifest: "features: [age", wantAnyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			manifestPath := filepath.Join(dir, "fraud.bin"+ManifestSuffix)
			if tt.manifest != "" {
				writeFile(t, dir, "fraud.bin"+ManifestSuffix, tt.manifest)
			}

			hasManifest, err := checkShape(&fakeModel{features: tt.features}, manifestPath)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantManifest, hasManifest)
			}
		})
	}
}
