package scoring

import "errors"

type fakeModel struct {
	features int
	proba    float64
	err      error
	panicMsg string
	lastRow  []float64
}

func (m *fakeModel) NumFeatures() int {
	if m.features == 0 {
		return 9
	}
	return m.features
}

func (m *fakeModel) PredictProba(row []float64) (float64, error) {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.lastRow = row
	if m.err != nil {
		return 0, m.err
	}
	return m.proba, nil
}

var errInference = errors.New("tree walk failed")
