package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGBM_FitsSyntheticResiduals(t *testing.T) {
	X, y := syntheticResiduals(2000, 42)
	trainX, trainY := X[:1600], y[:1600]
	testX, testY := X[1600:], y[1600:]

	m := NewGBM(DefaultGBMConfig())
	require.NoError(t, m.Fit(trainX, trainY))

	assert.Len(t, m.Trees, 300)
	assert.Less(t, rmse(m, trainX, trainY), 15.0)
	assert.Less(t, rmse(m, testX, testY), 25.0)

	// hour (0) and lag_1 (3) drive the target
	imp := m.FeatureImportance()
	require.Len(t, imp, 8)
	assert.Positive(t, imp[0])
	assert.Greater(t, imp[3], imp[5])
}

func TestGBM_StepFunction(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 100; i++ {
		X = append(X, []float64{float64(i)})
		if i < 50 {
			y = append(y, 10)
		} else {
			y = append(y, 30)
		}
	}

	cfg := DefaultGBMConfig()
	cfg.Subsample = 1
	cfg.ColsampleByTree = 1
	cfg.Lambda = 0
	m := NewGBM(cfg)
	require.NoError(t, m.Fit(X, y))

	assert.InDelta(t, 20.0, m.BaseScore, 1e-9)
	assert.InDelta(t, 10.0, m.Predict([]float64{3}), 1e-3)
	assert.InDelta(t, 30.0, m.Predict([]float64{97}), 1e-3)
	assert.InDelta(t, 49.5, m.Trees[0].Nodes[0].Threshold, 1e-9)
}

func TestGBM_RespectsMaxDepth(t *testing.T) {
	X, y := syntheticResiduals(500, 3)
	cfg := DefaultGBMConfig()
	cfg.NEstimators = 20
	cfg.MaxDepth = 3

	m := NewGBM(cfg)
	require.NoError(t, m.Fit(X, y))
	for _, tree := range m.Trees {
		assert.LessOrEqual(t, tree.Depth(), 3)
	}
}

func TestGBM_ConstantTarget(t *testing.T) {
	X := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	y := []float64{7, 7, 7}

	m := NewGBM(DefaultGBMConfig())
	require.NoError(t, m.Fit(X, y))
	for _, x := range X {
		assert.InDelta(t, 7.0, m.Predict(x), 1e-9)
	}
}

func TestGBM_DeterministicForSeed(t *testing.T) {
	X, y := syntheticResiduals(300, 9)
	cfg := DefaultGBMConfig()
	cfg.NEstimators = 30

	a, b := NewGBM(cfg), NewGBM(cfg)
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	for _, x := range X[:20] {
		assert.Equal(t, a.Predict(x), b.Predict(x))
	}
}

func TestGBM_SaveLoadRoundtrip(t *testing.T) {
	X, y := syntheticResiduals(300, 5)
	cfg := DefaultGBMConfig()
	cfg.NEstimators = 25

	m := NewGBM(cfg)
	require.NoError(t, m.Fit(X, y))

	data, err := Save(m)
	require.NoError(t, err)
	loaded, err := Load(data)
	require.NoError(t, err)
	require.IsType(t, &GBM{}, loaded)

	for _, x := range X[:20] {
		assert.Equal(t, m.Predict(x), loaded.Predict(x))
	}
}

func TestGBM_RejectsBadShape(t *testing.T) {
	m := NewGBM(DefaultGBMConfig())
	assert.ErrorIs(t, m.Fit(nil, nil), ErrNoSamples)
	assert.ErrorIs(t, m.Fit([][]float64{{1, 2}, {3}}, []float64{1, 2}), ErrShapeMismatch)
}

func TestNewAndLoadUnknownKind(t *testing.T) {
	_, err := New("forest", 1)
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Load([]byte(`{"kind":"forest","model":{}}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	r, err := New(KindGBM, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), r.(*GBM).Config.Seed)
}
