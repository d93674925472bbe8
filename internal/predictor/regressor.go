package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNoSamples     = errors.New("predictor: no training samples")
	ErrShapeMismatch = errors.New("predictor: feature and target lengths differ")
	ErrUnknownKind   = errors.New("predictor: unknown regressor kind")
)

// Regressor learns a scalar target from fixed-width feature vectors.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
}

// Kind names a Regressor implementation in configs and saved bundles.
type Kind string

const (
	KindGBM Kind = "gbm"
	KindMLP Kind = "mlp"
)

// New returns an unfitted regressor of the given kind with default settings.
func New(kind Kind, seed uint64) (Regressor, error) {
	switch kind {
	case KindGBM:
		cfg := DefaultGBMConfig()
		cfg.Seed = seed
		return NewGBM(cfg), nil
	case KindMLP:
		return NewMLP(DefaultTrainConfig(), seed), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

type savedRegressor struct {
	Kind  Kind            `json:"kind"`
	Model json.RawMessage `json:"model"`
}

// Save serializes a fitted regressor together with its kind.
func Save(r Regressor) ([]byte, error) {
	var kind Kind
	switch r.(type) {
	case *GBM:
		kind = KindGBM
	case *MLP:
		kind = KindMLP
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, r)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(savedRegressor{Kind: kind, Model: data})
}

// Load deserializes a regressor written by Save.
func Load(data []byte) (Regressor, error) {
	var saved savedRegressor
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, err
	}
	var r Regressor
	switch saved.Kind {
	case KindGBM:
		r = &GBM{}
	case KindMLP:
		r = &MLP{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, saved.Kind)
	}
	if err := json.Unmarshal(saved.Model, r); err != nil {
		return nil, fmt.Errorf("decoding %s model: %w", saved.Kind, err)
	}
	return r, nil
}

func checkShape(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrNoSamples
	}
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), width)
		}
	}
	return nil
}
