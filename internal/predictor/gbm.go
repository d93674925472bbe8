package predictor

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// GBMConfig holds gradient boosting hyperparameters.
type GBMConfig struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	LearningRate    float64 `json:"learning_rate"`
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`
	Lambda          float64 `json:"lambda"`
	Gamma           float64 `json:"gamma"`
	MinChildWeight  float64 `json:"min_child_weight"`
	Seed            uint64  `json:"seed"`
}

// DefaultGBMConfig returns the residual model settings: 300 trees of depth
// 6, learning rate 0.05, 80% row and column sampling.
func DefaultGBMConfig() GBMConfig {
	return GBMConfig{
		NEstimators:     300,
		MaxDepth:        6,
		LearningRate:    0.05,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
		Lambda:          1,
		MinChildWeight:  1,
		Seed:            42,
	}
}

// GBM is a gradient-boosted ensemble of regression trees trained on squared
// error.
type GBM struct {
	Config    GBMConfig `json:"config"`
	BaseScore float64   `json:"base_score"`
	Features  int       `json:"features"`
	Trees     []Tree    `json:"trees"`
}

func NewGBM(cfg GBMConfig) *GBM {
	return &GBM{Config: cfg}
}

// Fit trains the ensemble from scratch. Rows and columns are resampled per
// tree from a PCG stream seeded by Config.Seed, so equal inputs give equal
// models.
func (m *GBM) Fit(X [][]float64, y []float64) error {
	if err := checkShape(X, y); err != nil {
		return err
	}
	n, nf := len(X), len(X[0])
	rng := rand.New(rand.NewPCG(m.Config.Seed, 0))

	m.Features = nf
	m.BaseScore = stat.Mean(y, nil)
	m.Trees = m.Trees[:0]

	// Rows ordered by each feature once; per-tree orders are filtered views.
	order := make([][]int, nf)
	for f := 0; f < nf; f++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return X[idx[a]][f] < X[idx[b]][f] })
		order[f] = idx
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.BaseScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	inSample := make([]bool, n)
	goLeft := make([]bool, n)

	nCols := max(1, int(math.Floor(m.Config.ColsampleByTree*float64(nf))))

	for round := 0; round < m.Config.NEstimators; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
			hess[i] = 1
		}

		sampled := 0
		for i := range inSample {
			inSample[i] = m.Config.Subsample >= 1 || rng.Float64() < m.Config.Subsample
			if inSample[i] {
				sampled++
			}
		}
		if sampled == 0 {
			inSample[rng.IntN(n)] = true
		}

		cols := rng.Perm(nf)[:nCols]
		sort.Ints(cols)

		sorted := make([][]int, len(cols))
		for k, f := range cols {
			list := make([]int, 0, sampled)
			for _, i := range order[f] {
				if inSample[i] {
					list = append(list, i)
				}
			}
			sorted[k] = list
		}

		b := &treeBuilder{X: X, grad: grad, hess: hess, cols: cols, cfg: m.Config, goLeft: goLeft}
		b.build(sorted, 0)
		tree := Tree{Nodes: b.nodes}
		m.Trees = append(m.Trees, tree)

		for i := range pred {
			pred[i] += tree.Predict(X[i])
		}
	}
	return nil
}

// Predict returns the ensemble output for x.
func (m *GBM) Predict(x []float64) float64 {
	out := m.BaseScore
	for i := range m.Trees {
		out += m.Trees[i].Predict(x)
	}
	return out
}

// FeatureImportance returns, per feature, how many splits use it.
func (m *GBM) FeatureImportance() []int {
	counts := make([]int, m.Features)
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if !n.Leaf {
				counts[n.Feature]++
			}
		}
	}
	return counts
}

// Save serializes the ensemble to JSON.
func (m *GBM) Save() ([]byte, error) {
	return json.Marshal(m)
}
