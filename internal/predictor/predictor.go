package predictor

import (
	"encoding/json"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// Normalization holds per-column z-score parameters for features and target.
type Normalization struct {
	FeatureMean []float64 `json:"feature_mean"`
	FeatureStd  []float64 `json:"feature_std"`
	TargetMean  float64   `json:"target_mean"`
	TargetStd   float64   `json:"target_std"`
}

// ComputeNormalization computes population z-score parameters from a
// training matrix and target vector.
func ComputeNormalization(X [][]float64, y []float64) Normalization {
	nf := len(X[0])
	norm := Normalization{
		FeatureMean: make([]float64, nf),
		FeatureStd:  make([]float64, nf),
	}
	col := make([]float64, len(X))
	for f := 0; f < nf; f++ {
		for i, row := range X {
			col[i] = row[f]
		}
		norm.FeatureMean[f], norm.FeatureStd[f] = populationMeanStd(col)
	}
	norm.TargetMean, norm.TargetStd = populationMeanStd(y)
	return norm
}

func populationMeanStd(x []float64) (mean, std float64) {
	mean, variance := stat.PopMeanVariance(x, nil)
	std = math.Sqrt(variance)
	// Guard against zero std.
	if std < 1e-10 {
		std = 1
	}
	return mean, std
}

// Encode z-scores a feature vector.
func (n Normalization) Encode(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - n.FeatureMean[i]) / n.FeatureStd[i]
	}
	return out
}

// MLP is a feedforward network regressor on z-scored inputs and target.
type MLP struct {
	Hidden []int
	Config TrainConfig
	Seed   uint64

	net    *Network
	norm   Normalization
	losses []float64
}

// savedMLP is the JSON-serializable model artifact.
type savedMLP struct {
	Hidden        []int         `json:"hidden"`
	Config        TrainConfig   `json:"config"`
	Seed          uint64        `json:"seed"`
	Network       *Network      `json:"network"`
	Normalization Normalization `json:"normalization"`
}

// NewMLP returns an unfitted network regressor with two hidden layers.
func NewMLP(cfg TrainConfig, seed uint64) *MLP {
	return &MLP{Hidden: []int{32, 16}, Config: cfg, Seed: seed}
}

// Fit trains the network on a 90/10 shuffled split of the samples.
func (m *MLP) Fit(X [][]float64, y []float64) error {
	if err := checkShape(X, y); err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(m.Seed, 0))
	m.norm = ComputeNormalization(X, y)

	encX := make([][]float64, len(X))
	encY := make([][]float64, len(y))
	for i := range X {
		encX[i] = m.norm.Encode(X[i])
		encY[i] = []float64{(y[i] - m.norm.TargetMean) / m.norm.TargetStd}
	}

	sizes := append([]int{len(X[0])}, m.Hidden...)
	sizes = append(sizes, 1)
	m.net, m.losses = TrainNetworkOnData(encX, encY, sizes, m.Config, rng)
	return nil
}

// Predict returns the target prediction in original units.
func (m *MLP) Predict(x []float64) float64 {
	out := m.net.Infer(m.norm.Encode(x))[0]
	return out*m.norm.TargetStd + m.norm.TargetMean
}

// Losses returns the per-epoch validation losses of the last Fit.
func (m *MLP) Losses() []float64 {
	return m.losses
}

// Norm returns the normalization parameters used during training.
func (m *MLP) Norm() Normalization {
	return m.norm
}

func (m *MLP) MarshalJSON() ([]byte, error) {
	return json.Marshal(savedMLP{
		Hidden:        m.Hidden,
		Config:        m.Config,
		Seed:          m.Seed,
		Network:       m.net,
		Normalization: m.norm,
	})
}

func (m *MLP) UnmarshalJSON(data []byte) error {
	var saved savedMLP
	if err := json.Unmarshal(data, &saved); err != nil {
		return err
	}
	m.Hidden = saved.Hidden
	m.Config = saved.Config
	m.Seed = saved.Seed
	m.net = saved.Network
	m.norm = saved.Normalization
	return nil
}

// ShuffleAndSplit shuffles data and returns a 90/10 train/val split.
func ShuffleAndSplit(X, Y [][]float64, rng *rand.Rand) (trainX, trainY, valX, valY [][]float64) {
	n := len(X)
	if n < 2 {
		return X, Y, X, Y
	}
	nVal := n / 10
	if nVal < 1 {
		nVal = 1
	}
	nTrain := n - nVal

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	trainX = make([][]float64, nTrain)
	trainY = make([][]float64, nTrain)
	valX = make([][]float64, nVal)
	valY = make([][]float64, nVal)
	for i := 0; i < nTrain; i++ {
		trainX[i] = X[indices[i]]
		trainY[i] = Y[indices[i]]
	}
	for i := 0; i < nVal; i++ {
		valX[i] = X[indices[nTrain+i]]
		valY[i] = Y[indices[nTrain+i]]
	}
	return
}

// TrainNetworkOnData creates a network, shuffles/splits data, trains, and returns the network + per-epoch losses.
func TrainNetworkOnData(X, Y [][]float64, sizes []int, cfg TrainConfig, rng *rand.Rand) (*Network, []float64) {
	trainX, trainY, valX, valY := ShuffleAndSplit(X, Y, rng)
	net := NewNetwork(sizes, rng)
	losses := net.Train(trainX, trainY, valX, valY, cfg, rng)
	return net, losses
}

// ComputeResidualNoiseByHour computes the standard deviation of residuals per hour-of-day (0-23).
func ComputeResidualNoiseByHour(hours []int, predictions, actuals []float64) [24]float64 {
	var sums [24]float64
	var sumsSq [24]float64
	var counts [24]int

	for i := range hours {
		residual := actuals[i] - predictions[i]
		h := hours[i]
		sums[h] += residual
		sumsSq[h] += residual * residual
		counts[h]++
	}

	var result [24]float64
	for h := 0; h < 24; h++ {
		if counts[h] > 1 {
			mean := sums[h] / float64(counts[h])
			variance := sumsSq[h]/float64(counts[h]) - mean*mean
			if variance > 0 {
				result[h] = math.Sqrt(variance)
			}
		}
	}
	return result
}
