package pipeline

import (
	"time"

	"energy_forecast/internal/config"
	"energy_forecast/internal/predictor"
	"energy_forecast/internal/trend"
)

// Options configures a pipeline run.
type Options struct {
	DataDir    string
	ExtractDir string
	Entity     string

	// Horizon is the length of the held-out window at the end of the series.
	Horizon time.Duration
	// Mode is config.ModeOneStep or config.ModeRecursive.
	Mode string

	Trend     trend.Config
	Regressor predictor.Kind
	GBM       predictor.GBMConfig
	MLP       predictor.TrainConfig
	Seed      uint64
}

// DefaultOptions returns the standard run settings.
func DefaultOptions() Options {
	return OptionsFromConfig(config.EmptyForecastConfig())
}

// OptionsFromConfig resolves a loaded config into run options.
func OptionsFromConfig(c *config.ForecastConfig) Options {
	tc := trend.DefaultConfig()
	tc.Changepoints = c.GetChangepoints()
	tc.ChangepointRange = c.GetChangepointRange()
	tc.DailyOrder = c.GetDailyOrder()
	tc.WeeklyOrder = c.GetWeeklyOrder()
	tc.YearlyOrder = c.GetYearlyOrder()

	gbm := predictor.DefaultGBMConfig()
	gbm.NEstimators = c.GetNEstimators()
	gbm.MaxDepth = c.GetMaxDepth()
	gbm.LearningRate = c.GetLearningRate()
	gbm.Subsample = c.GetSubsample()
	gbm.ColsampleByTree = c.GetColsampleByTree()
	gbm.Seed = c.GetSeed()

	return Options{
		DataDir:    c.GetDataDir(),
		ExtractDir: c.GetExtractDir(),
		Entity:     c.GetEntity(),
		Horizon:    c.GetHorizon(),
		Mode:       c.GetMode(),
		Trend:      tc,
		Regressor:  predictor.Kind(c.GetRegressor()),
		GBM:        gbm,
		MLP:        predictor.DefaultTrainConfig(),
		Seed:       c.GetSeed(),
	}
}

func (o Options) newRegressor() (predictor.Regressor, error) {
	switch o.Regressor {
	case predictor.KindGBM, "":
		return predictor.NewGBM(o.GBM), nil
	case predictor.KindMLP:
		return predictor.NewMLP(o.MLP, o.Seed), nil
	}
	return predictor.New(o.Regressor, o.Seed)
}
