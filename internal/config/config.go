package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Forecast modes.
const (
	ModeOneStep   = "one-step"
	ModeRecursive = "recursive"
)

// ForecastConfig is the JSON configuration for a forecast run. Every field
// is optional; the Get* methods return the default for fields left out.
type ForecastConfig struct {
	// Input and output
	DataDir    *string `json:"data_dir,omitempty"`
	ExtractDir *string `json:"extract_dir,omitempty"`
	Entity     *string `json:"entity,omitempty"`
	Output     *string `json:"output,omitempty"`
	PlotPath   *string `json:"plot_path,omitempty"`
	HTMLPath   *string `json:"html_path,omitempty"`
	ModelPath  *string `json:"model_path,omitempty"`

	// Split and evaluation
	Horizon *string `json:"horizon,omitempty"` // duration string like "48h"
	Mode    *string `json:"mode,omitempty"`    // "one-step" or "recursive"

	// Trend model
	Changepoints     *int     `json:"changepoints,omitempty"`
	ChangepointRange *float64 `json:"changepoint_range,omitempty"`
	DailyOrder       *int     `json:"daily_order,omitempty"`
	WeeklyOrder      *int     `json:"weekly_order,omitempty"`
	YearlyOrder      *int     `json:"yearly_order,omitempty"`

	// Residual model
	Regressor       *string  `json:"regressor,omitempty"` // "gbm" or "mlp"
	NEstimators     *int     `json:"n_estimators,omitempty"`
	MaxDepth        *int     `json:"max_depth,omitempty"`
	LearningRate    *float64 `json:"learning_rate,omitempty"`
	Subsample       *float64 `json:"subsample,omitempty"`
	ColsampleByTree *float64 `json:"colsample_bytree,omitempty"`
	Seed            *uint64  `json:"seed,omitempty"`

	// Server refresh schedule, standard 5-field cron spec. Empty disables.
	Schedule *string `json:"schedule,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyForecastConfig returns a ForecastConfig with all fields unset.
func EmptyForecastConfig() *ForecastConfig {
	return &ForecastConfig{}
}

// LoadForecastConfig loads a ForecastConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults.
func LoadForecastConfig(path string) (*ForecastConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyForecastConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *ForecastConfig) Validate() error {
	if c.Horizon != nil && *c.Horizon != "" {
		d, err := time.ParseDuration(*c.Horizon)
		if err != nil {
			return fmt.Errorf("invalid horizon '%s': %w", *c.Horizon, err)
		}
		if d <= 0 {
			return fmt.Errorf("horizon must be positive, got %s", d)
		}
	}

	if c.Mode != nil && *c.Mode != ModeOneStep && *c.Mode != ModeRecursive {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeOneStep, ModeRecursive, *c.Mode)
	}

	if c.Regressor != nil && *c.Regressor != "gbm" && *c.Regressor != "mlp" {
		return fmt.Errorf("regressor must be \"gbm\" or \"mlp\", got %q", *c.Regressor)
	}

	if c.ChangepointRange != nil && (*c.ChangepointRange <= 0 || *c.ChangepointRange > 1) {
		return fmt.Errorf("changepoint_range must be in (0, 1], got %f", *c.ChangepointRange)
	}

	for name, v := range map[string]*int{
		"changepoints": c.Changepoints,
		"daily_order":  c.DailyOrder,
		"weekly_order": c.WeeklyOrder,
		"yearly_order": c.YearlyOrder,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}

	if c.NEstimators != nil && *c.NEstimators < 1 {
		return fmt.Errorf("n_estimators must be at least 1, got %d", *c.NEstimators)
	}
	if c.MaxDepth != nil && *c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be at least 1, got %d", *c.MaxDepth)
	}
	if c.LearningRate != nil && *c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", *c.LearningRate)
	}
	for name, v := range map[string]*float64{
		"subsample":        c.Subsample,
		"colsample_bytree": c.ColsampleByTree,
	} {
		if v != nil && (*v <= 0 || *v > 1) {
			return fmt.Errorf("%s must be in (0, 1], got %f", name, *v)
		}
	}

	if c.Schedule != nil && *c.Schedule != "" {
		if _, err := cron.ParseStandard(*c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule '%s': %w", *c.Schedule, err)
		}
	}
	return nil
}

func getString(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func (c *ForecastConfig) GetDataDir() string    { return getString(c.DataDir, "data") }
func (c *ForecastConfig) GetExtractDir() string { return getString(c.ExtractDir, "extracted") }
func (c *ForecastConfig) GetEntity() string     { return getString(c.Entity, "") }
func (c *ForecastConfig) GetOutput() string     { return getString(c.Output, "forecast_output.json") }
func (c *ForecastConfig) GetPlotPath() string   { return getString(c.PlotPath, "") }
func (c *ForecastConfig) GetHTMLPath() string   { return getString(c.HTMLPath, "") }
func (c *ForecastConfig) GetModelPath() string  { return getString(c.ModelPath, "") }
func (c *ForecastConfig) GetMode() string       { return getString(c.Mode, ModeOneStep) }
func (c *ForecastConfig) GetRegressor() string  { return getString(c.Regressor, "gbm") }
func (c *ForecastConfig) GetSchedule() string   { return getString(c.Schedule, "") }

// GetHorizon parses and returns the held-out window length.
func (c *ForecastConfig) GetHorizon() time.Duration {
	if c.Horizon == nil || *c.Horizon == "" {
		return 48 * time.Hour
	}
	d, err := time.ParseDuration(*c.Horizon)
	if err != nil || d <= 0 {
		return 48 * time.Hour
	}
	return d
}

// GetChangepoints returns the number of potential trend changepoints.
func (c *ForecastConfig) GetChangepoints() int {
	if c.Changepoints == nil {
		return 25
	}
	return *c.Changepoints
}

// GetChangepointRange returns the share of history changepoints are placed in.
func (c *ForecastConfig) GetChangepointRange() float64 {
	if c.ChangepointRange == nil {
		return 0.8
	}
	return *c.ChangepointRange
}

func (c *ForecastConfig) GetDailyOrder() int {
	if c.DailyOrder == nil {
		return 4
	}
	return *c.DailyOrder
}

func (c *ForecastConfig) GetWeeklyOrder() int {
	if c.WeeklyOrder == nil {
		return 3
	}
	return *c.WeeklyOrder
}

func (c *ForecastConfig) GetYearlyOrder() int {
	if c.YearlyOrder == nil {
		return 10
	}
	return *c.YearlyOrder
}

func (c *ForecastConfig) GetNEstimators() int {
	if c.NEstimators == nil {
		return 300
	}
	return *c.NEstimators
}

func (c *ForecastConfig) GetMaxDepth() int {
	if c.MaxDepth == nil {
		return 6
	}
	return *c.MaxDepth
}

func (c *ForecastConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 0.05
	}
	return *c.LearningRate
}

func (c *ForecastConfig) GetSubsample() float64 {
	if c.Subsample == nil {
		return 0.8
	}
	return *c.Subsample
}

func (c *ForecastConfig) GetColsampleByTree() float64 {
	if c.ColsampleByTree == nil {
		return 0.8
	}
	return *c.ColsampleByTree
}

func (c *ForecastConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}

// SetString overrides a string field from a command-line flag. Empty values
// leave the field untouched.
func SetString(field **string, v string) {
	if v != "" {
		*field = ptrString(v)
	}
}
