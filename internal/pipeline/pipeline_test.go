package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy_forecast/internal/config"
	"energy_forecast/internal/model"
	"energy_forecast/internal/monitoring"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// demand returns n hourly points with a slow trend, a daily cycle, a weekend
// dip and gaussian noise.
func demand(n int, seed uint64) []model.Point {
	rng := rand.New(rand.NewPCG(seed, 0))
	points := make([]model.Point, n)
	for i := range points {
		ts := start.Add(time.Duration(i) * time.Hour)
		y := 1000 + 0.2*float64(i) + 150*math.Sin(2*math.Pi*float64(ts.Hour())/24)
		if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			y -= 100
		}
		points[i] = model.Point{DS: ts, Y: y + rng.NormFloat64()*10}
	}
	return points
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.GBM.NEstimators = 60
	return opts
}

func TestSplit(t *testing.T) {
	points := demand(100, 1)

	train, test, cutoff := Split(points, 48*time.Hour)
	assert.Equal(t, points[99].DS.Add(-48*time.Hour), cutoff)
	assert.Len(t, train, 51)
	assert.Len(t, test, 49)
	for _, p := range train {
		assert.True(t, p.DS.Before(cutoff))
	}
	for _, p := range test {
		assert.False(t, p.DS.Before(cutoff))
	}

	train, test, _ = Split(nil, time.Hour)
	assert.Empty(t, train)
	assert.Empty(t, test)
}

func TestForecast_OneStep(t *testing.T) {
	points := demand(24*35, 42)

	res, err := Forecast(context.Background(), points, testOptions())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, time.Hour, res.Step)
	assert.Equal(t, config.ModeOneStep, res.Mode)
	assert.Equal(t, points[len(points)-1].DS.Add(-48*time.Hour), res.Cutoff)
	require.Len(t, res.Rows, 49)
	assert.Equal(t, len(points)-49-168, res.TrainRows)

	for _, r := range res.Rows {
		assert.False(t, r.DS.Before(res.Cutoff))
		assert.InDelta(t, r.YHat+r.ResidualPred, r.YHatCorrected, 1e-9)
	}
	assert.Equal(t, 49, res.Metrics.Hybrid.N)
	assert.Less(t, res.Metrics.Hybrid.MAE, 60.0)
	assert.Less(t, res.Metrics.Baseline.MAE, 80.0)
}

func TestForecast_RecursiveIgnoresTestActuals(t *testing.T) {
	points := demand(24*30, 7)
	opts := testOptions()
	opts.Mode = config.ModeRecursive

	a, err := Forecast(context.Background(), points, opts)
	require.NoError(t, err)

	// scramble the held-out actuals; recursive predictions must not move
	shuffled := append([]model.Point(nil), points...)
	for i := len(shuffled) - 49; i < len(shuffled); i++ {
		shuffled[i].Y *= 3
	}
	b, err := Forecast(context.Background(), shuffled, opts)
	require.NoError(t, err)

	require.Len(t, b.Rows, len(a.Rows))
	for i := range a.Rows {
		assert.Equal(t, a.Rows[i].YHatCorrected, b.Rows[i].YHatCorrected)
		assert.NotEqual(t, a.Rows[i].Y, b.Rows[i].Y)
	}
}

func TestForecast_OneStepUsesOnlyPastActuals(t *testing.T) {
	points := demand(24*30, 9)
	opts := testOptions()

	a, err := Forecast(context.Background(), points, opts)
	require.NoError(t, err)

	changed := append([]model.Point(nil), points...)
	changed[len(changed)-1].Y += 500
	b, err := Forecast(context.Background(), changed, opts)
	require.NoError(t, err)

	// the changed value is the last row's own target, which no row reads
	require.Len(t, b.Rows, len(a.Rows))
	for i := range a.Rows {
		assert.Equal(t, a.Rows[i].YHatCorrected, b.Rows[i].YHatCorrected)
	}
}

func TestForecast_InsufficientHistory(t *testing.T) {
	tests := []struct {
		name   string
		points []model.Point
	}{
		{"empty", nil},
		{"single point", demand(1, 1)},
		{"shorter than a week of lags", demand(150, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Forecast(context.Background(), tt.points, testOptions())
			assert.ErrorIs(t, err, ErrInsufficientHistory)
		})
	}
}

func TestForecast_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Forecast(ctx, demand(24*30, 1), testOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForecast_MLPResidual(t *testing.T) {
	opts := testOptions()
	opts.Regressor = "mlp"
	opts.MLP.Epochs = 20

	res, err := Forecast(context.Background(), demand(24*30, 3), opts)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 49)
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func csvOf(points []model.Point) string {
	var sb strings.Builder
	sb.WriteString("Timestamp,Load (MW)\n")
	for _, p := range points {
		fmt.Fprintf(&sb, "%s,%.3f\n", p.DS.Format("2006-01-02 15:04:05"), p.Y)
	}
	return sb.String()
}

func TestRun_FromArchives(t *testing.T) {
	dataDir := t.TempDir()
	extractDir := filepath.Join(t.TempDir(), "extracted")
	points := demand(24*30, 11)

	// two overlapping exports plus a file that cannot be used
	writeZip(t, filepath.Join(dataDir, "2024-q1.zip"), map[string]string{
		"part1/load.csv": csvOf(points[:400]),
		"notes.csv":      "comment\nnothing to see\n",
	})
	writeZip(t, filepath.Join(dataDir, "2024-q1-late.zip"), map[string]string{
		"load.csv": csvOf(points[380:]),
	})

	opts := testOptions()
	opts.DataDir = dataDir
	opts.ExtractDir = extractDir

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, len(points), res.Points)
	assert.Len(t, res.Sources, 2)
	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0].Path, "notes.csv")
	assert.Len(t, res.Rows, 49)
}

func TestRun_NoUsableFiles(t *testing.T) {
	dataDir := t.TempDir()
	writeZip(t, filepath.Join(dataDir, "empty.zip"), map[string]string{"readme.csv": "a,b\nx,y\n"})

	opts := testOptions()
	opts.DataDir = dataDir
	opts.ExtractDir = t.TempDir()

	_, err := Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestLoad_RerunReusesExtraction(t *testing.T) {
	dataDir := t.TempDir()
	extractDir := filepath.Join(t.TempDir(), "extracted")
	points := demand(100, 3)
	writeZip(t, filepath.Join(dataDir, "load.zip"), map[string]string{"load.csv": csvOf(points)})

	opts := testOptions()
	opts.DataDir = dataDir
	opts.ExtractDir = extractDir

	first, err := Load(context.Background(), opts)
	require.NoError(t, err)
	second, err := Load(context.Background(), opts)
	require.NoError(t, err)

	assert.Len(t, first.Points, 100)
	assert.Equal(t, first.Points, second.Points)
	assert.Empty(t, second.Skipped)
}

func TestBundle_SaveLoadProject(t *testing.T) {
	points := demand(24*30, 5)
	res, err := Forecast(context.Background(), points, testOptions())
	require.NoError(t, err)

	b, err := NewBundle(res)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "models", "bundle.json")
	require.NoError(t, b.Save(path))

	loaded, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, loaded.RunID)

	h, err := loaded.Hybrid()
	require.NoError(t, err)
	again := h.OneStep(points, points[len(points)-49:])
	require.Len(t, again, len(res.Rows))
	for i := range again {
		assert.InDelta(t, res.Rows[i].YHatCorrected, again[i].YHatCorrected, 1e-9)
	}

	proj, err := loaded.Project(points, 24)
	require.NoError(t, err)
	require.Len(t, proj, 24)
	assert.Equal(t, points[len(points)-1].DS.Add(time.Hour), proj[0].DS)
	for _, p := range proj {
		assert.LessOrEqual(t, p.Lower, p.YHatCorrected)
		assert.GreaterOrEqual(t, p.Upper, p.YHatCorrected)
	}
}

func TestLoadBundle_Errors(t *testing.T) {
	_, err := LoadBundle(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"run_id":"x"}`), 0644))
	_, err = LoadBundle(path)
	assert.ErrorContains(t, err, "missing a model")
}
