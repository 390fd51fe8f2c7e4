package benchmark

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-pillcheck/models/model"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
)

func TestScenarioBuilder(t *testing.T) {
	scenario := NewScenarioBuilder("test_scenario").
		WithPreset(model.ModelNamePillBoxes).
		WithPolicy(postprocess.PolicyCoordMerge).
		WithRows(500).
		WithPills(4, 2).
		WithIterations(5).
		WithWarmupRuns(1).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, model.ModelNamePillBoxes, scenario.Preset)
	assert.Equal(t, "coord_merge", scenario.Policy)
	assert.Equal(t, 500, scenario.Rows)
	assert.Equal(t, 4, scenario.Pills)
	assert.Equal(t, 2, scenario.Duplicates)
	assert.Equal(t, 5, scenario.Iterations)
	assert.Equal(t, 1, scenario.WarmupRuns)
	assert.NoError(t, scenario.Validate())
}

func TestScenarioValidate(t *testing.T) {
	tests := map[string]Scenario{
		"unknown preset": NewScenarioBuilder("s").WithPreset("yolov4").Build(),
		"unknown policy": func() Scenario {
			s := NewScenarioBuilder("s").Build()
			s.Policy = "soft_nms"
			return s
		}(),
		"no iterations":  NewScenarioBuilder("s").WithIterations(0).Build(),
		"too few rows":   NewScenarioBuilder("s").WithRows(10).WithPills(4, 4).Build(),
		"too many pills": NewScenarioBuilder("s").WithPills(MaxPills+1, 0).Build(),
	}
	for name, scenario := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, scenario.Validate())
		})
	}
}

func TestPredefinedScenarios(t *testing.T) {
	quick := QuickScenarios()
	assert.Len(t, quick.Scenarios, 9)
	for _, s := range quick.Scenarios {
		assert.NoError(t, s.Validate(), s.Name)
	}

	crowded := CrowdedTrayScenarios()
	require.Len(t, crowded.Scenarios, 4)
	assert.Equal(t, MaxPills, crowded.Scenarios[3].Pills)
	for _, s := range crowded.Scenarios {
		assert.NoError(t, s.Validate(), s.Name)
	}
}

func TestLoadScenarioSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: smoke
scenarios:
  - name: count
    preset: pill-count
    rows: 1000
  - name: boxes
    preset: pill-boxes
    policy: nms
`), 0o600))

	set, err := LoadScenarioSet(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke", set.Name)
	require.Len(t, set.Scenarios, 2)
	assert.Equal(t, 1000, set.Scenarios[0].Rows)
	assert.Equal(t, 100, set.Scenarios[0].Iterations, "unset fields keep the builder defaults")
	assert.Equal(t, "nms", set.Scenarios[1].Policy)

	require.NoError(t, os.WriteFile(path, []byte("scenarios:\n  - preset: yolov4\n"), 0o600))
	_, err = LoadScenarioSet(path)
	assert.Error(t, err)
}

// TestRunScenario validates that every pass finds exactly the pills placed in the
// synthetic tensor.
func TestRunScenario(t *testing.T) {
	logger, _ := test.NewNullLogger()
	suite := NewSuite(t.TempDir(), logger)

	scenario := NewScenarioBuilder("boxes").
		WithPreset(model.ModelNamePillBoxes).
		WithRows(600).
		WithPills(5, 2).
		WithIterations(4).
		WithWarmupRuns(1).
		Build()

	metrics, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)
	assert.Equal(t, 20, metrics.DetectionCount)
	assert.Zero(t, metrics.ErrorRate)
	assert.Greater(t, metrics.FramesPerSecond, 0.0)
	assert.LessOrEqual(t, metrics.Latency.P50, metrics.Latency.Max)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = suite.RunScenario(ctx, scenario)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAllScenariosSavesResults(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dir := t.TempDir()
	suite := NewSuite(dir, logger)

	suite.AddScenario(NewScenarioBuilder("ok").WithRows(300).WithPills(2, 1).WithIterations(2).Build())
	suite.AddScenario(NewScenarioBuilder("bad").WithIterations(0).Build())

	require.NoError(t, suite.RunAllScenarios(context.Background()))
	assert.Len(t, suite.GetResults(), 1)

	files, err := filepath.Glob(filepath.Join(dir, "benchmark_*"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.NotEmpty(t, hook.AllEntries())
}

func TestNewLatencyStats(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(100-i) * time.Millisecond
	}

	stats := NewLatencyStats(samples)
	assert.Equal(t, 100*time.Millisecond, stats.Max)
	assert.Equal(t, 50*time.Millisecond, stats.P50)
	assert.Equal(t, 99*time.Millisecond, stats.P99)
	assert.InDelta(t, float64(50500*time.Microsecond), float64(stats.Mean), float64(time.Microsecond))

	assert.Equal(t, LatencyStats{}, NewLatencyStats(nil))
}
