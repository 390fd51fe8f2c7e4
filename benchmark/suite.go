package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-pillcheck/images"
	"github.com/nvr-ai/go-pillcheck/inference/detectors"
	"github.com/nvr-ai/go-pillcheck/models"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
	"github.com/nvr-ai/go-pillcheck/test"
)

// MaxPills is the number of pills the synthetic tray grid holds.
const MaxPills = 64

// Suite manages and executes benchmark scenarios
type Suite struct {
	scenarios []Scenario
	outputDir string
	logger    log.FieldLogger
	mu        sync.RWMutex
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - outputDir: Where SaveResults writes its reports.
//   - logger: Receives one entry per finished scenario.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(outputDir string, logger log.FieldLogger) *Suite {
	return &Suite{
		outputDir: outputDir,
		logger:    logger,
		scenarios: make([]Scenario, 0),
		results:   make([]PerformanceMetrics, 0),
	}
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// AddScenarioSet adds every scenario of set.
func (bs *Suite) AddScenarioSet(set *ScenarioSet) {
	for _, scenario := range set.Scenarios {
		bs.AddScenario(scenario)
	}
}

// RunScenario executes a single benchmark scenario
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	detector, raw, err := prepare(scenario)
	if err != nil {
		return nil, err
	}

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
	}

	// Warmup runs
	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, err := detector.Process(raw); err != nil {
			return nil, errors.Wrap(err, "warmup failed")
		}
	}

	// Capture initial memory stats
	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	latencies := make([]time.Duration, 0, scenario.Iterations)
	totalDetections := 0
	failures := 0
	startTime := time.Now()

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		passStart := time.Now()
		result, err := detector.Process(raw)
		latencies = append(latencies, time.Since(passStart))
		if err != nil {
			failures++
			continue
		}
		totalDetections += len(result.Final)
	}

	totalDuration := time.Since(startTime)

	// Capture final memory stats
	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics.TotalDuration = totalDuration
	metrics.FramesPerSecond = float64(scenario.Iterations) / totalDuration.Seconds()
	metrics.Latency = NewLatencyStats(latencies)
	metrics.DetectionCount = totalDetections
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)

	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}

	metrics.CPUStats = CPUMetrics{
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
	}

	return metrics, nil
}

// prepare builds the scenario's detector and its synthetic output tensor.
func prepare(scenario Scenario) (*detectors.Detector, []float32, error) {
	preset, err := models.LookupPreset(string(scenario.Preset))
	if err != nil {
		return nil, nil, err
	}

	config := detectors.DefaultConfig()
	config.ApplyPreset(preset)
	if scenario.Policy != "" {
		if config.Policy, err = postprocess.ParsePolicy(scenario.Policy); err != nil {
			return nil, nil, err
		}
	}

	quiet := log.New()
	quiet.SetOutput(io.Discard)
	detector, err := detectors.NewDetector(config, nil, detectors.WithLogger(quiet))
	if err != nil {
		return nil, nil, err
	}

	gen := test.NewMockTensorGenerator(config.Layout, scenario.Rows)
	return detector, gen.Generate(trayGrid(scenario.Pills, config.Layout.NumClasses), scenario.Duplicates), nil
}

// trayGrid lays n pills out on an 8x8 grid of 60 pixel pills, 80 pixels apart.
func trayGrid(n, classes int) []test.Pill {
	pills := make([]test.Pill, n)
	for i := range pills {
		x := float32(10 + 80*(i%8))
		y := float32(10 + 80*(i/8))
		pills[i] = test.Pill{
			Box:        images.Rect{X1: x, Y1: y, X2: x + 60, Y2: y + 60},
			Confidence: 0.95,
			Class:      i % max(classes, 1),
		}
	}
	return pills
}

// RunAllScenarios executes all configured benchmark scenarios
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.Lock()
	scenarios := make([]Scenario, len(bs.scenarios))
	copy(scenarios, bs.scenarios)
	bs.mu.Unlock()

	for _, scenario := range scenarios {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bs.logger.WithError(err).WithField("scenario", scenario.Name).Error("scenario failed")
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.WithFields(log.Fields{
			"scenario": scenario.Name,
			"fps":      fmt.Sprintf("%.1f", metrics.FramesPerSecond),
			"p99":      metrics.Latency.P99,
		}).Info("scenario completed")
	}

	return bs.SaveResults()
}

// SaveResults persists benchmark results to filesystem
func (bs *Suite) SaveResults() error {
	results := bs.GetResults()

	// Ensure output directory exists
	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	// Save detailed results as JSON
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal results")
	}

	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write results file")
	}

	// Save summary CSV
	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return errors.Wrap(err, "failed to save summary CSV")
	}

	bs.logger.WithFields(log.Fields{
		"results": resultsFile,
		"summary": summaryFile,
	}).Info("benchmark results saved")
	return nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"Scenario", "Preset", "Policy", "Rows", "Pills", "FPS",
		"P50_us", "P99_us", "Detections", "Error_Rate"}); err != nil {
		return err
	}

	for _, result := range results {
		s := result.Scenario
		err := w.Write([]string{
			s.Name,
			string(s.Preset),
			s.Policy,
			strconv.Itoa(s.Rows),
			strconv.Itoa(s.Pills),
			strconv.FormatFloat(result.FramesPerSecond, 'f', 2, 64),
			strconv.FormatInt(result.Latency.P50.Microseconds(), 10),
			strconv.FormatInt(result.Latency.P99.Microseconds(), 10),
			strconv.Itoa(result.DetectionCount),
			strconv.FormatFloat(result.ErrorRate, 'f', 4, 64),
		})
		if err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	results := make([]PerformanceMetrics, len(bs.results))
	copy(results, bs.results)
	return results
}
