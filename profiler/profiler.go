// Package profiler - Stage timing and metrics for detector passes.
package profiler

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Stage names recorded by the detector.
const (
	StageEncode    = "encode"
	StageInvoke    = "invoke"
	StageDecode    = "decode"
	StageFilter    = "filter"
	StageSuppress  = "suppress"
	StageInterpret = "interpret"
)

// DefaultMaxSamples is the size of the sliding window kept per stage and metric.
const DefaultMaxSamples = 600

// StageTimer records how long each pipeline stage takes, plus numeric metrics such as
// candidate counts.
//
// A StageTimer is safe for concurrent use. A nil *StageTimer records nothing, so callers
// never need to check whether profiling is enabled.
type StageTimer struct {
	mu         sync.Mutex
	maxSamples int
	startTime  time.Time

	// Performance tracking
	operationTimes map[string]*TimeTracker
	// Custom metrics
	customMetrics map[string]*MetricTracker
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	name   string
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// StageStats is a snapshot of one stage's timings over the sliding window.
type StageStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Last  time.Duration `json:"last"`
}

// MetricStats is a snapshot of one metric over the sliding window.
type MetricStats struct {
	Name  string  `json:"name"`
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Last  float64 `json:"last"`
}

// NewStageTimer creates a stage timer.
//
// Arguments:
// - maxSamples: The sliding window size per stage, DefaultMaxSamples when <= 0.
//
// Returns:
// - A ready StageTimer.
func NewStageTimer(maxSamples int) *StageTimer {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &StageTimer{
		maxSamples:     maxSamples,
		startTime:      time.Now(),
		operationTimes: make(map[string]*TimeTracker),
		customMetrics:  make(map[string]*MetricTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
//
// @example
// done := timer.StartOperation(StageDecode)
// defer done()
func (st *StageTimer) StartOperation(name string) func() {
	if st == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		st.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration records the completion time of an operation.
func (st *StageTimer) RecordDuration(name string, duration time.Duration) {
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	tracker, exists := st.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		st.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > st.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// RecordMetric records a value for a custom metric.
//
// Arguments:
// - name: The name of the metric
// - value: The value to record
func (st *StageTimer) RecordMetric(name string, value float64) {
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	tracker, exists := st.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{
			name: name,
			min:  value,
			max:  value,
		}
		st.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > st.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// Stages returns a snapshot of every recorded stage, sorted by name.
func (st *StageTimer) Stages() []StageStats {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	stats := make([]StageStats, 0, len(st.operationTimes))
	for name, tracker := range st.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		stats = append(stats, StageStats{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
			Last:  tracker.durations[len(tracker.durations)-1],
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Metrics returns a snapshot of every recorded metric, sorted by name.
func (st *StageTimer) Metrics() []MetricStats {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	stats := make([]MetricStats, 0, len(st.customMetrics))
	for name, tracker := range st.customMetrics {
		if len(tracker.values) == 0 {
			continue
		}
		stats = append(stats, MetricStats{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.sum / float64(len(tracker.values)),
			Min:   tracker.min,
			Max:   tracker.max,
			Last:  tracker.values[len(tracker.values)-1],
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Stage returns the snapshot of one stage.
func (st *StageTimer) Stage(name string) (StageStats, bool) {
	for _, s := range st.Stages() {
		if s.Name == name {
			return s, true
		}
	}
	return StageStats{}, false
}

// Reset clears all timings and metrics.
func (st *StageTimer) Reset() {
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	st.startTime = time.Now()
	st.operationTimes = make(map[string]*TimeTracker)
	st.customMetrics = make(map[string]*MetricTracker)
}

// LogReport writes one log entry per stage and metric at Info level.
func (st *StageTimer) LogReport(logger log.FieldLogger) {
	if st == nil {
		return
	}
	st.mu.Lock()
	uptime := time.Since(st.startTime)
	st.mu.Unlock()

	logger.WithField("uptime", uptime.Truncate(time.Millisecond)).Info("stage timings")
	for _, s := range st.Stages() {
		logger.WithFields(log.Fields{
			"stage": s.Name,
			"avg":   s.Avg.Truncate(time.Microsecond),
			"min":   s.Min.Truncate(time.Microsecond),
			"max":   s.Max.Truncate(time.Microsecond),
			"count": s.Count,
		}).Info("stage")
	}
	for _, m := range st.Metrics() {
		logger.WithFields(log.Fields{
			"metric": m.Name,
			"avg":    m.Avg,
			"min":    m.Min,
			"max":    m.Max,
			"count":  m.Count,
		}).Info("metric")
	}
}
