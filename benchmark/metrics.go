// Package benchmark - Throughput benchmarks of the pill detector pipeline.
package benchmark

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario        Scenario      `json:"scenario"`
	Timestamp       time.Time     `json:"timestamp"`
	TotalDuration   time.Duration `json:"total_duration"`
	FramesPerSecond float64       `json:"frames_per_second"`
	Latency         LatencyStats  `json:"latency"`
	MemoryStats     MemoryMetrics `json:"memory_stats"`
	CPUStats        CPUMetrics    `json:"cpu_stats"`
	// DetectionCount is the sum of final detections over all iterations.
	DetectionCount int     `json:"detection_count"`
	ErrorRate      float64 `json:"error_rate"`
}

// LatencyStats summarizes per-pass latencies.
type LatencyStats struct {
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P90  time.Duration `json:"p90"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"`
	GOMAXPROCS int `json:"gomaxprocs"`
}

// NewLatencyStats computes latency percentiles.
func NewLatencyStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s)
	}
	sort.Float64s(values)

	quantile := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, values, nil))
	}
	return LatencyStats{
		Mean: time.Duration(stat.Mean(values, nil)),
		P50:  quantile(0.5),
		P90:  quantile(0.9),
		P99:  quantile(0.99),
		Max:  time.Duration(values[len(values)-1]),
	}
}
