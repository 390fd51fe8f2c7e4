package detectors

import (
	"sort"

	"github.com/nvr-ai/go-pillcheck/images"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes the final detections of a pass: pill sizes, how confident the
// detector was, and how crowded the tray is.
type Metrics struct {
	// TotalPills is the number of final detections.
	TotalPills int `json:"total_pills"`

	// SmallPills is the count of boxes below MetricsConfig.SmallPillArea.
	SmallPills int `json:"small_pills"`

	// LargePills is the count of boxes above MetricsConfig.LargePillArea.
	LargePills int `json:"large_pills"`

	// AverageArea is the mean box area in input pixels.
	AverageArea float64 `json:"average_area"`

	// AreaVariance measures the spread in box areas.
	AreaVariance float64 `json:"area_variance"`

	// OverlapRatio is the fraction of pills whose box overlaps another above
	// MetricsConfig.OverlapThreshold.
	OverlapRatio float64 `json:"overlap_ratio"`

	// CenterOfMass is the mean of the box centers.
	CenterOfMass images.Point `json:"center_of_mass"`

	// BoundingRegion contains all boxes.
	BoundingRegion images.Rect `json:"bounding_region"`

	// Confidence provides statistics on detection confidence.
	Confidence ConfidenceStats `json:"confidence"`
}

// ConfidenceStats provides statistical analysis of detection confidence scores.
type ConfidenceStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// MetricsConfig contains the thresholds used by ComputeMetrics.
type MetricsConfig struct {
	// SmallPillArea is the area below which a box counts as a small pill.
	SmallPillArea float64 `json:"small_pill_area" yaml:"small_pill_area"`

	// LargePillArea is the area above which a box counts as a large pill.
	LargePillArea float64 `json:"large_pill_area" yaml:"large_pill_area"`

	// OverlapThreshold is the IoU at or above which two final boxes overlap.
	OverlapThreshold float32 `json:"overlap_threshold" yaml:"overlap_threshold"`
}

// DefaultMetricsConfig returns thresholds sized for pills photographed at 640x640.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SmallPillArea:    400,
		LargePillArea:    10000,
		OverlapThreshold: 0.1,
	}
}

// ComputeMetrics summarizes a detection set.
//
// Arguments:
//   - set: The final detections.
//   - config: The size and overlap thresholds.
//
// Returns:
//   - Metrics: The summary, zero for an empty set.
//
// @example
// metrics := ComputeMetrics(result.Final, DefaultMetricsConfig())
// fmt.Println(metrics.Confidence.Mean)
func ComputeMetrics(set postprocess.DetectionSet, config MetricsConfig) Metrics {
	metrics := Metrics{TotalPills: len(set)}
	if len(set) == 0 {
		return metrics
	}

	calculateSizeMetrics(set, config, &metrics)
	calculateConfidenceMetrics(set, &metrics)
	calculateSpatialMetrics(set, &metrics)
	calculateOverlapMetrics(set, config, &metrics)
	return metrics
}

// calculateSizeMetrics analyzes box size distribution.
func calculateSizeMetrics(set postprocess.DetectionSet, config MetricsConfig, metrics *Metrics) {
	areas := make([]float64, len(set))
	for i, d := range set {
		area := float64(d.Box.Area())
		areas[i] = area

		if area < config.SmallPillArea {
			metrics.SmallPills++
		}
		if area > config.LargePillArea {
			metrics.LargePills++
		}
	}
	metrics.AverageArea, metrics.AreaVariance = stat.PopMeanVariance(areas, nil)
}

// calculateConfidenceMetrics analyzes detection confidence distribution.
func calculateConfidenceMetrics(set postprocess.DetectionSet, metrics *Metrics) {
	confidences := make([]float64, len(set))
	for i, d := range set {
		confidences[i] = float64(d.Confidence)
	}
	sort.Float64s(confidences)

	stats := &metrics.Confidence
	stats.Mean, stats.StdDev = stat.PopMeanStdDev(confidences, nil)
	stats.Min = floats.Min(confidences)
	stats.Max = floats.Max(confidences)

	n := len(confidences)
	if n%2 == 0 {
		stats.Median = (confidences[n/2-1] + confidences[n/2]) / 2
	} else {
		stats.Median = confidences[n/2]
	}
}

// calculateSpatialMetrics finds the center of mass and the region covering every box.
func calculateSpatialMetrics(set postprocess.DetectionSet, metrics *Metrics) {
	var sumX, sumY float32
	region := set[0].Box

	for _, d := range set {
		c := d.Box.Center()
		sumX += c.X
		sumY += c.Y

		region.X1 = min(region.X1, d.Box.X1)
		region.Y1 = min(region.Y1, d.Box.Y1)
		region.X2 = max(region.X2, d.Box.X2)
		region.Y2 = max(region.Y2, d.Box.Y2)
	}

	n := float32(len(set))
	metrics.CenterOfMass = images.Point{X: sumX / n, Y: sumY / n}
	metrics.BoundingRegion = region
}

// calculateOverlapMetrics analyzes overlapping pills.
func calculateOverlapMetrics(set postprocess.DetectionSet, config MetricsConfig, metrics *Metrics) {
	if len(set) < 2 {
		return
	}

	overlapping := 0
	for i := range set {
		for j := range set {
			if i != j && images.CalculateIoU(set[i].Box, set[j].Box) >= config.OverlapThreshold {
				overlapping++
				break
			}
		}
	}
	metrics.OverlapRatio = float64(overlapping) / float64(len(set))
}
