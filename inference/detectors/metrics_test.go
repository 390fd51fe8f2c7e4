package detectors

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nvr-ai/go-pillcheck/images"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
)

func TestComputeMetrics(t *testing.T) {
	set := postprocess.DetectionSet{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, Confidence: 0.8},
		{Box: images.Rect{X1: 100, Y1: 100, X2: 200, Y2: 200}, Confidence: 0.6},
	}

	metrics := ComputeMetrics(set, DefaultMetricsConfig())
	assert.Equal(t, 2, metrics.TotalPills)
	assert.Equal(t, 1, metrics.SmallPills)
	assert.Equal(t, 0, metrics.LargePills, "the large threshold is exclusive")
	assert.Equal(t, 5050.0, metrics.AverageArea)
	assert.Equal(t, 4950.0*4950.0, metrics.AreaVariance)
	assert.Equal(t, 0.0, metrics.OverlapRatio)

	assert.InDelta(t, 0.7, metrics.Confidence.Mean, 1e-6)
	assert.InDelta(t, 0.7, metrics.Confidence.Median, 1e-6)
	assert.InDelta(t, 0.1, metrics.Confidence.StdDev, 1e-6)
	assert.InDelta(t, 0.6, metrics.Confidence.Min, 1e-6)
	assert.InDelta(t, 0.8, metrics.Confidence.Max, 1e-6)

	assert.Equal(t, images.Point{X: 77.5, Y: 77.5}, metrics.CenterOfMass)
	assert.Equal(t, images.Rect{X1: 0, Y1: 0, X2: 200, Y2: 200}, metrics.BoundingRegion)
}

func TestComputeMetricsOverlap(t *testing.T) {
	set := postprocess.DetectionSet{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, Confidence: 0.9},
		{Box: images.Rect{X1: 2, Y1: 0, X2: 12, Y2: 10}, Confidence: 0.8},
		{Box: images.Rect{X1: 300, Y1: 300, X2: 310, Y2: 310}, Confidence: 0.7},
	}

	metrics := ComputeMetrics(set, DefaultMetricsConfig())
	assert.InDelta(t, 2.0/3.0, metrics.OverlapRatio, 1e-9)
	assert.InDelta(t, 0.8, metrics.Confidence.Median, 1e-6)
}

func TestComputeMetricsEmpty(t *testing.T) {
	assert.Equal(t, Metrics{}, ComputeMetrics(nil, DefaultMetricsConfig()))
}
