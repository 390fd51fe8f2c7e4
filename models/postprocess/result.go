// Package postprocess - Turns raw pill detector output into counted or identified pills.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-pillcheck/images"
)

// Detection is a single candidate pill decoded from one row of the raw output tensor.
type Detection struct {
	// The bounding box of the detection, in model-input pixel space.
	Box images.Rect
	// The objectness confidence reported by the model, in [0, 1].
	Confidence float32
	// The per-class scores, in class index order. Empty for box-only models.
	ClassScores []float32
	// The row of the raw tensor the detection was decoded from.
	Row int
}

func (d Detection) String() string {
	return fmt.Sprintf("Detection row %d (confidence %f): %s", d.Row, d.Confidence, d.Box)
}

// DetectionSet is an ordered sequence of detections. The order is the raw tensor row
// order until a suppression policy re-sorts it.
type DetectionSet []Detection

// Len returns the number of detections in the set.
func (s DetectionSet) Len() int {
	return len(s)
}

// Boxes returns the bounding boxes of the set, in order.
func (s DetectionSet) Boxes() []images.Rect {
	boxes := make([]images.Rect, len(s))
	for i, d := range s {
		boxes[i] = d.Box
	}
	return boxes
}

// Clone returns a copy of the set that shares no slice storage with s.
func (s DetectionSet) Clone() DetectionSet {
	if s == nil {
		return nil
	}
	out := make(DetectionSet, len(s))
	for i, d := range s {
		out[i] = d
		if d.ClassScores != nil {
			out[i].ClassScores = append([]float32(nil), d.ClassScores...)
		}
	}
	return out
}
