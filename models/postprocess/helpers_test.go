package postprocess

import (
	"math/rand"

	"github.com/nvr-ai/go-pillcheck/images"
)

// labels is a minimal Labeler for tests.
type labels []string

func (l labels) Label(index int) string {
	if index < 0 || index >= len(l) {
		return "Unknown"
	}
	return l[index]
}

// det builds a detection; rows are numbered by the caller through withRows.
func det(x1, y1, x2, y2, confidence float32, scores ...float32) Detection {
	return Detection{
		Box:         images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Confidence:  confidence,
		ClassScores: scores,
	}
}

// withRows numbers the detections in slice order, as the decoder would.
func withRows(ds ...Detection) DetectionSet {
	set := make(DetectionSet, len(ds))
	for i, d := range ds {
		d.Row = i
		set[i] = d
	}
	return set
}

// randomSet builds n detections scattered over a 640x640 input, clustered enough
// that suppression has work to do.
func randomSet(rng *rand.Rand, n int) DetectionSet {
	set := make(DetectionSet, n)
	for i := range set {
		cx := float32(rng.Intn(8))*80 + rng.Float32()*20
		cy := float32(rng.Intn(8))*80 + rng.Float32()*20
		w := 30 + rng.Float32()*40
		h := 30 + rng.Float32()*40
		set[i] = Detection{
			Box:        images.Rect{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
			Confidence: float32(rng.Intn(100)) / 100,
			Row:        i,
		}
	}
	return set
}

// pairwiseNMS is the textbook O(N^2) greedy NMS, used as an oracle.
func pairwiseNMS(set DetectionSet, iouThreshold float32) DetectionSet {
	sorted := SortByConfidence(set)
	accepted := DetectionSet{}
	for _, d := range sorted {
		keep := true
		for _, a := range accepted {
			if images.CalculateIoU(d.Box, a.Box) > iouThreshold {
				keep = false
				break
			}
		}
		if keep {
			accepted = append(accepted, d)
		}
	}
	return accepted
}
