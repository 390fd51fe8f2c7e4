// Package postprocess - provides Non-Maximum Suppression for pill detections.
package postprocess

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-pillcheck/images"
)

// SortByConfidence returns a copy of set ordered by descending confidence. Ties keep
// their original relative order.
func SortByConfidence(set DetectionSet) DetectionSet {
	sorted := make(DetectionSet, len(set))
	copy(sorted, set)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Detections are ranked by confidence (stable, so equal confidences keep row order)
// and walked in that order. A detection is accepted when its IoU with every already
// accepted detection is <= iouThreshold, and discarded otherwise.
//
// A spatial index over all candidates limits the IoU checks to boxes that can
// actually overlap; the accept/discard decisions are identical to the pairwise scan.
// A negative threshold makes every pair a duplicate, so only the most confident
// detection is kept.
//
// Arguments:
//   - set: The detections to suppress, in any order.
//   - iouThreshold: IoU above which a lower-ranked detection is a duplicate.
//
// Returns:
//   - DetectionSet: The accepted detections, highest confidence first.
func ApplyGreedyNMS(set DetectionSet, iouThreshold float32) DetectionSet {
	n := len(set)
	if n == 0 {
		return DetectionSet{}
	}

	sorted := SortByConfidence(set)
	// Disjoint boxes (IoU 0) never reach the index search but still exceed a
	// negative threshold.
	if iouThreshold < 0 {
		return sorted[:1]
	}
	index := newBoxIndex(sorted.Boxes())

	suppressed := make([]bool, n)
	filtered := make(DetectionSet, 0, n)

	for i := 0; i < n; i++ {
		if suppressed[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)

		for _, j := range index.Search(anchor.Box) {
			if j <= i || suppressed[j] {
				continue
			}
			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return filtered
}

// boxIndex is a static spatial index over a list of boxes.
//
// Coordinates are widened to whole pixels (floor of the minimum, ceil of the maximum)
// so the index can only return extra candidates, never miss one.
type boxIndex struct {
	fb *flatbush.Flatbush[int32]
}

func newBoxIndex(boxes []images.Rect) *boxIndex {
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(boxes))
	for _, b := range boxes {
		x1, y1, x2, y2 := widen(b)
		fb.Add(x1, y1, x2, y2)
	}
	fb.Finish()
	return &boxIndex{fb: fb}
}

// Search returns the indexes of all boxes whose widened bounds touch b's.
func (ix *boxIndex) Search(b images.Rect) []int {
	x1, y1, x2, y2 := widen(b)
	return ix.fb.Search(x1, y1, x2, y2)
}

func widen(b images.Rect) (x1, y1, x2, y2 int32) {
	return int32(math32.Floor(b.X1)), int32(math32.Floor(b.Y1)),
		int32(math32.Ceil(b.X2)), int32(math32.Ceil(b.Y2))
}
