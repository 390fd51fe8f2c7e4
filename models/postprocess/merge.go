package postprocess

import (
	"github.com/nvr-ai/go-pillcheck/images"
)

// DefaultMergeTolerance is the per-coordinate distance, in pixels, under which two
// boxes are considered the same pill by ApplyCoordMerge.
const DefaultMergeTolerance = 0.4

// ApplyCoordMerge collapses detections of the same pill by averaging their boxes.
//
// Detections are processed in arrival order. Each one is compared against the merged
// entries built so far; the first entry that is similar (all four coordinate deltas
// below tolerance) or overlapping (IoU above iouThreshold) absorbs it, and its box
// becomes the coordinate-wise average of the two. The merged entry keeps the
// confidence and class scores of whichever member has the higher confidence.
// Otherwise the detection starts a new entry.
//
// Results depend on input order: a later detection moves an earlier merged box, which
// changes what the following detections match. Feed rows in decoder order.
//
// Arguments:
//   - set: The detections to merge, in decoder row order.
//   - tolerance: The per-coordinate similarity tolerance, exclusive.
//   - iouThreshold: IoU above which two boxes are merged.
//
// Returns:
//   - DetectionSet: One entry per merged group, in order of first appearance.
func ApplyCoordMerge(set DetectionSet, tolerance, iouThreshold float32) DetectionSet {
	merged := make(DetectionSet, 0, len(set))

	for _, d := range set {
		absorbed := false
		for i := range merged {
			m := &merged[i]
			if !m.Box.Similar(d.Box, tolerance) && images.CalculateIoU(m.Box, d.Box) <= iouThreshold {
				continue
			}

			m.Box = m.Box.Average(d.Box)
			if d.Confidence > m.Confidence {
				m.Confidence = d.Confidence
				m.ClassScores = d.ClassScores
				m.Row = d.Row
			}
			absorbed = true
			break
		}

		if !absorbed {
			merged = append(merged, d)
		}
	}

	return merged
}
