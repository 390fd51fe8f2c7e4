package postprocess

import (
	"github.com/nvr-ai/go-pillcheck/images"
)

// DefaultMinCenterDistance is the center distance at or below which ApplyCenterDedup
// treats two detections as the same pill.
const DefaultMinCenterDistance = 0.05

// ApplyCenterDedup keeps detections whose centers are far enough from every center
// kept before them.
//
// Detections are processed in arrival order. Centers are multiplied by scale before
// measuring, so minDistance is expressed in whatever space scale maps to: 1 keeps
// model-input pixels, 1/640 maps a 640 pixel input onto [0, 1].
//
// Arguments:
//   - set: The detections to deduplicate, in decoder row order.
//   - minDistance: A detection is kept only if its distance to every kept center is
//     strictly greater than this.
//   - scale: Factor applied to center coordinates before measuring.
//
// Returns:
//   - DetectionSet: The kept detections, in arrival order.
func ApplyCenterDedup(set DetectionSet, minDistance, scale float32) DetectionSet {
	kept := make(DetectionSet, 0, len(set))
	centers := make([]images.Point, 0, len(set))

	for _, d := range set {
		c := d.Box.Center().Scale(scale)

		unique := true
		for _, other := range centers {
			if c.Distance(other) <= minDistance {
				unique = false
				break
			}
		}

		if unique {
			kept = append(kept, d)
			centers = append(centers, c)
		}
	}

	return kept
}
