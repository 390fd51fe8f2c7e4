package postprocess

// FilterByConfidence returns the detections whose confidence is strictly greater
// than threshold, preserving their relative order.
//
// The input set is not modified. An empty result is a valid outcome, not an error.
//
// Arguments:
//   - set: The decoded detections.
//   - threshold: The minimum confidence, exclusive.
//
// Returns:
//   - DetectionSet: The surviving detections.
func FilterByConfidence(set DetectionSet, threshold float32) DetectionSet {
	filtered := make(DetectionSet, 0, len(set)/8)
	for _, d := range set {
		if d.Confidence > threshold {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
