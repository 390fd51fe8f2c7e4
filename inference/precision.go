package inference

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Precision represents the element type of a recorded tensor.
type Precision string

// Precision constants are the supported precisions for recorded tensors.
const (
	PrecisionFP16 Precision = "FP16"
	PrecisionFP32 Precision = "FP32"
)

// ElementSize returns the size in bytes of one element.
func (p Precision) ElementSize() int {
	if p == PrecisionFP16 {
		return 2
	}
	return 4
}

// PrecisionFromPath picks the precision of a tensor file from its extension: .f16 is
// half precision, .f32 and .bin are single precision.
func PrecisionFromPath(path string) (Precision, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".f16":
		return PrecisionFP16, nil
	case ".f32", ".bin":
		return PrecisionFP32, nil
	default:
		return "", fmt.Errorf("unknown tensor file extension %q", ext)
	}
}
