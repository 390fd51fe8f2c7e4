package postprocess

import (
	"github.com/pkg/errors"
)

// Policy selects how the suppression engine decides that two detections are the same pill.
type Policy int

const (
	// PolicyNMS is confidence-ranked greedy non-maximum suppression. Same pill means
	// overlapping boxes. This is the recommended policy.
	PolicyNMS Policy = iota
	// PolicyCoordMerge averages boxes that are coordinate-similar or overlapping.
	// Order dependent; kept for models tuned against it.
	PolicyCoordMerge
	// PolicyCenterDedup keeps detections whose centers are far apart.
	PolicyCenterDedup
)

var policyNames = map[Policy]string{
	PolicyNMS:         "nms",
	PolicyCoordMerge:  "coord_merge",
	PolicyCenterDedup: "center_dedup",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return "unknown"
}

// Legacy reports whether the policy is kept only for compatibility with older models.
func (p Policy) Legacy() bool {
	return p == PolicyCoordMerge
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, errors.Wrapf(ErrUnknownPolicy, "%d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	policy, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = policy
	return nil
}

// ParsePolicy returns the policy with the given name ("nms", "coord_merge", "center_dedup").
func ParsePolicy(name string) (Policy, error) {
	for policy, n := range policyNames {
		if n == name {
			return policy, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownPolicy, "%q", name)
}

// CenterSpace is the coordinate space in which center distances are measured.
type CenterSpace int

const (
	// CenterSpacePixels measures distances in model-input pixels.
	CenterSpacePixels CenterSpace = iota
	// CenterSpaceNormalized divides coordinates by the model input size first.
	CenterSpaceNormalized
)

var centerSpaceNames = map[CenterSpace]string{
	CenterSpacePixels:     "pixels",
	CenterSpaceNormalized: "normalized",
}

func (c CenterSpace) String() string {
	if name, ok := centerSpaceNames[c]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (c CenterSpace) MarshalText() ([]byte, error) {
	if _, ok := centerSpaceNames[c]; !ok {
		return nil, errors.Errorf("unknown center space %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CenterSpace) UnmarshalText(text []byte) error {
	for space, name := range centerSpaceNames {
		if name == string(text) {
			*c = space
			return nil
		}
	}
	return errors.Errorf("unknown center space %q", string(text))
}

// SuppressionConfig defines the parameters of the suppression engine.
type SuppressionConfig struct {
	// Policy selects the equivalence rule.
	Policy Policy
	// IoUThreshold is the overlap above which two boxes are the same pill (nms, coord_merge).
	IoUThreshold float32
	// MinCenterDistance is the center distance at or below which two detections are
	// the same pill (center_dedup), measured in CenterSpace.
	MinCenterDistance float32
	// CenterSpace is the space MinCenterDistance is expressed in.
	CenterSpace CenterSpace
	// InputSize is the model input edge length in pixels, used by CenterSpaceNormalized.
	InputSize int
	// MergeTolerance is the per-coordinate similarity tolerance (coord_merge).
	MergeTolerance float32
}

// DefaultSuppressionConfig returns the recommended NMS configuration for 640x640 models.
func DefaultSuppressionConfig() SuppressionConfig {
	return SuppressionConfig{
		Policy:            PolicyNMS,
		IoUThreshold:      0.5,
		MinCenterDistance: DefaultMinCenterDistance,
		CenterSpace:       CenterSpacePixels,
		InputSize:         640,
		MergeTolerance:    DefaultMergeTolerance,
	}
}

// CenterScale returns the factor that maps pixel centers into CenterSpace.
func (c SuppressionConfig) CenterScale() float32 {
	if c.CenterSpace == CenterSpaceNormalized && c.InputSize > 0 {
		return 1 / float32(c.InputSize)
	}
	return 1
}

// Suppress collapses detections that refer to the same physical pill, using the
// policy selected in config.
//
// Arguments:
//   - set: The filtered detections, in decoder row order.
//   - config: The suppression parameters.
//
// Returns:
//   - DetectionSet: The final detections, no two of them duplicates under the policy.
//   - error: ErrUnknownPolicy if config.Policy is not a known policy.
func Suppress(set DetectionSet, config SuppressionConfig) (DetectionSet, error) {
	switch config.Policy {
	case PolicyNMS:
		return ApplyGreedyNMS(set, config.IoUThreshold), nil
	case PolicyCoordMerge:
		return ApplyCoordMerge(set, config.MergeTolerance, config.IoUThreshold), nil
	case PolicyCenterDedup:
		return ApplyCenterDedup(set, config.MinCenterDistance, config.CenterScale()), nil
	default:
		return nil, errors.Wrapf(ErrUnknownPolicy, "%d", int(config.Policy))
	}
}
