package postprocess

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/nvr-ai/go-pillcheck/images"
)

// NoPillDetected is the user-facing text of an identification that found nothing.
const NoPillDetected = "no pill detected"

// Mode selects what the result interpreter reduces the final detections to.
type Mode int

const (
	// ModeCount reports how many pills were found.
	ModeCount Mode = iota
	// ModeIdentify reports the label of the most confident pill.
	ModeIdentify
)

var modeNames = map[Mode]string{
	ModeCount:    "count",
	ModeIdentify: "identify",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, errors.Wrapf(ErrUnknownMode, "%d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode returns the mode with the given name ("count", "identify").
func ParseMode(name string) (Mode, error) {
	for mode, n := range modeNames {
		if n == name {
			return mode, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownMode, "%q", name)
}

// Labeler maps a class index to a pill label. Indexes it does not know must map to a
// fixed "unknown" label rather than fail.
type Labeler interface {
	Label(index int) string
}

// Identification is the single best pill found in IDENTIFY mode.
type Identification struct {
	// Label is the pill identity from the class table.
	Label string `json:"label"`
	// ClassIndex is argmax of the detection's class scores, or -1 if it has none.
	ClassIndex int `json:"class_index"`
	// Confidence is the detection's objectness confidence.
	Confidence float32 `json:"confidence"`
	// Box is where the pill was found.
	Box images.Rect `json:"box"`
}

// Outcome is what the pipeline reports to its caller.
type Outcome struct {
	// Mode is the mode that produced the outcome.
	Mode Mode `json:"mode"`
	// Count is the number of final detections. Set in both modes.
	Count int `json:"count"`
	// Found is false when the final set was empty.
	Found bool `json:"found"`
	// Identification is set in ModeIdentify when Found is true.
	Identification *Identification `json:"identification,omitempty"`
}

func (o Outcome) String() string {
	switch o.Mode {
	case ModeIdentify:
		if !o.Found || o.Identification == nil {
			return NoPillDetected
		}
		return fmt.Sprintf("pill %s (confidence %.3f)", o.Identification.Label, o.Identification.Confidence)
	default:
		return fmt.Sprintf("%d pills", o.Count)
	}
}

// Count reduces the final set to the number of pills in it.
func Count(set DetectionSet) Outcome {
	return Outcome{
		Mode:  ModeCount,
		Count: len(set),
		Found: len(set) > 0,
	}
}

// Identify reduces the final set to the label of its most confident detection.
//
// The most confident detection wins, the first one in set order on ties. Its class is
// the argmax of its own class scores, the lowest index on ties. An empty set is a
// normal "nothing found" outcome.
//
// Arguments:
//   - set: The final detections.
//   - labels: The class table used to name the winning class.
//
// Returns:
//   - Outcome: Found=false for an empty set, otherwise the identification.
func Identify(set DetectionSet, labels Labeler) Outcome {
	outcome := Outcome{Mode: ModeIdentify, Count: len(set)}
	if len(set) == 0 {
		return outcome
	}

	best := 0
	for i := 1; i < len(set); i++ {
		if set[i].Confidence > set[best].Confidence {
			best = i
		}
	}
	winner := set[best]

	classIndex := ArgMax(winner.ClassScores)
	outcome.Found = true
	outcome.Identification = &Identification{
		Label:      labels.Label(classIndex),
		ClassIndex: classIndex,
		Confidence: winner.Confidence,
		Box:        winner.Box,
	}
	return outcome
}

// Interpret dispatches to Count or Identify.
func Interpret(set DetectionSet, mode Mode, labels Labeler) (Outcome, error) {
	switch mode {
	case ModeCount:
		return Count(set), nil
	case ModeIdentify:
		return Identify(set, labels), nil
	default:
		return Outcome{}, errors.Wrapf(ErrUnknownMode, "%d", int(mode))
	}
}

// ArgMax returns the index of the largest score, the lowest index on ties, or -1 for
// an empty slice.
func ArgMax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	wide := make([]float64, len(scores))
	for i, s := range scores {
		wide[i] = float64(s)
	}
	return floats.MaxIdx(wide)
}
