package postprocess

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownPolicy is returned when a suppression policy is not one of the known values.
	ErrUnknownPolicy = errors.New("unknown suppression policy")
	// ErrUnknownMode is returned when a result mode is not one of the known values.
	ErrUnknownMode = errors.New("unknown result mode")
	// ErrUnknownBoxFormat is returned when a box format is not one of the known values.
	ErrUnknownBoxFormat = errors.New("unknown box format")
)

// MalformedOutputError reports a raw output tensor whose row width does not match
// the configured box/confidence/class-score layout.
type MalformedOutputError struct {
	// Row is the offending row, or -1 when the flat buffer length itself is wrong.
	Row int
	// Width is the width that was found.
	Width int
	// Expected is the row width the layout requires (4 + 1 + C).
	Expected int
	// Length is the total number of floats that were supplied.
	Length int
}

func (e *MalformedOutputError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("malformed model output: %d floats is not a whole number of %d-wide rows",
			e.Length, e.Expected)
	}
	return fmt.Sprintf("malformed model output: row %d has %d values, expected %d",
		e.Row, e.Width, e.Expected)
}

// IsMalformedOutput reports whether err, or any error it wraps, is a MalformedOutputError.
func IsMalformedOutput(err error) bool {
	var target *MalformedOutputError
	return errors.As(err, &target)
}
