package postprocess

import (
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-pillcheck/images"
)

const (
	// BoxValues is the number of box coordinates at the start of every row.
	BoxValues = 4
	// ConfidenceIndex is the position of the objectness confidence in every row.
	ConfidenceIndex = 4
	// ClassScoresOffset is the position of the first class score in every row.
	ClassScoresOffset = 5
)

// BoxFormat describes how the four box values of a row are encoded.
type BoxFormat int

const (
	// BoxFormatXYXY rows hold the corners (x1, y1, x2, y2).
	BoxFormatXYXY BoxFormat = iota
	// BoxFormatCXCYWH rows hold the center and size (cx, cy, w, h).
	BoxFormatCXCYWH
)

var boxFormatNames = map[BoxFormat]string{
	BoxFormatXYXY:   "xyxy",
	BoxFormatCXCYWH: "cxcywh",
}

func (f BoxFormat) String() string {
	if name, ok := boxFormatNames[f]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (f BoxFormat) MarshalText() ([]byte, error) {
	if _, ok := boxFormatNames[f]; !ok {
		return nil, errors.Wrapf(ErrUnknownBoxFormat, "%d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *BoxFormat) UnmarshalText(text []byte) error {
	for format, name := range boxFormatNames {
		if name == string(text) {
			*f = format
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownBoxFormat, "%q", string(text))
}

// Layout describes the row layout of a raw output tensor: four box values, one
// confidence, then NumClasses class scores.
type Layout struct {
	// NumClasses is the number of class scores per row (C). Zero for box-only models.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// BoxFormat is the encoding of the four box values.
	BoxFormat BoxFormat `json:"box_format" yaml:"box_format"`
}

// RowWidth returns the number of floats in one row: 4 + 1 + C.
func (l Layout) RowWidth() int {
	return BoxValues + 1 + l.NumClasses
}

// Decode reinterprets a flat, row-major raw output buffer as one Detection per row.
//
// No filtering happens here: N rows always produce N detections, in row order. An
// empty buffer yields an empty set.
//
// Arguments:
//   - raw: The model output, N rows of layout.RowWidth() floats each.
//   - layout: The row layout the loaded model produces.
//
// Returns:
//   - DetectionSet: One detection per row.
//   - error: A *MalformedOutputError if len(raw) is not a whole number of rows.
//
// @example
//
//	raw := []float32{0, 0, 100, 100, 0.9, 0.1, 0.9}
//	set, err := Decode(raw, Layout{NumClasses: 2})
func Decode(raw []float32, layout Layout) (DetectionSet, error) {
	width := layout.RowWidth()
	if len(raw)%width != 0 {
		return nil, &MalformedOutputError{
			Row:      -1,
			Width:    len(raw) % width,
			Expected: width,
			Length:   len(raw),
		}
	}

	n := len(raw) / width
	set := make(DetectionSet, 0, n)
	for i := 0; i < n; i++ {
		set = append(set, decodeRow(raw[i*width:(i+1)*width], i, layout))
	}
	return set, nil
}

// DecodeRows is Decode for a tensor already split into rows. Every row must be
// exactly layout.RowWidth() wide.
func DecodeRows(rows [][]float32, layout Layout) (DetectionSet, error) {
	width := layout.RowWidth()
	set := make(DetectionSet, 0, len(rows))
	for i, row := range rows {
		if len(row) != width {
			return nil, &MalformedOutputError{
				Row:      i,
				Width:    len(row),
				Expected: width,
				Length:   len(row),
			}
		}
		set = append(set, decodeRow(row, i, layout))
	}
	return set, nil
}

// DecodeFloat16 decodes a half-precision raw output buffer, as produced by FP16
// exports of the pill models.
func DecodeFloat16(raw []uint16, layout Layout) (DetectionSet, error) {
	if len(raw)%layout.RowWidth() != 0 {
		return nil, &MalformedOutputError{
			Row:      -1,
			Width:    len(raw) % layout.RowWidth(),
			Expected: layout.RowWidth(),
			Length:   len(raw),
		}
	}

	buf := make([]float32, len(raw))
	for i, bits := range raw {
		buf[i] = float16.Frombits(bits).Float32()
	}
	return Decode(buf, layout)
}

// DecodeTensor decodes a model output tensor shaped [1][N][W] or [N][W].
//
// Arguments:
//   - t: The output tensor. Float32 and float64 backings are accepted.
//   - layout: The row layout the loaded model produces.
//
// Returns:
//   - DetectionSet: One detection per row.
//   - error: A *MalformedOutputError if the row width W does not match the layout, or
//     an error if the tensor rank or data type is unsupported.
func DecodeTensor(t tensor.Tensor, layout Layout) (DetectionSet, error) {
	if v, ok := t.(tensor.View); ok && v.IsView() {
		t = v.Materialize()
	}

	shape := t.Shape()
	var rows, width int
	switch {
	case len(shape) == 3 && shape[0] == 1:
		rows, width = shape[1], shape[2]
	case len(shape) == 2:
		rows, width = shape[0], shape[1]
	default:
		return nil, errors.Errorf("unsupported output tensor shape %v, want [1 N W] or [N W]", shape)
	}

	if width != layout.RowWidth() {
		return nil, &MalformedOutputError{
			Row:      0,
			Width:    width,
			Expected: layout.RowWidth(),
			Length:   rows * width,
		}
	}

	switch data := t.Data().(type) {
	case []float32:
		return Decode(data, layout)
	case []float64:
		buf := make([]float32, len(data))
		for i, v := range data {
			buf[i] = float32(v)
		}
		return Decode(buf, layout)
	default:
		return nil, errors.Errorf("unsupported output tensor dtype %v", t.Dtype())
	}
}

// decodeRow builds one Detection from a row of exactly layout.RowWidth() values.
func decodeRow(row []float32, index int, layout Layout) Detection {
	var box images.Rect
	switch layout.BoxFormat {
	case BoxFormatCXCYWH:
		cx, cy, w, h := row[0], row[1], row[2], row[3]
		box = images.Rect{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}
	default:
		box = images.Rect{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}
	}

	var scores []float32
	if layout.NumClasses > 0 {
		scores = make([]float32, layout.NumClasses)
		copy(scores, row[ClassScoresOffset:])
	}

	return Detection{
		Box:         box.Canon(),
		Confidence:  row[ConfidenceIndex],
		ClassScores: scores,
		Row:         index,
	}
}
