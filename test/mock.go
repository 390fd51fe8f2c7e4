// Package test - Deterministic pill fixtures for detector tests.
package test

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/disintegration/imaging"

	"github.com/nvr-ai/go-pillcheck/images"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
)

// BackgroundConfidence is the upper bound of the objectness given to background rows.
// It stays below every confidence threshold the presets ship with.
const BackgroundConfidence = 0.3

// Pill describes one pill the generated tensor should contain.
type Pill struct {
	// Box is where the pill is, in model-input pixels.
	Box images.Rect
	// Confidence is the objectness of the pill's primary row.
	Confidence float32
	// Class is the index of the winning class score. Ignored for box-only layouts.
	Class int
}

// MockTensorGenerator creates deterministic raw detector output for idempotent testing.
//
// Every generated tensor has the generator's row count. Rows that do not belong to a
// pill are low-confidence background noise, so the confidence filter is exercised on
// every run.
//
// @example
// gen := NewMockTensorGenerator(postprocess.Layout{NumClasses: 11}, 2000)
// raw := gen.Generate([]Pill{{Box: images.Rect{X1: 100, Y1: 100, X2: 160, Y2: 160}, Confidence: 0.9}}, 2)
type MockTensorGenerator struct {
	layout postprocess.Layout
	rows   int
	seed   int64
	jitter float32
}

// NewMockTensorGenerator creates a new tensor generator.
//
// Arguments:
// - layout: The row layout of the generated tensors.
// - rows: The number of rows of every generated tensor.
//
// Returns:
// - A configured MockTensorGenerator instance.
func NewMockTensorGenerator(layout postprocess.Layout, rows int) *MockTensorGenerator {
	return &MockTensorGenerator{
		layout: layout,
		rows:   rows,
		seed:   42, // Deterministic seed for reproducibility.
		jitter: 1.5,
	}
}

// Rows returns the number of rows of every generated tensor.
func (g *MockTensorGenerator) Rows() int {
	return g.rows
}

// Generate builds a flat raw output tensor.
//
// Each pill gets one primary row with its exact box and confidence, followed by
// `duplicates` rows whose boxes are shifted by up to the jitter and whose confidence
// drops by 0.05 per duplicate. Pill rows start a third of the way into the tensor so
// that background rows come before and after them.
//
// Arguments:
// - pills: The pills to place.
// - duplicates: The number of jittered duplicate rows per pill.
//
// Returns:
// - The tensor, Rows() * layout.RowWidth() floats.
//
// @example
// raw := gen.Generate(pills, 3)
// result, err := detector.Process(raw)
func (g *MockTensorGenerator) Generate(pills []Pill, duplicates int) []float32 {
	rng := rand.New(rand.NewSource(g.seed))
	width := g.layout.RowWidth()
	out := make([]float32, g.rows*width)

	for r := 0; r < g.rows; r++ {
		x := rng.Float32() * 600
		y := rng.Float32() * 600
		box := images.Rect{X1: x, Y1: y, X2: x + 10 + rng.Float32()*30, Y2: y + 10 + rng.Float32()*30}
		scores := make([]float32, g.layout.NumClasses)
		for c := range scores {
			scores[c] = rng.Float32() * 0.5
		}
		g.writeRow(out, r, box, rng.Float32()*BackgroundConfidence, scores)
	}

	row := g.rows / 3
	for _, pill := range pills {
		for k := 0; k <= duplicates && row < g.rows; k++ {
			box := pill.Box
			confidence := pill.Confidence
			if k > 0 {
				dx := (rng.Float32()*2 - 1) * g.jitter
				dy := (rng.Float32()*2 - 1) * g.jitter
				box = images.Rect{X1: box.X1 + dx, Y1: box.Y1 + dy, X2: box.X2 + dx, Y2: box.Y2 + dy}
				confidence -= 0.05 * float32(k)
			}
			g.writeRow(out, row, box, confidence, g.classScores(pill.Class))
			row++
		}
	}
	return out
}

// GenerateRows is Generate split into rows, for DecodeRows.
func (g *MockTensorGenerator) GenerateRows(pills []Pill, duplicates int) [][]float32 {
	flat := g.Generate(pills, duplicates)
	width := g.layout.RowWidth()
	rows := make([][]float32, g.rows)
	for r := range rows {
		rows[r] = flat[r*width : (r+1)*width]
	}
	return rows
}

func (g *MockTensorGenerator) classScores(class int) []float32 {
	scores := make([]float32, g.layout.NumClasses)
	for c := range scores {
		scores[c] = 0.05
	}
	if class >= 0 && class < len(scores) {
		scores[class] = 0.9
	}
	return scores
}

func (g *MockTensorGenerator) writeRow(out []float32, row int, box images.Rect, confidence float32, scores []float32) {
	dst := out[row*g.layout.RowWidth():]
	switch g.layout.BoxFormat {
	case postprocess.BoxFormatCXCYWH:
		center := box.Center()
		dst[0], dst[1], dst[2], dst[3] = center.X, center.Y, box.Width(), box.Height()
	default:
		dst[0], dst[1], dst[2], dst[3] = box.X1, box.Y1, box.X2, box.Y2
	}
	dst[postprocess.ConfidenceIndex] = confidence
	copy(dst[postprocess.ClassScoresOffset:], scores)
}

// MockFrameGenerator creates deterministic pill tray frames.
//
// @example
// gen := NewMockFrameGenerator(640, 640)
// frame := gen.GeneratePillFrame(boxes)
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with specified dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A configured MockFrameGenerator instance.
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{
		width:  width,
		height: height,
	}
}

// GenerateStaticFrame creates an empty tray: a uniform mid-gray frame.
func (g *MockFrameGenerator) GenerateStaticFrame() *image.NRGBA {
	return imaging.New(g.width, g.height, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
}

// GeneratePillFrame creates a tray with a white elliptical pill inscribed in each box.
//
// Arguments:
// - boxes: The pill boxes, in frame pixels.
//
// Returns:
// - The frame.
func (g *MockFrameGenerator) GeneratePillFrame(boxes []images.Rect) *image.NRGBA {
	frame := g.GenerateStaticFrame()
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	for _, box := range boxes {
		center := box.Center()
		rx := box.Width() / 2
		ry := box.Height() / 2
		if rx == 0 || ry == 0 {
			continue
		}
		for y := int(box.Y1); y < int(box.Y2); y++ {
			for x := int(box.X1); x < int(box.X2); x++ {
				nx := (float32(x) + 0.5 - center.X) / rx
				ny := (float32(y) + 0.5 - center.Y) / ry
				if nx*nx+ny*ny <= 1 {
					frame.SetNRGBA(x, y, white)
				}
			}
		}
	}
	return frame
}
