// Package images - Geometry and image utilities for pill detections.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Point is a location in model-input pixel space.
type Point struct {
	X, Y float32
}

// Distance returns the Euclidean distance between p and o.
func (p Point) Distance(o Point) float32 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math32.Sqrt(dx*dx + dy*dy)
}

// Scale returns p with both coordinates multiplied by s.
func (p Point) Scale(s float32) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Rect is a bounding box in model-input pixel space (0-640 for the pill models).
//
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner. A Rect with
// X1 == X2 or Y1 == Y2 is degenerate: it is a valid value, but it never overlaps
// anything.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box, never negative.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the box, never negative.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the box in square pixels. Degenerate boxes have zero area.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Empty reports whether the box has zero area.
func (r Rect) Empty() bool {
	return r.Area() == 0
}

// Center returns the midpoint ((x1+x2)/2, (y1+y2)/2).
func (r Rect) Center() Point {
	return Point{
		X: (r.X1 + r.X2) / 2,
		Y: (r.Y1 + r.Y2) / 2,
	}
}

// Canon returns the canonical version of r, with corners swapped where needed so
// that X1 <= X2 and Y1 <= Y2.
func (r Rect) Canon() Rect {
	if r.X2 < r.X1 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y2 < r.Y1 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// IoU returns the Intersection over Union of r and o. See CalculateIoU.
func (r Rect) IoU(o Rect) float32 {
	return CalculateIoU(r, o)
}

// Similar reports whether every corner coordinate of o is within tolerance of the
// matching coordinate of r (strictly less than tolerance).
func (r Rect) Similar(o Rect, tolerance float32) bool {
	return math32.Abs(r.X1-o.X1) < tolerance &&
		math32.Abs(r.Y1-o.Y1) < tolerance &&
		math32.Abs(r.X2-o.X2) < tolerance &&
		math32.Abs(r.Y2-o.Y2) < tolerance
}

// Average returns the coordinate-wise mean of r and o.
func (r Rect) Average(o Rect) Rect {
	return Rect{
		X1: (r.X1 + o.X1) / 2,
		Y1: (r.Y1 + o.Y1) / 2,
		X2: (r.X2 + o.X2) / 2,
		Y2: (r.Y2 + o.Y2) / 2,
	}
}

// ToRectangle converts the box to an integer image.Rectangle, for drawing.
//
// This loses the fractional part of each coordinate, which is fine for
// annotation but must never be used for overlap decisions.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2)).Canon()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU measures how much two boxes overlap, as a number between 0.0 and 1.0.
//
// IoU is formally defined by the formula:
//
//	IoU = Area of Intersection / Area of Union
//
//	- A value of 1.0 means the boxes are identical.
//	- A value of 0.0 means the boxes don't overlap at all.
//
// The intersection rectangle starts at the maximum of the two top-left corners and
// ends at the minimum of the two bottom-right corners. When either side of it is zero
// or negative the boxes do not overlap and the intersection area is clamped to 0.
//
// The union area follows the Principle of Inclusion-Exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// If the union is zero (both boxes degenerate) the IoU is defined as 0, so degenerate
// boxes never match anything, including themselves.
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	iou := CalculateIoU(a, b) // intersection 25, union 175: 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	interW := math32.Max(0, math32.Min(r.X2, o.X2)-math32.Max(r.X1, o.X1))
	interH := math32.Max(0, math32.Min(r.Y2, o.Y2)-math32.Max(r.Y1, o.Y1))
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0
	}

	return interArea / unionArea
}
