// Package annotate - Draws pill detections onto frames with OpenCV.
package annotate

import (
	"crypto/md5"
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-pillcheck/images"
)

// Box is one labeled box to draw on a frame.
type Box struct {
	Rect       images.Rect
	Label      string
	Confidence float32
}

// Text returns the caption drawn above the box.
func (b Box) Text() string {
	if b.Label == "" {
		return fmt.Sprintf("%.2f", b.Confidence)
	}
	return fmt.Sprintf("%s %.2f", b.Label, b.Confidence)
}

// Color is the box and caption color.
var Color = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Draw draws every box on img.
//
// Arguments:
//   - img: The Mat to draw on, in place.
//   - boxes: The boxes, in img pixels.
func Draw(img *gocv.Mat, boxes []Box) {
	for _, b := range boxes {
		rect := b.Rect.Canon().ToRectangle()
		gocv.Rectangle(img, rect, Color, 2)

		origin := image.Pt(rect.Min.X, max(rect.Min.Y-4, 12))
		gocv.PutText(img, b.Text(), origin, gocv.FontHersheyPlain, 1.0, Color, 1)
	}
}

// WriteImage converts img to a Mat, draws the boxes and writes the result to path.
// The file format follows the path extension.
func WriteImage(img image.Image, boxes []Box, path string) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "failed to convert image")
	}
	defer mat.Close()

	Draw(&mat, boxes)
	if ok := gocv.IMWrite(path, mat); !ok {
		return errors.Errorf("failed to write %s", path)
	}
	return nil
}

// MatChecksum generates a deterministic checksum for a Mat.
//
// Arguments:
// - mat: The Mat to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string, "empty" for an empty Mat.
// - error: An error if the Mat's pixels cannot be read as bytes.
func MatChecksum(mat gocv.Mat) (string, error) {
	if mat.Empty() {
		return "empty", nil
	}

	data, err := mat.DataPtrUint8()
	if err != nil {
		return "", errors.Wrap(err, "failed to read mat data")
	}
	hash := md5.New()
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
