// Package images - Image definition for processing utilities.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Image represents an image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// FormatFromPath returns the image format named by a file extension.
func FormatFromPath(path string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".webp":
		return FormatWebP, nil
	default:
		return "", errors.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
}

// NewImage reads an encoded image file and records its dimensions.
//
// Arguments:
//   - path: A .jpg, .jpeg, .png or .webp file.
//
// Returns:
//   - *Image: The encoded bytes with their format and size.
//   - error: An error if the file cannot be read or is not a supported image.
func NewImage(path string) (*Image, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image")
	}

	img := &Image{Format: format, Data: data}
	decoded, err := img.Decode()
	if err != nil {
		return nil, err
	}
	img.Width = decoded.Bounds().Dx()
	img.Height = decoded.Bounds().Dy()
	return img, nil
}

// Decode decodes the image bytes. JPEG and PNG are decoded through imaging, which
// applies the EXIF orientation so pills photographed by phones come out upright.
func (i *Image) Decode() (image.Image, error) {
	if len(i.Data) == 0 {
		return nil, errors.New("empty image data")
	}

	var (
		img image.Image
		err error
	)
	switch i.Format {
	case FormatJPEG, FormatPNG:
		img, err = imaging.Decode(bytes.NewReader(i.Data), imaging.AutoOrientation(true))
	case FormatWebP:
		img, err = webp.Decode(bytes.NewReader(i.Data))
	default:
		return nil, errors.Errorf("unsupported image format: %q", i.Format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s image", i.Format)
	}
	return img, nil
}

// Encode encodes img in the given format.
func Encode(img image.Image, format ImageFormat) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: true})
	default:
		return nil, errors.Errorf("unsupported image format: %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s image", format)
	}
	return buf.Bytes(), nil
}
