// Package preprocess - Encodes pill photos into model input tensors.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-pillcheck/images"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

var (
	// ErrSizeMismatch is returned when a pixel buffer does not match the model input size.
	ErrSizeMismatch = errors.New("pixel buffer does not match the model input size")
	// ErrShortBuffer is returned when a buffer holds fewer values than its dimensions need.
	ErrShortBuffer = errors.New("buffer length does not match its dimensions")
)

// PixelChannels is the number of interleaved channels in a PixelBuffer.
const PixelChannels = 3

// PixelBuffer is an 8-bit RGB image, row-major with interleaved channels.
type PixelBuffer struct {
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
	// Pix holds R, G, B for each pixel, Width*Height*3 bytes.
	Pix []uint8 `json:"-" yaml:"-"`
}

// NewPixelBuffer allocates a black buffer of the given size.
func NewPixelBuffer(width, height int) *PixelBuffer {
	return &PixelBuffer{Width: width, Height: height, Pix: make([]uint8, width*height*PixelChannels)}
}

// PixelBufferFromImage copies any image into a PixelBuffer. Alpha is dropped.
func PixelBufferFromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	buf := NewPixelBuffer(bounds.Dx(), bounds.Dy())

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			buf.Pix[i] = c.R
			buf.Pix[i+1] = c.G
			buf.Pix[i+2] = c.B
			i += PixelChannels
		}
	}
	return buf
}

// At returns the color of the pixel at (x, y).
func (b *PixelBuffer) At(x, y int) color.RGBA {
	i := (y*b.Width + x) * PixelChannels
	return color.RGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: 255}
}

// Set writes the pixel at (x, y).
func (b *PixelBuffer) Set(x, y int, c color.RGBA) {
	i := (y*b.Width + x) * PixelChannels
	b.Pix[i], b.Pix[i+1], b.Pix[i+2] = c.R, c.G, c.B
}

// ToImage converts the buffer into an opaque *image.RGBA.
func (b *PixelBuffer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			img.SetRGBA(x, y, b.At(x, y))
		}
	}
	return img
}

func (b *PixelBuffer) validate() error {
	if b == nil {
		return errors.New("pixel buffer is nil")
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid pixel buffer dimensions: %dx%d", b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height*PixelChannels {
		return errors.Wrapf(ErrShortBuffer, "%dx%d needs %d bytes, got %d",
			b.Width, b.Height, b.Width*b.Height*PixelChannels, len(b.Pix))
	}
	return nil
}

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string `json:"name" yaml:"name"`
	// InputWidth is the expected width of the model input.
	InputWidth int `json:"input_width" yaml:"input_width"`
	// InputHeight is the expected height of the model input.
	InputHeight int `json:"input_height" yaml:"input_height"`
	// InputChannels is the number of channels (1 for grayscale, 3 for RGB).
	InputChannels int `json:"input_channels" yaml:"input_channels"`
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType `json:"normalization" yaml:"normalization"`
	// MeanValues for standardization (if NormalizationType is Standardize).
	MeanValues []float32 `json:"mean_values" yaml:"mean_values"`
	// StdValues for standardization (if NormalizationType is Standardize).
	StdValues []float32 `json:"std_values" yaml:"std_values"`
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder `json:"channel_order" yaml:"channel_order"`
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode `json:"color_mode" yaml:"color_mode"`
	// Filter is the resampling filter used when an image is scaled to the input size.
	Filter Filter `json:"filter" yaml:"filter"`
	// KeepAspectRatio if true, maintains aspect ratio with letterboxing.
	KeepAspectRatio bool `json:"keep_aspect_ratio" yaml:"keep_aspect_ratio"`
	// LetterboxColor is the color used for letterbox padding (default black).
	LetterboxColor color.Color `json:"-" yaml:"-"`
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderHWC is Height-Width-Channel ordering (TFLite and the pill models).
	ChannelOrderHWC ChannelOrder = iota
	// ChannelOrderCHW is Channel-Height-Width ordering.
	ChannelOrderCHW
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale
)

// Filter is a resampling filter.
type Filter int

const (
	// FilterNearest picks the nearest source pixel, like an unfiltered bitmap scale.
	FilterNearest Filter = iota
	// FilterLanczos is Lanczos-3 resampling.
	FilterLanczos
)

// PreprocessingResult contains the encoded tensor and how the source image was mapped
// into the model input.
type PreprocessingResult struct {
	// Data is the encoded float32 tensor data.
	Data []float32
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// ScaleX is the horizontal scaling factor applied.
	ScaleX float64
	// ScaleY is the vertical scaling factor applied.
	ScaleY float64
	// PadLeft is the left padding applied for letterboxing.
	PadLeft int
	// PadTop is the top padding applied for letterboxing.
	PadTop int
	// Shape contains the tensor shape [C, H, W] or [H, W, C].
	Shape []int
}

// ToOriginal maps a box in model input pixels back onto the source image.
func (r *PreprocessingResult) ToOriginal(box images.Rect) images.Rect {
	sx, sy := float32(r.ScaleX), float32(r.ScaleY)
	if sx == 0 || sy == 0 {
		return box
	}
	px, py := float32(r.PadLeft), float32(r.PadTop)
	return images.Rect{
		X1: (box.X1 - px) / sx,
		Y1: (box.Y1 - py) / sy,
		X2: (box.X2 - px) / sx,
		Y2: (box.Y2 - py) / sy,
	}
}

// Preprocessor encodes images for a model.
//
// A Preprocessor holds only its configuration and is safe for concurrent use.
type Preprocessor struct {
	config *ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
//
// Returns:
// - A configured Preprocessor instance.
//
// @example
//
//	preprocessor := NewPreprocessor(GetPillConfig(640))
//	tensor, err := preprocessor.Encode(buf)
func NewPreprocessor(config *ModelConfig) *Preprocessor {
	if config.LetterboxColor == nil {
		config.LetterboxColor = color.Black
	}
	if config.InputChannels == 0 {
		config.InputChannels = PixelChannels
	}
	return &Preprocessor{config: config}
}

// Config returns the preprocessor configuration.
func (p *Preprocessor) Config() *ModelConfig {
	return p.config
}

// TensorLen returns the number of floats in one encoded input.
func (p *Preprocessor) TensorLen() int {
	return p.config.InputWidth * p.config.InputHeight * p.config.InputChannels
}

// Shape returns the encoded tensor shape without the batch dimension.
func (p *Preprocessor) Shape() []int {
	if p.config.ChannelOrder == ChannelOrderCHW {
		return []int{p.config.InputChannels, p.config.InputHeight, p.config.InputWidth}
	}
	return []int{p.config.InputHeight, p.config.InputWidth, p.config.InputChannels}
}

// Encode converts a pixel buffer of exactly the model input size into a float tensor.
//
// For the pill config the output holds, pixel by pixel, R/255, G/255, B/255.
//
// Arguments:
// - buf: The pixel buffer.
//
// Returns:
// - The encoded tensor, InputWidth*InputHeight*InputChannels floats.
// - ErrShortBuffer when Pix does not match the buffer dimensions, ErrSizeMismatch when
//   the dimensions do not match the model input.
//
// @example
//
//	tensor, err := preprocessor.Encode(preprocess.NewPixelBuffer(640, 640))
func (p *Preprocessor) Encode(buf *PixelBuffer) ([]float32, error) {
	if err := buf.validate(); err != nil {
		return nil, err
	}
	if buf.Width != p.config.InputWidth || buf.Height != p.config.InputHeight {
		return nil, errors.Wrapf(ErrSizeMismatch, "got %dx%d, model takes %dx%d",
			buf.Width, buf.Height, p.config.InputWidth, p.config.InputHeight)
	}

	tensor := p.bufferToTensor(buf)
	p.normalize(tensor)
	return tensor, nil
}

// EncodeImage scales an image of any size to the model input and encodes it.
//
// Arguments:
// - img: The source image.
//
// Returns:
// - PreprocessingResult containing the tensor and the source-to-input mapping.
// - error if encoding fails.
//
// @example
//
//	result, err := preprocessor.EncodeImage(photo)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tensor := result.Data
func (p *Preprocessor) EncodeImage(img image.Image) (*PreprocessingResult, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	resized, scaleX, scaleY, padLeft, padTop := p.resizeImage(img)

	tensor, err := p.Encode(PixelBufferFromImage(resized))
	if err != nil {
		return nil, errors.Wrap(err, "encoding failed")
	}

	return &PreprocessingResult{
		Data:           tensor,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		ScaleX:         scaleX,
		ScaleY:         scaleY,
		PadLeft:        padLeft,
		PadTop:         padTop,
		Shape:          p.Shape(),
	}, nil
}

// Decode is the inverse of Encode: it turns a tensor back into 8-bit pixels, rounding
// to the nearest value. Grayscale tensors decode to equal R, G and B.
//
// Arguments:
// - tensor: An encoded tensor of TensorLen floats.
//
// Returns:
// - The decoded pixel buffer.
// - ErrShortBuffer if the tensor length does not match the model input.
func (p *Preprocessor) Decode(tensor []float32) (*PixelBuffer, error) {
	if len(tensor) != p.TensorLen() {
		return nil, errors.Wrapf(ErrShortBuffer, "tensor needs %d floats, got %d", p.TensorLen(), len(tensor))
	}

	width, height, channels := p.config.InputWidth, p.config.InputHeight, p.config.InputChannels
	buf := NewPixelBuffer(width, height)
	plane := width * height

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var ch [PixelChannels]uint8
			for c := 0; c < channels; c++ {
				var idx int
				if p.config.ChannelOrder == ChannelOrderCHW {
					idx = c*plane + y*width + x
				} else {
					idx = (y*width+x)*channels + c
				}
				ch[c] = toByte(p.denormalize(tensor[idx], c))
			}

			switch {
			case channels == 1:
				ch[1], ch[2] = ch[0], ch[0]
			case p.config.ColorMode == ColorModeBGR:
				ch[0], ch[2] = ch[2], ch[0]
			}
			buf.Set(x, y, color.RGBA{R: ch[0], G: ch[1], B: ch[2], A: 255})
		}
	}
	return buf, nil
}

// resizeImage resizes the image to the model's input dimensions.
//
// Arguments:
// - img: The image to resize.
//
// Returns:
// - The resized image.
// - scaleX: Horizontal scaling factor.
// - scaleY: Vertical scaling factor.
// - padLeft: Left padding for letterboxing.
// - padTop: Top padding for letterboxing.
func (p *Preprocessor) resizeImage(img image.Image) (image.Image, float64, float64, int, int) {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	scaleX := float64(p.config.InputWidth) / float64(srcWidth)
	scaleY := float64(p.config.InputHeight) / float64(srcHeight)

	if !p.config.KeepAspectRatio {
		if srcWidth == p.config.InputWidth && srcHeight == p.config.InputHeight {
			return img, 1, 1, 0, 0
		}
		return p.scale(img, p.config.InputWidth, p.config.InputHeight), scaleX, scaleY, 0, 0
	}

	scale := math.Min(scaleX, scaleY)
	newWidth := int(float64(srcWidth) * scale)
	newHeight := int(float64(srcHeight) * scale)
	resized := p.scale(img, newWidth, newHeight)

	padLeft := (p.config.InputWidth - newWidth) / 2
	padTop := (p.config.InputHeight - newHeight) / 2

	letterboxed := image.NewRGBA(image.Rect(0, 0, p.config.InputWidth, p.config.InputHeight))
	draw.Draw(letterboxed, letterboxed.Bounds(), &image.Uniform{C: p.config.LetterboxColor}, image.Point{}, draw.Src)
	draw.Draw(letterboxed, image.Rect(padLeft, padTop, padLeft+newWidth, padTop+newHeight),
		resized, resized.Bounds().Min, draw.Over)

	return letterboxed, scale, scale, padLeft, padTop
}

// scale resamples img to width x height with the configured filter.
func (p *Preprocessor) scale(img image.Image, width, height int) image.Image {
	if p.config.Filter == FilterLanczos {
		return resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// bufferToTensor converts a pixel buffer to a float32 tensor in the configured layout.
func (p *Preprocessor) bufferToTensor(buf *PixelBuffer) []float32 {
	width, height := buf.Width, buf.Height
	plane := width * height
	tensor := make([]float32, p.TensorLen())

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * PixelChannels
			r8, g8, b8 := buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2]

			if p.config.InputChannels == 1 {
				gray := 0.299*float32(r8) + 0.587*float32(g8) + 0.114*float32(b8)
				if p.config.ChannelOrder == ChannelOrderCHW {
					tensor[y*width+x] = gray
				} else {
					tensor[idx] = gray
					idx++
				}
				continue
			}

			ch0, ch1, ch2 := float32(r8), float32(g8), float32(b8)
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch2 = ch2, ch0
			}

			if p.config.ChannelOrder == ChannelOrderCHW {
				tensor[y*width+x] = ch0
				tensor[plane+y*width+x] = ch1
				tensor[2*plane+y*width+x] = ch2
			} else {
				tensor[idx] = ch0
				tensor[idx+1] = ch1
				tensor[idx+2] = ch2
				idx += 3
			}
		}
	}
	return tensor
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		if !p.standardized() {
			// Fallback to zero-to-one if mean/std not properly configured.
			for i := range tensor {
				tensor[i] /= 255.0
			}
			return
		}

		channels := p.config.InputChannels
		pixelsPerChannel := len(tensor) / channels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					tensor[offset+i] = (tensor[offset+i] - mean) / std
				}
			} else {
				for i := c; i < len(tensor); i += channels {
					tensor[i] = (tensor[i] - mean) / std
				}
			}
		}
	}
}

// denormalize maps one normalized value of channel c back to the 0-255 range.
func (p *Preprocessor) denormalize(v float32, c int) float32 {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		return v * 255.0
	case NormalizeMinusOneToOne:
		return (v + 1.0) * 127.5
	case NormalizeStandardize:
		if !p.standardized() {
			return v * 255.0
		}
		return v*p.config.StdValues[c] + p.config.MeanValues[c]
	default:
		return v
	}
}

func (p *Preprocessor) standardized() bool {
	return len(p.config.MeanValues) == p.config.InputChannels &&
		len(p.config.StdValues) == p.config.InputChannels
}

func toByte(v float32) uint8 {
	r := math.Round(float64(v))
	switch {
	case r < 0:
		return 0
	case r > 255:
		return 255
	default:
		return uint8(r)
	}
}

// GetPillConfig returns the configuration of the pill detector models: a square RGB
// input scaled to [0, 1], interleaved per pixel, resampled without filtering.
//
// Arguments:
// - inputSize: The input size (640 for the shipped models).
//
// Returns:
// - A configured ModelConfig for the pill models.
//
// @example
// config := GetPillConfig(640)
// preprocessor := NewPreprocessor(config)
func GetPillConfig(inputSize int) *ModelConfig {
	return &ModelConfig{
		Name:              "pill-yolov5",
		InputWidth:        inputSize,
		InputHeight:       inputSize,
		InputChannels:     PixelChannels,
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      ChannelOrderHWC,
		ColorMode:         ColorModeRGB,
		Filter:            FilterNearest,
		KeepAspectRatio:   false,
		LetterboxColor:    color.RGBA{R: 114, G: 114, B: 114, A: 255},
	}
}

// BatchEncode encodes multiple pixel buffers in parallel.
//
// Arguments:
// - bufs: Slice of pixel buffers to encode.
// - maxConcurrency: Maximum number of buffers to encode concurrently.
//
// Returns:
// - Slice of tensors, in input order.
// - error if any encoding fails.
//
// @example
// tensors, err := preprocessor.BatchEncode([]*PixelBuffer{a, b, c}, 4)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func (p *Preprocessor) BatchEncode(bufs []*PixelBuffer, maxConcurrency int) ([][]float32, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([][]float32, len(bufs))
	errs := make([]error, len(bufs))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, buf := range bufs {
		wg.Add(1)
		go func(idx int, buf *PixelBuffer) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			tensor, err := p.Encode(buf)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "failed to encode buffer %d", idx)
			} else {
				results[idx] = tensor
			}
		}(i, buf)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
