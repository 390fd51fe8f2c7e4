package preprocess

// Tests for the pill tensor encoder.
//
// The encoder contract is narrow: a 640x640x3 8-bit RGB buffer becomes 640*640*3 floats
// in [0, 1], laid out pixel by pixel. These tests pin that layout, the failure modes for
// wrongly sized input, and the encode/decode round trip.

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-pillcheck/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomBuffer returns a deterministic pseudo-random pixel buffer.
func randomBuffer(seed int64, width, height int) *PixelBuffer {
	rng := rand.New(rand.NewSource(seed))
	buf := NewPixelBuffer(width, height)
	rng.Read(buf.Pix)
	return buf
}

// TestEncodeLayout validates the HWC interleaved layout and the /255 scaling on a small
// buffer where every value can be checked.
func TestEncodeLayout(t *testing.T) {
	p := NewPreprocessor(GetPillConfig(2))

	buf := NewPixelBuffer(2, 2)
	buf.Set(0, 0, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	buf.Set(1, 0, color.RGBA{R: 0, G: 255, B: 0, A: 255})
	buf.Set(0, 1, color.RGBA{R: 0, G: 0, B: 255, A: 255})
	buf.Set(1, 1, color.RGBA{R: 51, G: 102, B: 204, A: 255})

	tensor, err := p.Encode(buf)
	require.NoError(t, err)

	expected := []float32{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		0.2, 0.4, 0.8,
	}
	assert.InDeltaSlice(t, expected, tensor, 1e-6)
}

// TestEncodePillInput validates the full-size input contract: 640*640*3 floats, all
// within [0, 1].
func TestEncodePillInput(t *testing.T) {
	p := NewPreprocessor(GetPillConfig(640))

	tensor, err := p.Encode(randomBuffer(7, 640, 640))
	require.NoError(t, err)
	require.Len(t, tensor, 640*640*3)
	assert.Equal(t, []int{640, 640, 3}, p.Shape())

	for i, v := range tensor {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %f", i, v)
		}
	}
}

// TestEncodeDecodeRoundTrip validates that decoding an encoded buffer reproduces every
// pixel exactly.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	configs := map[string]*ModelConfig{
		"pill": GetPillConfig(64),
		"chw-bgr": {
			InputWidth: 64, InputHeight: 64, InputChannels: 3,
			NormalizationType: NormalizeMinusOneToOne,
			ChannelOrder:      ChannelOrderCHW,
			ColorMode:         ColorModeBGR,
		},
		"standardize": {
			InputWidth: 64, InputHeight: 64, InputChannels: 3,
			NormalizationType: NormalizeStandardize,
			MeanValues:        []float32{123.675, 116.28, 103.53},
			StdValues:         []float32{58.395, 57.12, 57.375},
		},
	}

	for name, config := range configs {
		t.Run(name, func(t *testing.T) {
			p := NewPreprocessor(config)
			buf := randomBuffer(42, 64, 64)

			tensor, err := p.Encode(buf)
			require.NoError(t, err)

			decoded, err := p.Decode(tensor)
			require.NoError(t, err)
			assert.Equal(t, buf.Width, decoded.Width)
			assert.Equal(t, buf.Height, decoded.Height)
			assert.Equal(t, buf.Pix, decoded.Pix)
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	p := NewPreprocessor(GetPillConfig(640))

	_, err := p.Encode(NewPixelBuffer(320, 320))
	assert.ErrorIs(t, err, ErrSizeMismatch)

	short := NewPixelBuffer(640, 640)
	short.Pix = short.Pix[:len(short.Pix)-1]
	_, err = p.Encode(short)
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = p.Encode(nil)
	assert.Error(t, err)

	_, err = p.Encode(&PixelBuffer{})
	assert.Error(t, err)

	_, err = p.Decode(make([]float32, 10))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

// TestEncodeImageScalesToInput validates that an image of any size is scaled to the input
// size, and that a flat-colored image stays flat under nearest-neighbour scaling.
func TestEncodeImageScalesToInput(t *testing.T) {
	for _, filter := range []Filter{FilterNearest, FilterLanczos} {
		config := GetPillConfig(32)
		config.Filter = filter
		p := NewPreprocessor(config)

		img := image.NewRGBA(image.Rect(0, 0, 100, 50))
		for y := 0; y < 50; y++ {
			for x := 0; x < 100; x++ {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
			}
		}

		result, err := p.EncodeImage(img)
		require.NoError(t, err)
		require.Len(t, result.Data, 32*32*3)
		assert.Equal(t, 100, result.OriginalWidth)
		assert.Equal(t, 50, result.OriginalHeight)
		assert.InDelta(t, 0.32, result.ScaleX, 1e-9)
		assert.InDelta(t, 0.64, result.ScaleY, 1e-9)

		assert.InDelta(t, 1.0, result.Data[0], 0.01)
		assert.InDelta(t, 0.0, result.Data[1], 0.01)
	}

	_, err := NewPreprocessor(GetPillConfig(32)).EncodeImage(nil)
	assert.Error(t, err)
}

// TestEncodeImageLetterbox validates letterbox padding and the mapping of boxes back onto
// the source image.
func TestEncodeImageLetterbox(t *testing.T) {
	config := GetPillConfig(64)
	config.KeepAspectRatio = true
	p := NewPreprocessor(config)

	img := image.NewRGBA(image.Rect(0, 0, 128, 64))
	result, err := p.EncodeImage(img)
	require.NoError(t, err)

	assert.Equal(t, 0.5, result.ScaleX)
	assert.Equal(t, 0, result.PadLeft)
	assert.Equal(t, 16, result.PadTop)

	// Top padding row carries the letterbox grey.
	assert.InDelta(t, 114.0/255.0, result.Data[0], 1e-6)

	box := result.ToOriginal(images.Rect{X1: 10, Y1: 16, X2: 20, Y2: 48})
	assert.Equal(t, images.Rect{X1: 20, Y1: 0, X2: 40, Y2: 64}, box)
}

func TestPixelBufferFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	img.SetNRGBA(5, 5, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetNRGBA(6, 5, color.NRGBA{R: 40, G: 50, B: 60, A: 128})

	buf := PixelBufferFromImage(img)
	assert.Equal(t, 2, buf.Width)
	assert.Equal(t, 1, buf.Height)
	assert.Equal(t, []uint8{10, 20, 30, 40, 50, 60}, buf.Pix, "Alpha is dropped, not premultiplied")

	back := buf.ToImage()
	assert.Equal(t, color.RGBA{R: 40, G: 50, B: 60, A: 255}, back.RGBAAt(1, 0))
}

func TestBatchEncode(t *testing.T) {
	p := NewPreprocessor(GetPillConfig(16))

	bufs := []*PixelBuffer{randomBuffer(1, 16, 16), randomBuffer(2, 16, 16), randomBuffer(3, 16, 16)}
	tensors, err := p.BatchEncode(bufs, 2)
	require.NoError(t, err)
	require.Len(t, tensors, 3)

	for i, buf := range bufs {
		single, err := p.Encode(buf)
		require.NoError(t, err)
		assert.Equal(t, single, tensors[i], "Batch results keep input order")
	}

	bufs = append(bufs, NewPixelBuffer(8, 8))
	_, err = p.BatchEncode(bufs, 0)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}
