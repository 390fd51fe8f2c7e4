package inference

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// TensorFile is an invoker that replays a recorded output tensor, whatever the input.
//
// It makes offline runs deterministic: record a model's output once, then exercise the
// post-processing against it without the model.
type TensorFile struct {
	Path      string
	Precision Precision
	data      []float32
}

// LoadTensorFile reads a raw little-endian tensor. The extension picks the precision:
// .f16 for half precision, .f32 or .bin for single precision.
//
// Arguments:
//   - path: The tensor file.
//
// Returns:
//   - *TensorFile: The replay invoker.
//   - error: An error if the file cannot be read or is not a whole number of elements.
//
// @example
//
//	replay, err := LoadTensorFile("testdata/pills.f32")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	raw, _ := replay.Invoke(ctx, nil)
func LoadTensorFile(path string) (*TensorFile, error) {
	precision, err := PrecisionFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open tensor file")
	}
	defer f.Close()

	data, err := ReadTensor(f, precision)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tensor file %s", path)
	}
	return &TensorFile{Path: path, Precision: precision, data: data}, nil
}

// NewTensorReplay wraps an in-memory tensor as a replay invoker.
func NewTensorReplay(data []float32) *TensorFile {
	return &TensorFile{Precision: PrecisionFP32, data: data}
}

// Data returns the recorded tensor. The slice must not be modified.
func (t *TensorFile) Data() []float32 {
	return t.data
}

// Invoke returns a copy of the recorded tensor. The input is ignored.
func (t *TensorFile) Invoke(ctx context.Context, _ []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float32, len(t.data))
	copy(out, t.data)
	return out, nil
}

// Close implements Invoker.
func (t *TensorFile) Close() error {
	return nil
}

// ReadTensor decodes a raw little-endian tensor of the given precision.
func ReadTensor(r io.Reader, precision Precision) ([]float32, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	size := precision.ElementSize()
	if len(raw)%size != 0 {
		return nil, errors.Errorf("%d bytes is not a whole number of %s elements", len(raw), precision)
	}

	data := make([]float32, len(raw)/size)
	for i := range data {
		if precision == PrecisionFP16 {
			data[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		} else {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	}
	return data, nil
}

// WriteTensor encodes a tensor as raw little-endian values of the given precision.
func WriteTensor(w io.Writer, data []float32, precision Precision) error {
	size := precision.ElementSize()
	raw := make([]byte, len(data)*size)
	for i, v := range data {
		if precision == PrecisionFP16 {
			binary.LittleEndian.PutUint16(raw[i*2:], float16.Fromfloat32(v).Bits())
		} else {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
		}
	}
	_, err := io.Copy(w, bytes.NewReader(raw))
	return err
}

// WriteTensorFile records a tensor to disk, picking the precision from the extension.
func WriteTensorFile(path string, data []float32) error {
	precision, err := PrecisionFromPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create tensor file")
	}
	if err := WriteTensor(f, data, precision); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write tensor file")
	}
	return f.Close()
}
