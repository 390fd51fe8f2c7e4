package inference

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokerFunc(t *testing.T) {
	var calls int
	invoker := InvokerFunc(func(_ context.Context, input []float32) ([]float32, error) {
		calls++
		return []float32{float32(len(input))}, nil
	})

	out, err := invoker.Invoke(context.Background(), make([]float32, 3))
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, out)
	assert.Equal(t, 1, calls)
	assert.NoError(t, invoker.Close())
}

// TestTensorFileRoundTrip validates that a tensor written to disk replays unchanged in
// single precision and within half-precision rounding in half precision.
func TestTensorFileRoundTrip(t *testing.T) {
	data := []float32{0, 1, -2.5, 320.25, 0.6, 0.999}
	dir := t.TempDir()

	t.Run("f32", func(t *testing.T) {
		path := filepath.Join(dir, "out.f32")
		require.NoError(t, WriteTensorFile(path, data))

		replay, err := LoadTensorFile(path)
		require.NoError(t, err)
		assert.Equal(t, PrecisionFP32, replay.Precision)
		assert.Equal(t, data, replay.Data())
	})

	t.Run("f16", func(t *testing.T) {
		path := filepath.Join(dir, "out.f16")
		require.NoError(t, WriteTensorFile(path, data))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)*2), info.Size())

		replay, err := LoadTensorFile(path)
		require.NoError(t, err)
		assert.Equal(t, PrecisionFP16, replay.Precision)
		assert.InDeltaSlice(t, data, replay.Data(), 0.125)
	})
}

func TestReadTensorErrors(t *testing.T) {
	_, err := ReadTensor(bytes.NewReader([]byte{1, 2, 3}), PrecisionFP32)
	assert.Error(t, err)

	_, err = LoadTensorFile(filepath.Join(t.TempDir(), "out.npy"))
	assert.Error(t, err)

	_, err = LoadTensorFile(filepath.Join(t.TempDir(), "missing.f32"))
	assert.Error(t, err)
}

// TestTensorFileInvoke validates that replay ignores the input, returns a copy, and
// honours a cancelled context.
func TestTensorFileInvoke(t *testing.T) {
	replay := NewTensorReplay([]float32{1, 2, 3})

	out, err := replay.Invoke(context.Background(), nil)
	require.NoError(t, err)
	out[0] = 42
	assert.Equal(t, []float32{1, 2, 3}, replay.Data())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = replay.Invoke(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewInvoker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.f32")
	require.NoError(t, WriteTensorFile(path, []float32{1, 2}))

	invoker, err := NewInvoker(EngineConfig{Type: EngineReplay, ModelPath: path})
	require.NoError(t, err)
	defer invoker.Close()

	out, err := invoker.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, out)

	_, err = NewInvoker(EngineConfig{Type: "coreml", ModelPath: path})
	assert.Error(t, err)

	_, err = NewInvoker(EngineConfig{Type: EngineONNX})
	assert.Error(t, err)
}

func TestNewInvokerRegisteredEngines(t *testing.T) {
	_, err := NewInvoker(EngineConfig{Type: EngineTFLite, ModelPath: "pills.tflite"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not linked")

	const fake EngineType = "fake"
	RegisterEngine(fake, func(config EngineConfig) (Invoker, error) {
		return NewTensorReplay([]float32{float32(len(config.ModelPath))}), nil
	})
	t.Cleanup(func() {
		factoriesMu.Lock()
		delete(factories, fake)
		factoriesMu.Unlock()
	})

	invoker, err := NewInvoker(EngineConfig{Type: fake, ModelPath: "abc"})
	require.NoError(t, err)
	out, err := invoker.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, out)
}

func TestPrepareInput(t *testing.T) {
	dst := make([]float32, 3)
	require.NoError(t, PrepareInput([]float32{1, 2, 3}, dst))
	assert.Equal(t, []float32{1, 2, 3}, dst)
	assert.Error(t, PrepareInput([]float32{1}, dst))
}

func TestEngineTypeText(t *testing.T) {
	var e EngineType
	require.NoError(t, e.UnmarshalText([]byte("tflite")))
	assert.Equal(t, EngineTFLite, e)
	assert.Error(t, e.UnmarshalText([]byte("openvino")))

	precision, err := PrecisionFromPath("capture.BIN")
	require.NoError(t, err)
	assert.Equal(t, PrecisionFP32, precision)
}
