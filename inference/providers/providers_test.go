package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBackendText(t *testing.T) {
	var b Backend
	require.NoError(t, b.UnmarshalText([]byte("coreml")))
	assert.Equal(t, CoreMLProviderBackend, b)
	assert.Error(t, b.UnmarshalText([]byte("tensorrt")))
}

// TestConfigYAML validates that a provider block decodes over the defaults.
func TestConfigYAML(t *testing.T) {
	config := DefaultConfig()
	doc := []byte(`
backend: cuda
intra_op_num_threads: 4
cuda:
  device_id: 1
  cudnn_conv_algo_search: HEURISTIC
`)
	require.NoError(t, yaml.Unmarshal(doc, &config))
	require.NoError(t, config.Validate())

	assert.Equal(t, CUDAProviderBackend, config.Backend)
	assert.Equal(t, 4, config.IntraOpNumThreads)
	assert.Equal(t, PrecisionFP32, config.OpenVINO.Precision, "Unset blocks keep their defaults")
	assert.Equal(t, map[string]string{
		"device_id":              "1",
		"cudnn_conv_algo_search": "HEURISTIC",
	}, config.CUDA.ProviderOptions())

	config.Backend = "metal"
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.InterOpNumThreads = -1
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.OpenVINO.Precision = "INT4"
	assert.Error(t, config.Validate())
}

func TestOpenVINOProviderOptions(t *testing.T) {
	opts := OpenVINOOptions{DeviceType: "GPU", Precision: "FP16", NumOfThreads: 8, DisableDynamicShapes: true}
	assert.Equal(t, map[string]string{
		"device_type":            "GPU",
		"precision":              "FP16",
		"num_of_threads":         "8",
		"disable_dynamic_shapes": "true",
	}, opts.ProviderOptions())
	assert.Empty(t, OpenVINOOptions{}.ProviderOptions())
}

func TestCoreMLFlags(t *testing.T) {
	assert.Equal(t, uint32(0), CoreMLOptions{}.Flags())
	assert.Equal(t, uint32(0x005), CoreMLOptions{CPUOnly: true, OnlyWithANE: true}.Flags())
}

func TestGetSharedLibPath(t *testing.T) {
	t.Setenv(SharedLibEnv, "/opt/ort/libonnxruntime.so")
	assert.Equal(t, "/custom/lib.so", GetSharedLibPath("/custom/lib.so"))
	assert.Equal(t, "/opt/ort/libonnxruntime.so", GetSharedLibPath(""))

	assert.Equal(t, "./third_party/onnxruntime_arm64.so", defaultSharedLibPath("linux", "arm64"))
	assert.Equal(t, "./third_party/libonnxruntime.dylib", defaultSharedLibPath("darwin", "arm64"))
	assert.Empty(t, defaultSharedLibPath("plan9", "386"))
}
