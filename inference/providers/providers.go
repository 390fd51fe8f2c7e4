// Package providers - ONNX Runtime execution providers for the pill models.
package providers

import (
	"fmt"
)

// Backend represents different ONNX Runtime execution providers.
type Backend string

const (
	// CPUProviderBackend uses the default ONNX Runtime CPU kernels.
	CPUProviderBackend Backend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend Backend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend Backend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend Backend = "openvino"
)

// Backends is a list of all supported backends.
var Backends = []Backend{CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend}

// MarshalText implements encoding.TextMarshaler.
func (b Backend) MarshalText() ([]byte, error) {
	return []byte(b), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Backend) UnmarshalText(text []byte) error {
	for _, known := range Backends {
		if string(text) == string(known) {
			*b = known
			return nil
		}
	}
	return fmt.Errorf("unsupported execution provider: %q", text)
}

// Config selects and tunes the execution provider of an ONNX session.
type Config struct {
	// Backend specifies the backend to use.
	Backend Backend `json:"backend" yaml:"backend"`
	// SharedLibPath overrides the onnxruntime shared library location.
	SharedLibPath string `json:"shared_lib_path" yaml:"shared_lib_path"`
	// IntraOpNumThreads sets threads for parallelizing ops. 0 uses the runtime default.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`
	// InterOpNumThreads sets threads for parallelizing independent ops. 0 uses the runtime
	// default.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
	// CUDA options, used when Backend is cuda.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// CoreML options, used when Backend is coreml.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
	// OpenVINO options, used when Backend is openvino.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultConfig returns a CPU configuration with runtime-chosen thread counts.
//
// Returns:
//   - Config: The default provider configuration.
func DefaultConfig() Config {
	return Config{
		Backend: CPUProviderBackend,
		OpenVINO: OpenVINOOptions{
			DeviceType: "CPU",
			Precision:  PrecisionFP32,
		},
	}
}

// Validate checks the configuration for values the runtime would reject.
func (c Config) Validate() error {
	var b Backend
	if err := b.UnmarshalText([]byte(c.Backend)); err != nil {
		return err
	}
	if c.IntraOpNumThreads < 0 || c.InterOpNumThreads < 0 {
		return fmt.Errorf("thread counts must not be negative, got intra=%d inter=%d",
			c.IntraOpNumThreads, c.InterOpNumThreads)
	}
	if c.CUDA.DeviceID < 0 {
		return fmt.Errorf("cuda device id must not be negative, got %d", c.CUDA.DeviceID)
	}
	return c.OpenVINO.Precision.Validate()
}
