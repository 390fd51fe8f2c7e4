package providers

import (
	"fmt"
	"strconv"
)

// OpenVINOPrecision is the inference precision requested from OpenVINO.
type OpenVINOPrecision string

const (
	// PrecisionAccuracy keeps the model's own precision.
	// (OpenVINO's default input precision type.)
	PrecisionAccuracy OpenVINOPrecision = "ACCURACY"
	// PrecisionFP32 represents 32-bit floating point precision.
	PrecisionFP32 OpenVINOPrecision = "FP32"
	// PrecisionFP16 represents 16-bit floating point precision.
	PrecisionFP16 OpenVINOPrecision = "FP16"
)

// Validate reports an error for a precision OpenVINO does not accept. Empty is valid.
func (p OpenVINOPrecision) Validate() error {
	switch p {
	case "", PrecisionAccuracy, PrecisionFP32, PrecisionFP16:
		return nil
	default:
		return fmt.Errorf("unsupported openvino precision: %q", string(p))
	}
}

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type, e.g. CPU, GPU or NPU.
	DeviceType string `json:"device_type" yaml:"device_type"`
	// One of FP32, FP16 or ACCURACY.
	Precision OpenVINOPrecision `json:"precision" yaml:"precision"`
	// Overrides the accelerator default number of threads. 0 leaves the default.
	NumOfThreads int `json:"num_of_threads" yaml:"num_of_threads"`
	// Overrides the accelerator default streams. 0 leaves the default.
	NumStreams int `json:"num_streams" yaml:"num_streams"`
	// This option enables rewriting dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disable_dynamic_shapes" yaml:"disable_dynamic_shapes"`
}

// ProviderOptions returns the options as the key/value pairs onnxruntime expects.
func (o OpenVINOOptions) ProviderOptions() map[string]string {
	opts := map[string]string{}
	if o.DeviceType != "" {
		opts["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		opts["precision"] = string(o.Precision)
	}
	if o.NumOfThreads > 0 {
		opts["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		opts["num_streams"] = strconv.Itoa(o.NumStreams)
	}
	if o.DisableDynamicShapes {
		opts["disable_dynamic_shapes"] = "true"
	}
	return opts
}
