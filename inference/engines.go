// Package inference - Inference engine interface and implementations
package inference

import (
	"fmt"
	"sync"

	"github.com/nvr-ai/go-pillcheck/inference/providers"
)

// EngineType is the type of the engine
type EngineType string

const (
	// EngineONNX is the ONNX engine that uses the onnxruntime library
	EngineONNX EngineType = "onnx"
	// EngineTFLite is the TensorFlow Lite engine that uses the tflite C library
	EngineTFLite EngineType = "tflite"
	// EngineReplay replays a recorded output tensor from disk
	EngineReplay EngineType = "replay"
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineONNX, EngineTFLite, EngineReplay}

// MarshalText implements encoding.TextMarshaler.
func (e EngineType) MarshalText() ([]byte, error) {
	return []byte(e), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EngineType) UnmarshalText(text []byte) error {
	for _, known := range Engines {
		if string(text) == string(known) {
			*e = known
			return nil
		}
	}
	return fmt.Errorf("unsupported engine: %q", text)
}

// EngineConfig selects and configures the model invoker.
type EngineConfig struct {
	// Type is the engine to run the model with.
	Type EngineType `json:"type" yaml:"type"`
	// ModelPath is the model file, or the tensor file for the replay engine.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// InputShape is the input tensor shape, e.g. [1, 640, 640, 3].
	InputShape []int64 `json:"input_shape" yaml:"input_shape"`
	// OutputShape is the output tensor shape, e.g. [1, 25200, 16].
	OutputShape []int64 `json:"output_shape" yaml:"output_shape"`
	// InputNames are the model input node names (onnx only).
	InputNames []string `json:"input_names" yaml:"input_names"`
	// OutputNames are the model output node names (onnx only).
	OutputNames []string `json:"output_names" yaml:"output_names"`
	// Threads is the interpreter thread count (tflite only). 0 keeps the default.
	Threads int `json:"threads" yaml:"threads"`
	// Provider configures the onnxruntime execution provider (onnx only).
	Provider providers.Config `json:"provider" yaml:"provider"`
}

// DefaultEngineConfig returns an onnx configuration for the given model shapes.
func DefaultEngineConfig(modelPath string, inputShape, outputShape []int64) EngineConfig {
	return EngineConfig{
		Type:        EngineONNX,
		ModelPath:   modelPath,
		InputShape:  inputShape,
		OutputShape: outputShape,
		InputNames:  []string{"images"},
		OutputNames: []string{"output0"},
		Provider:    providers.DefaultConfig(),
	}
}

func (c EngineConfig) inputNames() []string {
	if len(c.InputNames) == 0 {
		return []string{"images"}
	}
	return c.InputNames
}

func (c EngineConfig) outputNames() []string {
	if len(c.OutputNames) == 0 {
		return []string{"output0"}
	}
	return c.OutputNames
}

// EngineFactory creates the invoker of one engine type.
type EngineFactory func(config EngineConfig) (Invoker, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[EngineType]EngineFactory{}
)

// RegisterEngine makes an engine available to NewInvoker. Engines that need native
// libraries beyond onnxruntime register themselves from their own package, e.g.
// importing inference/tflite registers EngineTFLite.
func RegisterEngine(engine EngineType, factory EngineFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[engine] = factory
}

func lookupEngine(engine EngineType) (EngineFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	factory, ok := factories[engine]
	return factory, ok
}

// NewInvoker creates the invoker for the configured engine.
//
// Arguments:
//   - config: The engine configuration.
//
// Returns:
//   - Invoker: The invoker. The caller must Close it.
//   - error: An error if the engine is unknown or fails to load the model.
//
// @example
// invoker, err := NewInvoker(EngineConfig{Type: EngineReplay, ModelPath: "out.f32"})
func NewInvoker(config EngineConfig) (Invoker, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("%s engine needs a model path", config.Type)
	}

	var (
		invoker Invoker
		err     error
	)
	switch config.Type {
	case EngineONNX:
		invoker, err = NewONNXSession(config)
	case EngineReplay:
		invoker, err = LoadTensorFile(config.ModelPath)
	default:
		factory, ok := lookupEngine(config.Type)
		switch {
		case ok:
			invoker, err = factory(config)
		case config.Type == EngineTFLite:
			return nil, fmt.Errorf("tflite engine is not linked, import github.com/nvr-ai/go-pillcheck/inference/tflite")
		default:
			return nil, fmt.Errorf("unsupported engine: %q", config.Type)
		}
	}
	if err != nil {
		return nil, err
	}
	return invoker, nil
}
