package providers

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var runtimeMu sync.Mutex

// InitializeRuntime loads the onnxruntime shared library once per process.
//
// Later calls are no-ops, whatever path they name.
//
// Arguments:
//   - config: The provider configuration naming the shared library.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeRuntime(config Config) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	// Check if the shared library exists before trying to use it.
	libPath := GetSharedLibPath(config.SharedLibPath)
	if libPath == "" {
		return fmt.Errorf("no default ONNX Runtime library for this platform, set %s", SharedLibEnv)
	}
	if _, err := os.Stat(libPath); err != nil {
		return fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
	}

	// Point ONNX Runtime to the exact shared library path (overrides default search).
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment: %w", err)
	}
	return nil
}

// NewSessionOptions creates session options for the configured execution provider.
//
// Order of operations:
//  1. Threading: intra-op and inter-op thread counts (0 keeps the runtime default).
//  2. Execution provider: CUDA, CoreML or OpenVINO when selected; CPU needs nothing.
//
// **Note: the caller must Destroy the returned options once the session is created.**
//
// Arguments:
//   - config: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: The configured options.
//   - error: An error if an option is rejected by the runtime.
func NewSessionOptions(config Config) (*ort.SessionOptions, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	if err := applyOptions(options, config); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func applyOptions(options *ort.SessionOptions, config Config) error {
	if config.IntraOpNumThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.IntraOpNumThreads); err != nil {
			return fmt.Errorf("error setting intra-op threads: %w", err)
		}
	}
	if config.InterOpNumThreads > 0 {
		if err := options.SetInterOpNumThreads(config.InterOpNumThreads); err != nil {
			return fmt.Errorf("error setting inter-op threads: %w", err)
		}
	}

	switch config.Backend {
	case CUDAProviderBackend:
		return appendCUDA(options, config.CUDA)
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(config.CoreML.Flags()); err != nil {
			return fmt.Errorf("error enabling CoreML: %w", err)
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(config.OpenVINO.ProviderOptions()); err != nil {
			return fmt.Errorf("error enabling OpenVINO: %w", err)
		}
	}
	return nil
}
