// Package tflite - TensorFlow Lite model invoker. Importing the package registers the
// tflite engine with inference.NewInvoker.
package tflite

import (
	"context"
	"fmt"
	"sync"

	gotflite "github.com/mattn/go-tflite"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pillcheck/inference"
)

func init() {
	inference.RegisterEngine(inference.EngineTFLite, func(config inference.EngineConfig) (inference.Invoker, error) {
		return NewInterpreter(config)
	})
}

// Interpreter runs a .tflite pill model, the format the detector ships in on phones.
type Interpreter struct {
	mu          sync.Mutex
	model       *gotflite.Model
	options     *gotflite.InterpreterOptions
	interpreter *gotflite.Interpreter
}

// NewInterpreter loads a model and allocates its tensors.
//
// Arguments:
//   - config: The engine configuration. ModelPath and Threads are used.
//
// Returns:
//   - *Interpreter: The interpreter. The caller must Close it.
//   - error: An error if the model cannot be loaded or its tensors are not float32.
func NewInterpreter(config inference.EngineConfig) (*Interpreter, error) {
	model := gotflite.NewModelFromFile(config.ModelPath)
	if model == nil {
		return nil, fmt.Errorf("cannot load tflite model %s", config.ModelPath)
	}

	options := gotflite.NewInterpreterOptions()
	if config.Threads > 0 {
		options.SetNumThread(config.Threads)
	}

	interpreter := gotflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("cannot create tflite interpreter")
	}

	t := &Interpreter{model: model, options: options, interpreter: interpreter}
	if status := interpreter.AllocateTensors(); status != gotflite.OK {
		t.Close()
		return nil, fmt.Errorf("tflite tensor allocation failed: %v", status)
	}
	if typ := interpreter.GetInputTensor(0).Type(); typ != gotflite.Float32 {
		t.Close()
		return nil, fmt.Errorf("tflite input must be float32, got %v", typ)
	}
	if typ := interpreter.GetOutputTensor(0).Type(); typ != gotflite.Float32 {
		t.Close()
		return nil, fmt.Errorf("tflite output must be float32, got %v", typ)
	}
	return t, nil
}

// Invoke copies the input into the interpreter, runs it and returns a copy of output 0.
func (t *Interpreter) Invoke(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter == nil {
		return nil, inference.ErrClosed
	}
	if err := inference.PrepareInput(input, t.interpreter.GetInputTensor(0).Float32s()); err != nil {
		return nil, err
	}
	if status := t.interpreter.Invoke(); status != gotflite.OK {
		return nil, fmt.Errorf("tflite invoke failed: %v", status)
	}

	out := t.interpreter.GetOutputTensor(0).Float32s()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close releases the interpreter, its options and the model.
func (t *Interpreter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
	return nil
}
