// Package inference - Inference sessions.
package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/nvr-ai/go-pillcheck/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXSession represents a model session from the onnxruntime with preallocated input and
// output tensors.
type ONNXSession struct {
	mu      sync.Mutex
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// NewONNXSession creates a new ONNX Runtime session for a detector model.
//
// Order of operations:
//  1. Environment setup: loads the native runtime once per process.
//  2. Tensor allocation: fixed-shape buffers for the [1,640,640,3] input and the
//     [1,N,W] output.
//  3. Session options: threading and execution provider.
//  4. Session creation: loads the model and binds the tensors.
//
// Arguments:
//   - config: The engine configuration. InputShape and OutputShape must be set.
//
// Returns:
//   - *ONNXSession: The session. The caller must Close it.
//   - error: An error if the session creation fails.
func NewONNXSession(config EngineConfig) (*ONNXSession, error) {
	if len(config.InputShape) == 0 || len(config.OutputShape) == 0 {
		return nil, errors.New("onnx engine needs input and output shapes")
	}

	if err := providers.InitializeRuntime(config.Provider); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(config.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(config.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := providers.NewSessionOptions(config.Provider)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		config.inputNames(),
		config.outputNames(),
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &ONNXSession{
		Session: session,
		Input:   input,
		Output:  output,
	}, nil
}

// Invoke copies the input into the bound input tensor, runs the model and returns a copy
// of the output tensor.
//
// Arguments:
//   - ctx: Checked before the model runs; a native run cannot be interrupted.
//   - input: The encoded input, exactly as long as the input tensor.
//
// Returns:
//   - []float32: The raw output tensor.
//   - error: An error if the input does not fit or the run fails.
func (s *ONNXSession) Invoke(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Session == nil {
		return nil, ErrClosed
	}
	if err := PrepareInput(input, s.Input.GetData()); err != nil {
		return nil, err
	}
	if err := s.Session.Run(); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}

	out := s.Output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close releases the resources associated with the session.
//
// Returns:
//   - error: An error if the native session fails to be destroyed.
func (s *ONNXSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return fmt.Errorf("error destroying ORT session: %w", err)
		}
	}
	return nil
}

// PrepareInput copies an encoded input into a native input buffer.
//
// Arguments:
//   - input: The encoded input.
//   - dst: The destination buffer, owned by the native tensor.
//
// Returns:
//   - error: An error if the lengths differ.
func PrepareInput(input []float32, dst []float32) error {
	if len(input) != len(dst) {
		return fmt.Errorf("input tensor holds %d floats, got %d (make sure it's the right shape!)",
			len(dst), len(input))
	}
	copy(dst, input)
	return nil
}
