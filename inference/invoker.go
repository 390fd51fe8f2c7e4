// Package inference - Model invocation behind a single interface.
package inference

import (
	"context"

	"github.com/pkg/errors"
)

// ErrClosed is returned by an invoker used after Close.
var ErrClosed = errors.New("invoker is closed")

// Invoker runs the detector model: one encoded input tensor in, one raw output tensor out.
//
// Implementations own their native resources and must be safe for concurrent use.
type Invoker interface {
	// Invoke runs the model on an encoded input and returns the flat output tensor.
	Invoke(ctx context.Context, input []float32) ([]float32, error)
	// Close releases the resources associated with the invoker.
	Close() error
}

// InvokerFunc adapts a function into an Invoker. Close is a no-op.
//
// @example
//
//	invoker := InvokerFunc(func(ctx context.Context, input []float32) ([]float32, error) {
//	    return recorded, nil
//	})
type InvokerFunc func(ctx context.Context, input []float32) ([]float32, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, input []float32) ([]float32, error) {
	return f(ctx, input)
}

// Close implements Invoker.
func (f InvokerFunc) Close() error {
	return nil
}
