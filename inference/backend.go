// Package inference - Inference backends and the detection engine.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrNotConfigured is returned when an engine or backend is missing a
// required component.
var ErrNotConfigured = errors.New("not configured")

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("backend closed")

// Backend runs the detector network: it maps a preprocessed [1, H, W, 3]
// tensor to the raw prediction. Implementations must return a complete
// tensor that the caller owns.
type Backend interface {
	Predict(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	Close() error
}

// BackendError marks a failure inside the backend, as opposed to an invalid
// image or a malformed prediction.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return "inference backend: " + e.Err.Error()
}

// Unwrap returns the backend's error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Cause returns the backend's error for errors.Cause.
func (e *BackendError) Cause() error {
	return e.Err
}

// IsBackendError reports whether err came from a backend.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

func checkInput(input *tensor.Dense, want tensor.Shape) error {
	if input == nil {
		return errors.New("input tensor is nil")
	}
	if input.Dtype() != tensor.Float32 {
		return errors.Errorf("expected float32 input, got %v", input.Dtype())
	}
	if want != nil && !input.Shape().Eq(want) {
		return errors.Errorf("expected input shape %v, got %v", want, input.Shape())
	}
	return nil
}
