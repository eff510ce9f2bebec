package quantization

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates an invalid configuration or a contract
	// violation between codebook and data. Never retried internally.
	ErrConfig = errors.New("quantization: invalid configuration")

	// ErrTraining indicates a fatal training failure. Non-convergence is
	// NOT a training error; it yields a usable best-effort codebook.
	ErrTraining = errors.New("quantization: training failed")

	// ErrEncoding indicates an input vector that cannot be encoded.
	ErrEncoding = errors.New("quantization: invalid input vector")
)

// ErrDimensionMismatch indicates a vector/codebook dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return ErrConfig }

// ErrCodeLengthMismatch indicates a code whose length does not match the
// codebook's fixed code length. This means storage and codebook are out
// of sync and is never silently tolerated.
type ErrCodeLengthMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrCodeLengthMismatch) Error() string {
	return fmt.Sprintf("code length mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrCodeLengthMismatch) Unwrap() error { return ErrConfig }

// ErrNonFinite indicates a NaN or Inf component in an input vector.
type ErrNonFinite struct {
	Index int
}

func (e *ErrNonFinite) Error() string {
	return fmt.Sprintf("non-finite value at dimension %d", e.Index)
}

func (e *ErrNonFinite) Unwrap() error { return ErrEncoding }

// ErrInsufficientSample indicates a training sample too small for the
// requested centroid count. This is fatal.
type ErrInsufficientSample struct {
	Sample   int
	Required int
}

func (e *ErrInsufficientSample) Error() string {
	return fmt.Sprintf("insufficient training sample: %d vectors, need at least %d", e.Sample, e.Required)
}

func (e *ErrInsufficientSample) Unwrap() error { return ErrTraining }
