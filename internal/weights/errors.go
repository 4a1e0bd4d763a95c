package weights

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrHeaderTooLarge   = errors.New("header exceeds maximum size")
	ErrTruncated        = errors.New("file truncated")
	ErrOutOfBounds      = errors.New("tensor extends beyond data section")
	ErrOffsetOverlap    = errors.New("tensor offsets overlap")
	ErrSizeMismatch     = errors.New("tensor byte size does not match shape and dtype")
	ErrUnsupportedDType = errors.New("unsupported dtype")
	ErrNotFound         = errors.New("tensor not found")
	ErrChecksumMismatch = errors.New("checksum mismatch: file may be corrupted")
)

// TensorError attaches a tensor name to one of the errors above.
type TensorError struct {
	Tensor string
	Err    error
	Detail string
}

// Error implements the error interface.
func (e *TensorError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("tensor %q: %v: %s", e.Tensor, e.Err, e.Detail)
	}
	return fmt.Sprintf("tensor %q: %v", e.Tensor, e.Err)
}

// Unwrap returns the underlying sentinel error.
func (e *TensorError) Unwrap() error {
	return e.Err
}
