package nn

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// ReLU clamps negatives to zero. Residual blocks apply it after the first
// batch norm(s) of the main branch and again after the shortcut addition.
//
// One instance may be shared by several call sites: it holds no state.
type ReLU[B tensor.Backend] struct{}

// NewReLU returns a ReLU module.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// Forward returns max(0, x), recorded on the tape when the backend records.
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.ReLU()
}

// Parameters returns nil.
func (r *ReLU[B]) Parameters() []*Parameter[B] {
	return nil
}

// String returns "ReLU()".
func (r *ReLU[B]) String() string {
	return "ReLU()"
}
