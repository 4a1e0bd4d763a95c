package ops

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// Conv2DOp is a recorded convolution without bias. Every convolution of the
// network goes through it, shortcut adapters included.
//
//	∂L/∂input  = Conv2DInputBackward(input, kernel, ∂L/∂out)   [N, C_in, H, W]
//	∂L/∂kernel = Conv2DKernelBackward(input, kernel, ∂L/∂out)  [C_out, C_in, kH, kW]
//
// Stride and padding are the forward ones; the backend derives the geometry
// from them.
type Conv2DOp struct {
	inputs  []*tensor.RawTensor // [input, kernel]
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp records a convolution of input with kernel.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{
		inputs:  []*tensor.RawTensor{input, kernel},
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

// Backward returns [∂L/∂input, ∂L/∂kernel].
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	input, kernel := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.Conv2DInputBackward(input, kernel, outputGrad, op.stride, op.padding),
		backend.Conv2DKernelBackward(input, kernel, outputGrad, op.stride, op.padding),
	}
}

// Inputs returns [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the feature map.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}
