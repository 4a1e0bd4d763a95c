package ops

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// MaxPool2DOp records a max pooling operation for autodiff.
//
// Forward:
//
//	output[n,c,h,w] = max(input[n,c,h*stride-pad+kh,w*stride-pad+kw] for in-bounds kh,kw)
//
// Backward: each output gradient flows to the single input position that
// held the window maximum. All other positions receive zero gradient.
//
// Example (2x2 pool, stride=2):
//
//	Input:  [[1, 2],  Output: [4]  Input Grad: [[0, 0],
//	         [3, 4]]                             [0, grad]]
type MaxPool2DOp struct {
	input      *tensor.RawTensor
	output     *tensor.RawTensor
	maxIndices []int // Flat input index of each window's max
	kernelSize int
	stride     int
	padding    int
}

// NewMaxPool2DOp creates a new MaxPool2D operation.
// Max positions are located immediately, while input still holds forward values.
func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride, padding int) *MaxPool2DOp {
	return &MaxPool2DOp{
		input:      input,
		output:     output,
		maxIndices: computeMaxIndices(input, output, kernelSize, stride, padding),
		kernelSize: kernelSize,
		stride:     stride,
		padding:    padding,
	}
}

// computeMaxIndices finds which input position had the max value for each
// output position. Ties keep the first position in row-major window order.
func computeMaxIndices(input, output *tensor.RawTensor, kernelSize, stride, padding int) []int {
	inShape, outShape := input.Shape(), output.Shape()
	h, w := inShape[2], inShape[3]
	hOut, wOut := outShape[2], outShape[3]
	planes := inShape[0] * inShape[1]

	inputData := input.AsFloat32()
	maxIndices := make([]int, planes*hOut*wOut)

	outIdx := 0
	for plane := 0; plane < planes; plane++ {
		base := plane * h * w
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				maxPos := -1
				var maxVal float32
				for kh := 0; kh < kernelSize; kh++ {
					ih := oh*stride - padding + kh
					if ih < 0 || ih >= h {
						continue
					}
					for kw := 0; kw < kernelSize; kw++ {
						iw := ow*stride - padding + kw
						if iw < 0 || iw >= w {
							continue
						}
						idx := base + ih*w + iw
						if maxPos < 0 || inputData[idx] > maxVal {
							maxVal = inputData[idx]
							maxPos = idx
						}
					}
				}
				maxIndices[outIdx] = maxPos
				outIdx++
			}
		}
	}
	return maxIndices
}

// Inputs returns the input tensors.
func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *MaxPool2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward routes gradients through the recorded max positions.
//
// This implements the subgradient of the max function:
//
//	∂max(x_i)/∂x_j = 1 if j = argmax(x_i), else 0
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.MaxPool2DBackward(op.input, outputGrad, op.maxIndices, op.kernelSize, op.stride, op.padding)
	return []*tensor.RawTensor{inputGrad}
}

// AdaptiveAvgPool2DOp records adaptive average pooling.
// Each output gradient is spread evenly over its averaging bin.
type AdaptiveAvgPool2DOp struct {
	input      *tensor.RawTensor
	output     *tensor.RawTensor
	outH, outW int
}

// NewAdaptiveAvgPool2DOp creates a new AdaptiveAvgPool2DOp.
func NewAdaptiveAvgPool2DOp(input, output *tensor.RawTensor, outH, outW int) *AdaptiveAvgPool2DOp {
	return &AdaptiveAvgPool2DOp{
		input:  input,
		output: output,
		outH:   outH,
		outW:   outW,
	}
}

// Inputs returns the input tensors.
func (op *AdaptiveAvgPool2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *AdaptiveAvgPool2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient.
func (op *AdaptiveAvgPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.AdaptiveAvgPool2DBackward(op.input, outputGrad, op.outH, op.outW)}
}
