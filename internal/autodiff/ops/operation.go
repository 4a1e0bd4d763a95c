// Package ops holds the differentiable operations the tape records.
//
// The backend computes every forward result; an operation only keeps what
// its backward pass needs:
//   - AddOp, MulOp: element-wise, gradients summed back over broadcast axes
//   - MatMulOp, ReLUOp, ReshapeOp, TransposeOp, SumDimOp
//   - Conv2DOp, MaxPool2DOp, AdaptiveAvgPool2DOp, BatchNorm2DOp: the layers
//     of a residual network, delegating their gradients to the backend
//   - CrossEntropyOp: softmax and loss fused, gradient (p - onehot) / N
package ops

import "github.com/born-ml/resnet/internal/tensor"

// Operation is one recorded node of the graph.
//
// Backward returns one gradient per entry of Inputs, in the same order and
// with the same shapes. A nil entry means the input gets no gradient.
type Operation interface {
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
	Inputs() []*tensor.RawTensor
	Output() *tensor.RawTensor
}
