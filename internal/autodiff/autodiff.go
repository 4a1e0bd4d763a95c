// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient
// tracking through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op (Add, Conv2D, BatchNorm2D, ...) implements its backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	net := resnet.ResNet18(10, true, backend)
//	logits := net.Forward(images)
//	grads := autodiff.Backward(logits, backend)
package autodiff

import (
	"github.com/born-ml/resnet/internal/autodiff/ops"
	"github.com/born-ml/resnet/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between iterations
//   - Inspecting recorded operations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// record appends op to the tape when recording.
func (b *AutodiffBackend[B]) record(op ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op)
	}
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.record(ops.NewAddOp(a, c, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(a, c)
	b.record(ops.NewMulOp(a, c, result))
	return result
}

// ReLU applies ReLU activation and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.record(ops.NewReLUOp(x, result))
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(a, c)
	b.record(ops.NewMatMulOp(a, c, result))
	return result
}

// Reshape reshapes a tensor and records the operation.
//
// The CPU backend copies on reshape, so the result is a new tensor; without
// the ReshapeOp gradients would stop at the reshaped copy.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	b.record(ops.NewReshapeOp(t, result))
	return result
}

// Transpose transposes a tensor and records the operation.
//
// For example, in the Linear layer:
//
//	wT = w.Transpose()   // new tensor
//	output = input @ wT  // MatMul records operation with wT
//
// TransposeOp carries the gradient of wT back to w.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	ndim := len(t.Shape())
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}

	result := b.inner.Transpose(t, axes...)
	b.record(ops.NewTransposeOp(t, result, axes))
	return result
}

// SumDim sums along a dimension and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	if dim < 0 {
		dim += len(x.Shape())
	}
	result := b.inner.SumDim(x, dim, keepDim)
	b.record(ops.NewSumDimOp(x, result, dim, keepDim))
	return result
}

// Conv2D performs 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	return result
}

// Conv2DInputBackward delegates to the wrapped backend (not recorded).
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, stride, padding)
}

// Conv2DKernelBackward delegates to the wrapped backend (not recorded).
func (b *AutodiffBackend[B]) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, grad, stride, padding)
}

// MaxPool2D performs 2D max pooling and records the operation.
// MaxPool2DOp stores max indices during the forward pass for gradient routing.
func (b *AutodiffBackend[B]) MaxPool2D(input *tensor.RawTensor, kernelSize, stride, padding int) *tensor.RawTensor {
	result := b.inner.MaxPool2D(input, kernelSize, stride, padding)
	// Index search is skipped entirely when not recording.
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMaxPool2DOp(input, result, kernelSize, stride, padding))
	}
	return result
}

// MaxPool2DBackward delegates to the wrapped backend (not recorded).
func (b *AutodiffBackend[B]) MaxPool2DBackward(
	input, grad *tensor.RawTensor,
	maxIndices []int,
	kernelSize, stride, padding int,
) *tensor.RawTensor {
	return b.inner.MaxPool2DBackward(input, grad, maxIndices, kernelSize, stride, padding)
}

// AdaptiveAvgPool2D performs adaptive average pooling and records the operation.
func (b *AutodiffBackend[B]) AdaptiveAvgPool2D(input *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	result := b.inner.AdaptiveAvgPool2D(input, outH, outW)
	b.record(ops.NewAdaptiveAvgPool2DOp(input, result, outH, outW))
	return result
}

// AdaptiveAvgPool2DBackward delegates to the wrapped backend (not recorded).
func (b *AutodiffBackend[B]) AdaptiveAvgPool2DBackward(input, grad *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	return b.inner.AdaptiveAvgPool2DBackward(input, grad, outH, outW)
}

// BatchNorm2D applies batch normalization and records the operation.
// Running statistics are updated by the wrapped backend in training mode.
func (b *AutodiffBackend[B]) BatchNorm2D(
	input, gamma, beta, runningMean, runningVar *tensor.RawTensor,
	training bool,
	momentum, eps float32,
) *tensor.RawTensor {
	result := b.inner.BatchNorm2D(input, gamma, beta, runningMean, runningVar, training, momentum, eps)
	b.record(ops.NewBatchNorm2DOp(input, gamma, beta, runningMean, runningVar, result, training, eps))
	return result
}

// BatchNorm2DBackward delegates to the wrapped backend (not recorded).
func (b *AutodiffBackend[B]) BatchNorm2DBackward(
	input, gamma, runningMean, runningVar, grad *tensor.RawTensor,
	training bool,
	eps float32,
) (inputGrad, gammaGrad, betaGrad *tensor.RawTensor) {
	return b.inner.BatchNorm2DBackward(input, gamma, runningMean, runningVar, grad, training, eps)
}

// CrossEntropy computes the mean softmax cross-entropy of logits
// [batch, classes] against class indices and records the operation.
//
// It is not part of tensor.Backend; nn.CrossEntropyLoss detects it through
// an interface assertion and falls back to a plain computation otherwise.
func (b *AutodiffBackend[B]) CrossEntropy(logits *tensor.RawTensor, targets []int) *tensor.RawTensor {
	result, op := ops.CrossEntropyForward(logits, targets)
	b.record(op)
	return result
}
