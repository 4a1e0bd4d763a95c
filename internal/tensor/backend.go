package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// The surface is exactly what residual networks need: broadcasting addition,
// dense matmul, shape manipulation, ReLU, and the convolution, pooling and
// batch-normalization kernels with their backward passes.
//
// Implementations:
//   - CPU: Pure Go (internal/backend/cpu)
//   - Autodiff: decorator recording operations on a gradient tape (internal/autodiff)
type Backend interface {
	// Element-wise operations
	Add(a, b *RawTensor) *RawTensor // a + b with broadcasting
	Mul(a, b *RawTensor) *RawTensor // a * b with broadcasting
	ReLU(x *RawTensor) *RawTensor   // max(0, x)

	// Matrix operations
	MatMul(a, b *RawTensor) *RawTensor // [M, K] @ [K, N] -> [M, N]

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Reductions
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Convolution
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor

	// Pooling
	MaxPool2D(input *RawTensor, kernelSize, stride, padding int) *RawTensor
	MaxPool2DBackward(input, grad *RawTensor, maxIndices []int, kernelSize, stride, padding int) *RawTensor
	AdaptiveAvgPool2D(input *RawTensor, outH, outW int) *RawTensor
	AdaptiveAvgPool2DBackward(input, grad *RawTensor, outH, outW int) *RawTensor

	// Normalization
	//
	// BatchNorm2D normalizes per channel. In training mode it normalizes with
	// the batch statistics and folds them into runningMean/runningVar in
	// place using momentum; otherwise it normalizes with the running
	// statistics.
	BatchNorm2D(input, gamma, beta, runningMean, runningVar *RawTensor, training bool, momentum, eps float32) *RawTensor
	BatchNorm2DBackward(input, gamma, runningMean, runningVar, grad *RawTensor, training bool, eps float32) (inputGrad, gammaGrad, betaGrad *RawTensor)

	// Metadata
	Name() string
	Device() Device
}
