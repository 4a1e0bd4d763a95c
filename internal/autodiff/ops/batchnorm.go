package ops

import "github.com/born-ml/resnet/internal/tensor"

// BatchNorm2DOp records per-channel batch normalization.
//
// Inputs are [input, gamma, beta]. The running statistics are buffers, not
// inputs: they receive no gradient. In training mode the backward pass
// differentiates through the batch mean and variance; in evaluation mode the
// layer is an affine map per channel.
type BatchNorm2DOp struct {
	input, gamma, beta      *tensor.RawTensor
	runningMean, runningVar *tensor.RawTensor
	output                  *tensor.RawTensor
	training                bool
	eps                     float32
}

// NewBatchNorm2DOp creates a new BatchNorm2DOp.
func NewBatchNorm2DOp(
	input, gamma, beta, runningMean, runningVar, output *tensor.RawTensor,
	training bool,
	eps float32,
) *BatchNorm2DOp {
	return &BatchNorm2DOp{
		input:       input,
		gamma:       gamma,
		beta:        beta,
		runningMean: runningMean,
		runningVar:  runningVar,
		output:      output,
		training:    training,
		eps:         eps,
	}
}

// Inputs returns [input, gamma, beta].
func (op *BatchNorm2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.gamma, op.beta}
}

// Output returns the normalized tensor.
func (op *BatchNorm2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward returns [d_input, d_gamma, d_beta].
func (op *BatchNorm2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad, gammaGrad, betaGrad := backend.BatchNorm2DBackward(
		op.input, op.gamma, op.runningMean, op.runningVar, outputGrad, op.training, op.eps)
	return []*tensor.RawTensor{inputGrad, gammaGrad, betaGrad}
}
