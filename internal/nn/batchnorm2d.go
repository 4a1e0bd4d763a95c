package nn

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// BatchNorm2D defaults, matching PyTorch.
const (
	DefaultBatchNormMomentum = 0.1
	DefaultBatchNormEps      = 1e-5
)

// BatchNorm2D normalizes each channel of a [N, C, H, W] input:
//
//	y = (x - mean) / sqrt(var + eps) * weight + bias
//
// In training mode mean and var are the statistics of the current batch and
// the running statistics are updated with momentum. In evaluation mode the
// running statistics are used instead.
//
// weight (γ) starts at 1 and bias (β) at 0; running_mean starts at 0 and
// running_var at 1. A new layer is in training mode.
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	momentum    float32
	eps         float32
	training    bool

	weight *Parameter[B] // γ [C]
	bias   *Parameter[B] // β [C]

	runningMean *tensor.RawTensor // [C]
	runningVar  *tensor.RawTensor // [C]

	backend B
}

// NewBatchNorm2D creates a batch normalization layer over numFeatures channels
// with momentum 0.1 and eps 1e-5.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid number of features %d", numFeatures))
	}

	shape := tensor.Shape{numFeatures}
	bn := &BatchNorm2D[B]{
		numFeatures: numFeatures,
		momentum:    DefaultBatchNormMomentum,
		eps:         DefaultBatchNormEps,
		training:    true,
		weight:      NewParameter("weight", Ones(shape, backend)),
		bias:        NewParameter("bias", Zeros(shape, backend)),
		runningMean: tensor.MustNewRaw("batchnorm2d", shape, backend.Device()),
		runningVar:  tensor.MustNewRaw("batchnorm2d", shape, backend.Device()),
		backend:     backend,
	}
	for i := range bn.runningVar.AsFloat32() {
		bn.runningVar.AsFloat32()[i] = 1
	}
	return bn
}

// Forward normalizes input [N, C, H, W].
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != expected %d", shape[1], bn.numFeatures))
	}

	out := bn.backend.BatchNorm2D(
		input.Raw(),
		bn.weight.Tensor().Raw(),
		bn.bias.Tensor().Raw(),
		bn.runningMean,
		bn.runningVar,
		bn.training,
		bn.momentum,
		bn.eps,
	)
	return tensor.New[float32, B](out, bn.backend)
}

// Parameters returns [weight, bias].
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias}
}

// SetTraining switches between batch statistics (true) and running statistics (false).
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.training = training
}

// IsTraining reports whether the layer uses batch statistics.
func (bn *BatchNorm2D[B]) IsTraining() bool {
	return bn.training
}

// StateDict returns weight, bias, running_mean and running_var.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       bn.weight.Tensor().Raw(),
		"bias":         bn.bias.Tensor().Raw(),
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	}
}

// LoadStateDict copies all four tensors from stateDict.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	targets := []struct {
		name string
		dst  *tensor.RawTensor
	}{
		{"weight", bn.weight.Tensor().Raw()},
		{"bias", bn.bias.Tensor().Raw()},
		{"running_mean", bn.runningMean},
		{"running_var", bn.runningVar},
	}
	for _, t := range targets {
		if err := loadTensor(stateDict, t.name, t.dst); err != nil {
			return err
		}
	}
	return nil
}

// Weight returns γ.
func (bn *BatchNorm2D[B]) Weight() *Parameter[B] {
	return bn.weight
}

// Bias returns β.
func (bn *BatchNorm2D[B]) Bias() *Parameter[B] {
	return bn.bias
}

// RunningMean returns the running mean buffer.
func (bn *BatchNorm2D[B]) RunningMean() *tensor.RawTensor {
	return bn.runningMean
}

// RunningVar returns the running variance buffer.
func (bn *BatchNorm2D[B]) RunningVar() *tensor.RawTensor {
	return bn.runningVar
}

// NumFeatures returns the number of channels.
func (bn *BatchNorm2D[B]) NumFeatures() int {
	return bn.numFeatures
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2D(%d, eps=%g, momentum=%g)", bn.numFeatures, bn.eps, bn.momentum)
}
