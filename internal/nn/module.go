// Package nn implements the neural network modules ResNet is assembled from.
//
// This package provides building blocks for constructing convolutional networks:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking
//   - Conv2D, BatchNorm2D, Linear: layers with weights
//   - MaxPool2D, AdaptiveAvgPool2D, Flatten, ReLU: parameter-free layers
//   - Sequential: Container for stacking layers
//   - CrossEntropyLoss: classification loss
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/resnet/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//
// Modules can be composed to build complex architectures:
//
//	downsample := nn.NewSequential[B](
//	    nn.NewConv2D(64, 256, 1, 1, 1, 0, false, backend),
//	    nn.NewBatchNorm2D(256, backend),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	//
	// This includes weights, biases, and any nested module parameters.
	// Returns an empty slice for modules without trainable parameters
	// (e.g., activation functions).
	Parameters() []*Parameter[B]
}

// Stateful is implemented by modules that carry named tensors:
// parameters and, for BatchNorm2D, running statistics.
//
// Keys are PyTorch-style dotted names relative to the module
// ("weight", "running_mean", "0.weight", ...).
type Stateful interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Trainable is implemented by modules whose forward pass depends on the
// training/evaluation mode.
type Trainable interface {
	SetTraining(training bool)
	IsTraining() bool
}

// SetTraining switches m into training or evaluation mode if it has one.
func SetTraining(m any, training bool) {
	if t, ok := m.(Trainable); ok {
		t.SetTraining(training)
	}
}

// MergeStateDict copies every entry of src into dst under prefix.
//
//	MergeStateDict(sd, "layer1.0.bn1", bn.StateDict())
//	// sd["layer1.0.bn1.weight"], sd["layer1.0.bn1.running_var"], ...
func MergeStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		if prefix != "" {
			name = prefix + "." + name
		}
		dst[name] = raw
	}
}

// SubStateDict returns the entries of stateDict under prefix, with the
// prefix and its trailing dot removed.
func SubStateDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor)
	p := prefix + "."
	for name, raw := range stateDict {
		if rest, ok := strings.CutPrefix(name, p); ok {
			sub[rest] = raw
		}
	}
	return sub
}

// loadTensor copies src into dst after validating shape and dtype.
func loadTensor(stateDict map[string]*tensor.RawTensor, name string, dst *tensor.RawTensor) error {
	src, ok := stateDict[name]
	if !ok {
		return fmt.Errorf("missing %s in state dict", name)
	}
	if src.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: expected float32, got %v", name, src.DType())
	}
	if err := dst.CopyFrom(src); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
