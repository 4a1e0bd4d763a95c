package nn

import (
	"fmt"
	"strconv"

	"github.com/born-ml/resnet/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Children are named by
// their index, so a Sequential of [Conv2D, BatchNorm2D] has state dict keys
// "0.weight", "1.weight", "1.running_mean", ... as in PyTorch.
//
// Example:
//
//	downsample := nn.NewSequential[B](
//	    nn.NewConv2D(64, 128, 1, 1, 2, 0, false, backend),
//	    nn.NewBatchNorm2D(128, backend),
//	)
//	identity := downsample.Forward(x)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all parameters of all modules, in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// SetTraining propagates the mode to every child that has one.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, module := range s.modules {
		SetTraining(module, training)
	}
}

// IsTraining reports whether any child is in training mode.
func (s *Sequential[B]) IsTraining() bool {
	for _, module := range s.modules {
		if t, ok := module.(Trainable); ok && t.IsTraining() {
			return true
		}
	}
	return false
}

// StateDict returns the state of every Stateful child under its index.
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		if st, ok := module.(Stateful); ok {
			MergeStateDict(sd, strconv.Itoa(i), st.StateDict())
		}
	}
	return sd
}

// LoadStateDict loads every Stateful child from the entries under its index.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		st, ok := module.(Stateful)
		if !ok {
			continue
		}
		prefix := strconv.Itoa(i)
		if err := st.LoadStateDict(SubStateDict(stateDict, prefix)); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}

// Len returns the number of modules.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the i-th module.
func (s *Sequential[B]) Module(i int) Module[B] {
	return s.modules[i]
}

// Modules returns the contained modules.
func (s *Sequential[B]) Modules() []Module[B] {
	return s.modules
}
