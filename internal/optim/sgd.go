package optim

import (
	"fmt"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// SGD implements Stochastic Gradient Descent with optional momentum and
// L2 weight decay, using the PyTorch update rule:
//
//	g = gradient + weightDecay * param
//	velocity = momentum * velocity + g
//	param = param - lr * velocity
//
// With Momentum 0 the velocity is the decayed gradient itself.
//
// Updates write the parameter storage directly, so they are never recorded
// on a gradient tape.
type SGD[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	momentum    float32
	weightDecay float32
	velocities  map[*nn.Parameter[B]]*tensor.RawTensor
	backend     B
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float32 // Learning rate (default: 0.01)
	Momentum    float32 // Momentum factor (default: 0.0, range: [0, 1))
	WeightDecay float32 // L2 penalty (default: 0.0)
}

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	sgd := optim.NewSGD(net.Parameters(), optim.SGDConfig{
//	    LR:          0.1,
//	    Momentum:    0.9,
//	    WeightDecay: 1e-4,
//	}, backend)
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.LR < 0 {
		panic(fmt.Sprintf("sgd: invalid learning rate %g", config.LR))
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		panic(fmt.Sprintf("sgd: momentum %g must be in [0, 1)", config.Momentum))
	}
	if config.WeightDecay < 0 {
		panic(fmt.Sprintf("sgd: invalid weight decay %g", config.WeightDecay))
	}

	return &SGD[B]{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  make(map[*nn.Parameter[B]]*tensor.RawTensor),
		backend:     backend,
	}
}

// Step performs a single optimization step.
//
// Parameters with no gradient (not in computational graph) are skipped.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		s.update(param, grad)
	}
}

func (s *SGD[B]) update(param *nn.Parameter[B], grad *tensor.RawTensor) {
	p := param.Tensor().Raw().AsFloat32()
	g := grad.AsFloat32()
	if len(g) != len(p) {
		panic(fmt.Sprintf("sgd: gradient of %s has %d values, parameter has %d", param.Name(), len(g), len(p)))
	}

	if s.momentum == 0 {
		for i := range p {
			p[i] -= s.lr * (g[i] + s.weightDecay*p[i])
		}
		return
	}

	velocity, exists := s.velocities[param]
	if !exists {
		velocity = tensor.MustNewRaw("sgd", param.Tensor().Shape(), s.backend.Device())
		s.velocities[param] = velocity
	}
	v := velocity.AsFloat32()
	for i := range p {
		v[i] = s.momentum*v[i] + g[i] + s.weightDecay*p[i]
		p[i] -= s.lr * v[i]
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

// StateDict returns the velocity buffers under "velocity.{param_index}".
//
// Without momentum, or before the first step, it is empty.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, param := range s.params {
		if velocity, exists := s.velocities[param]; exists {
			stateDict[fmt.Sprintf("velocity.%d", i)] = velocity
		}
	}
	return stateDict
}

// LoadStateDict restores velocity buffers.
//
// Returns an error if a velocity shape doesn't match its parameter.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	velocities := make(map[*nn.Parameter[B]]*tensor.RawTensor)
	for i, param := range s.params {
		velocityRaw, exists := stateDict[fmt.Sprintf("velocity.%d", i)]
		if !exists {
			continue
		}
		if !velocityRaw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("velocity shape mismatch for parameter %d: expected %v, got %v",
				i, param.Tensor().Shape(), velocityRaw.Shape())
		}
		velocities[param] = velocityRaw.Clone()
	}
	s.velocities = velocities
	return nil
}
