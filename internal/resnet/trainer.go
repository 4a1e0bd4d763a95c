package resnet

import (
	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/optim"
	"github.com/born-ml/resnet/internal/tensor"
)

// StepResult reports one optimization step.
type StepResult struct {
	Loss     float32
	Accuracy float32 // on the batch, before the update
}

// Trainer runs supervised classification steps with cross-entropy and SGD.
//
//	backend := autodiff.New(cpu.New())
//	net := resnet.ResNet18(10, true, backend)
//	trainer := resnet.NewTrainer(net, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
//	for range steps {
//	    result := trainer.Step(images, labels)
//	    fmt.Println(result.Loss)
//	}
type Trainer[B autodiff.BackwardCapable] struct {
	net       *Network[B]
	criterion *nn.CrossEntropyLoss[B]
	optimizer *optim.SGD[B]
	backend   B
}

// NewTrainer creates a trainer over every parameter of net.
// The network must have a classification head.
func NewTrainer[B autodiff.BackwardCapable](net *Network[B], config optim.SGDConfig, backend B) *Trainer[B] {
	if !net.Config().IncludeTop {
		panic("resnet: trainer needs a network with a classification head")
	}
	return &Trainer[B]{
		net:       net,
		criterion: nn.NewCrossEntropyLoss(backend),
		optimizer: optim.NewSGD(net.Parameters(), config, backend),
		backend:   backend,
	}
}

// Step runs forward, loss, backward and one SGD update on a batch.
//
// The network is switched to training mode. Gradients stay attached to the
// parameters until the next step.
func (t *Trainer[B]) Step(images *tensor.Tensor[float32, B], labels []int) StepResult {
	tape := t.backend.GetTape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	t.net.Train()
	t.optimizer.ZeroGrad()

	logits := t.net.Forward(images)
	loss := t.criterion.Forward(logits, labels)
	grads := autodiff.Backward(loss, t.backend)

	nn.AssignGrads(t.net.Parameters(), grads)
	t.optimizer.Step(grads)

	return StepResult{
		Loss:     loss.Data()[0],
		Accuracy: nn.Accuracy(logits, labels),
	}
}

// Optimizer returns the underlying SGD optimizer.
func (t *Trainer[B]) Optimizer() *optim.SGD[B] {
	return t.optimizer
}
