package resnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/optim"
	"github.com/born-ml/resnet/internal/tensor"
)

func TestTrainer_LossDecreases(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net, err := New(tinyConfig(Basic, 3, true), backend)
	require.NoError(t, err)
	net.Eval()

	trainer := NewTrainer(net, optim.SGDConfig{LR: 0.01, Momentum: 0.9}, backend)
	images := tensor.Randn[float32](tensor.Shape{4, 3, 32, 32}, backend)
	labels := []int{0, 1, 2, 0}
	conv1, _ := net.Stem()
	before := append([]float32(nil), conv1.Weight().Tensor().Data()...)

	var losses []float32
	for range 5 {
		result := trainer.Step(images, labels)
		assert.GreaterOrEqual(t, result.Accuracy, float32(0))
		assert.LessOrEqual(t, result.Accuracy, float32(1))
		losses = append(losses, result.Loss)
	}

	assert.True(t, net.IsTraining(), "Step switches to training mode")
	assert.Less(t, losses[len(losses)-1], losses[0], "losses: %v", losses)
	assert.NotEqual(t, before, conv1.Weight().Tensor().Data())
	assert.Zero(t, backend.Tape().NumOps())
	assert.False(t, backend.Tape().IsRecording())
	for _, p := range net.Parameters() {
		assert.NotNil(t, p.Grad(), p.Name())
	}
}

func TestNewTrainer_NeedsHead(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net, err := New(tinyConfig(Basic, 0, false), backend)
	require.NoError(t, err)

	assert.Panics(t, func() { NewTrainer(net, optim.SGDConfig{}, backend) })
}
