package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

func newParam(t *testing.T, backend *cpu.CPUBackend, values ...float32) *nn.Parameter[*cpu.CPUBackend] {
	t.Helper()
	x, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return nn.NewParameter("w", x)
}

func gradFor(t *testing.T, p *nn.Parameter[*cpu.CPUBackend], values ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	g, err := tensor.FromSlice(values, tensor.Shape{len(values)}, p.Tensor().Backend())
	require.NoError(t, err)
	return map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor().Raw(): g.Raw()}
}

func TestSGD_PlainStep(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, backend, 1, 2)
	sgd := NewSGD([]*nn.Parameter[*cpu.CPUBackend]{p}, SGDConfig{LR: 0.5}, backend)

	sgd.Step(gradFor(t, p, 1, -2))
	assert.Equal(t, []float32{0.5, 3}, p.Tensor().Data())
	assert.Empty(t, sgd.StateDict(), "no velocity without momentum")
}

func TestSGD_Momentum(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, backend, 0)
	sgd := NewSGD([]*nn.Parameter[*cpu.CPUBackend]{p}, SGDConfig{LR: 0.1, Momentum: 0.9}, backend)

	grads := gradFor(t, p, 1)
	sgd.Step(grads) // v = 1, p = -0.1
	assert.InDelta(t, -0.1, p.Tensor().Data()[0], 1e-6)
	sgd.Step(grads) // v = 1.9, p = -0.29
	assert.InDelta(t, -0.29, p.Tensor().Data()[0], 1e-6)

	sd := sgd.StateDict()
	require.Contains(t, sd, "velocity.0")
	assert.InDelta(t, 1.9, sd["velocity.0"].AsFloat32()[0], 1e-6)
}

func TestSGD_WeightDecay(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, backend, 2)
	sgd := NewSGD([]*nn.Parameter[*cpu.CPUBackend]{p}, SGDConfig{LR: 0.1, WeightDecay: 0.5}, backend)

	sgd.Step(gradFor(t, p, 0))
	// p -= 0.1 * (0 + 0.5*2)
	assert.InDelta(t, 1.9, p.Tensor().Data()[0], 1e-6)
}

func TestSGD_SkipsMissingGradients(t *testing.T) {
	backend := cpu.New()
	a := newParam(t, backend, 1)
	b := newParam(t, backend, 1)
	sgd := NewSGD([]*nn.Parameter[*cpu.CPUBackend]{a, b}, SGDConfig{LR: 1}, backend)

	sgd.Step(gradFor(t, a, 1))
	assert.Equal(t, []float32{0}, a.Tensor().Data())
	assert.Equal(t, []float32{1}, b.Tensor().Data())
}

func TestSGD_DefaultsAndValidation(t *testing.T) {
	backend := cpu.New()
	sgd := NewSGD[*cpu.CPUBackend](nil, SGDConfig{}, backend)
	assert.Equal(t, float32(0.01), sgd.GetLR())
	sgd.SetLR(0.2)
	assert.Equal(t, float32(0.2), sgd.GetLR())

	assert.Panics(t, func() { NewSGD[*cpu.CPUBackend](nil, SGDConfig{LR: -1}, backend) })
	assert.Panics(t, func() { NewSGD[*cpu.CPUBackend](nil, SGDConfig{Momentum: 1}, backend) })
	assert.Panics(t, func() { NewSGD[*cpu.CPUBackend](nil, SGDConfig{WeightDecay: -1}, backend) })

	var _ Optimizer = sgd
}

func TestSGD_LoadStateDict(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, backend, 0, 0)
	src := NewSGD([]*nn.Parameter[*cpu.CPUBackend]{p}, SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
	src.Step(gradFor(t, p, 1, 2))

	q := newParam(t, backend, 0, 0)
	dst := NewSGD([]*nn.Parameter[*cpu.CPUBackend]{q}, SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, []float32{1, 2}, dst.StateDict()["velocity.0"].AsFloat32())

	bad := map[string]*tensor.RawTensor{"velocity.0": tensor.MustNewRaw("test", tensor.Shape{3}, tensor.CPU)}
	assert.ErrorContains(t, dst.LoadStateDict(bad), "velocity shape mismatch")
}

func TestSGD_ReducesLossOnAutodiffBackend(t *testing.T) {
	backend := autodiff.New(cpu.New())
	fc := nn.NewLinear(4, 3, backend)
	criterion := nn.NewCrossEntropyLoss(backend)
	sgd := NewSGD(fc.Parameters(), SGDConfig{LR: 0.5, Momentum: 0.5}, backend)

	x := tensor.Randn[float32](tensor.Shape{6, 4}, backend)
	labels := []int{0, 1, 2, 0, 1, 2}

	var first, last float32
	for step := 0; step < 30; step++ {
		backend.Tape().StartRecording()
		loss := criterion.Forward(fc.Forward(x), labels)
		grads := autodiff.Backward(loss, backend)
		sgd.Step(grads)
		sgd.ZeroGrad()
		backend.Tape().Clear()
		backend.Tape().StopRecording()

		if step == 0 {
			first = loss.Data()[0]
		}
		last = loss.Data()[0]
	}
	assert.Less(t, last, first)
}
