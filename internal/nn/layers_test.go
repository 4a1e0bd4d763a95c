package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/tensor"
)

func float64s(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// TestConv2D_Creation tests Conv2D layer creation.
func TestConv2D_Creation(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(3, 64, 7, 7, 2, 3, false, backend)

	if conv.InChannels() != 3 || conv.OutChannels() != 64 {
		t.Errorf("Expected 3->64 channels, got %d->%d", conv.InChannels(), conv.OutChannels())
	}
	if !conv.Weight().Tensor().Shape().Equal(tensor.Shape{64, 3, 7, 7}) {
		t.Errorf("Weight shape: got %v", conv.Weight().Tensor().Shape())
	}
	if len(conv.Parameters()) != 1 {
		t.Errorf("Expected 1 parameter without bias, got %d", len(conv.Parameters()))
	}
	if _, ok := conv.StateDict()["bias"]; ok {
		t.Error("StateDict should not contain bias when useBias=false")
	}

	withBias := NewConv2D(1, 6, 5, 5, 1, 0, true, backend)
	if len(withBias.Parameters()) != 2 {
		t.Errorf("Expected 2 parameters (weight, bias), got %d", len(withBias.Parameters()))
	}
}

// TestConv2D_ForwardShape tests forward pass output shape for ResNet geometries.
func TestConv2D_ForwardShape(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		name                    string
		in, out, k, stride, pad int
		inputShape, outputShape tensor.Shape
	}{
		{"stem", 3, 8, 7, 2, 3, tensor.Shape{2, 3, 32, 32}, tensor.Shape{2, 8, 16, 16}},
		{"3x3 same", 4, 4, 3, 1, 1, tensor.Shape{1, 4, 9, 9}, tensor.Shape{1, 4, 9, 9}},
		{"3x3 stride 2", 4, 8, 3, 2, 1, tensor.Shape{1, 4, 9, 9}, tensor.Shape{1, 8, 5, 5}},
		{"1x1 stride 2", 4, 8, 1, 2, 0, tensor.Shape{1, 4, 9, 9}, tensor.Shape{1, 8, 5, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConv2D(tt.in, tt.out, tt.k, tt.k, tt.stride, tt.pad, false, backend)
			out := conv.Forward(tensor.Zeros[float32](tt.inputShape, backend))
			assert.Equal(t, tt.outputShape, out.Shape())
			assert.Equal(t, [2]int{tt.outputShape[2], tt.outputShape[3]},
				conv.ComputeOutputSize(tt.inputShape[2], tt.inputShape[3]))
		})
	}
}

func TestConv2D_BiasBroadcast(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(1, 2, 1, 1, 1, 0, true, backend)
	copy(conv.Weight().Tensor().Data(), []float32{0, 0})
	copy(conv.Parameters()[1].Tensor().Data(), []float32{1.5, -2})

	out := conv.Forward(tensor.Ones[float32](tensor.Shape{1, 1, 2, 2}, backend))
	assert.Equal(t, []float32{1.5, 1.5, 1.5, 1.5, -2, -2, -2, -2}, out.Data())
}

func TestConv2D_InvalidPanics(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() { NewConv2D(0, 1, 3, 3, 1, 0, false, backend) })
	assert.Panics(t, func() { NewConv2D(1, 1, 0, 3, 1, 0, false, backend) })
	assert.Panics(t, func() { NewConv2D(1, 1, 3, 3, 0, 0, false, backend) })
	assert.Panics(t, func() { NewConv2D(1, 1, 3, 3, 1, -1, false, backend) })

	conv := NewConv2D(3, 4, 3, 3, 1, 1, false, backend)
	assert.Panics(t, func() { conv.Forward(tensor.Zeros[float32](tensor.Shape{1, 2, 4, 4}, backend)) })
	assert.Panics(t, func() { conv.Forward(tensor.Zeros[float32](tensor.Shape{3, 4, 4}, backend)) })
}

func TestKaimingNormal_FanOutStd(t *testing.T) {
	backend := cpu.New()
	w := tensor.Zeros[float32](tensor.Shape{64, 32, 3, 3}, backend)
	KaimingNormal(w, FanOut)

	mean, std := stat.MeanStdDev(float64s(w.Data()), nil)
	expected := math.Sqrt(2.0 / (64 * 3 * 3))
	assert.InDelta(t, 0, mean, 0.01)
	assert.InDelta(t, expected, std, expected*0.05)
}

func TestKaimingNormal_FanIn(t *testing.T) {
	backend := cpu.New()
	w := tensor.Zeros[float32](tensor.Shape{16, 128, 3, 3}, backend)
	KaimingNormal(w, FanIn)

	std := stat.StdDev(float64s(w.Data()), nil)
	expected := math.Sqrt(2.0 / (128 * 3 * 3))
	assert.InDelta(t, expected, std, expected*0.05)
}

func TestFans(t *testing.T) {
	fanIn, fanOut := Fans(tensor.Shape{64, 3, 7, 7})
	assert.Equal(t, 3*49, fanIn)
	assert.Equal(t, 64*49, fanOut)

	fanIn, fanOut = Fans(tensor.Shape{1000, 512})
	assert.Equal(t, 512, fanIn)
	assert.Equal(t, 1000, fanOut)

	assert.Panics(t, func() { Fans(tensor.Shape{4}) })
}

func TestXavier_Bounds(t *testing.T) {
	backend := cpu.New()
	w := Xavier(100, 50, tensor.Shape{50, 100}, backend)
	bound := float32(math.Sqrt(6.0 / 150))
	for i, v := range w.Data() {
		if v < -bound || v > bound {
			t.Fatalf("value %d = %f outside [-%f, %f]", i, v, bound, bound)
		}
	}
}

func TestNewLinear_FanInUniformInit(t *testing.T) {
	backend := cpu.New()
	fc := NewLinear(64, 32, backend)
	bound := float32(1 / math.Sqrt(64))

	w := fc.Weight().Tensor().Data()
	b := fc.Bias().Tensor().Data()
	for i, v := range w {
		require.LessOrEqualf(t, float32(math.Abs(float64(v))), bound, "weight %d", i)
	}
	nonZero := 0
	for i, v := range b {
		require.LessOrEqualf(t, float32(math.Abs(float64(v))), bound, "bias %d", i)
		if v != 0 {
			nonZero++
		}
	}
	assert.Positive(t, nonZero, "bias should not be zero-initialized")

	// U(-b, b) has variance b²/3.
	var sumSq float64
	for _, v := range w {
		sumSq += float64(v) * float64(v)
	}
	variance := sumSq / float64(len(w))
	assert.InDelta(t, float64(bound*bound)/3, variance, 0.2*float64(bound*bound)/3)
}

func TestBatchNorm2D_Defaults(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(3, backend)

	assert.True(t, bn.IsTraining())
	assert.Equal(t, 3, bn.NumFeatures())
	assert.Equal(t, []float32{1, 1, 1}, bn.Weight().Tensor().Data())
	assert.Equal(t, []float32{0, 0, 0}, bn.Bias().Tensor().Data())
	assert.Equal(t, []float32{0, 0, 0}, bn.RunningMean().AsFloat32())
	assert.Equal(t, []float32{1, 1, 1}, bn.RunningVar().AsFloat32())
	assert.Len(t, bn.Parameters(), 2)

	sd := bn.StateDict()
	assert.Len(t, sd, 4)
	for _, key := range []string{"weight", "bias", "running_mean", "running_var"} {
		assert.Contains(t, sd, key)
	}
}

func TestBatchNorm2D_TrainUpdatesRunningStats(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(1, backend)

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	require.NoError(t, err)

	out := bn.Forward(x)
	assert.InDelta(t, 0, stat.Mean(float64s(out.Data()), nil), 1e-5)

	// mean 2.5, unbiased var 5/3
	assert.InDelta(t, 0.25, bn.RunningMean().AsFloat32()[0], 1e-6)
	assert.InDelta(t, 0.9+0.1*5.0/3.0, bn.RunningVar().AsFloat32()[0], 1e-5)
}

func TestBatchNorm2D_EvalUsesRunningStats(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(1, backend)
	bn.SetTraining(false)
	bn.RunningMean().AsFloat32()[0] = 2
	bn.RunningVar().AsFloat32()[0] = 4 - DefaultBatchNormEps

	x, err := tensor.FromSlice([]float32{2, 4}, tensor.Shape{1, 1, 1, 2}, backend)
	require.NoError(t, err)

	out := bn.Forward(x)
	assert.InDelta(t, 0, out.Data()[0], 1e-5)
	assert.InDelta(t, 1, out.Data()[1], 1e-5)
	assert.Equal(t, float32(2), bn.RunningMean().AsFloat32()[0], "eval must not touch running stats")
}

func TestBatchNorm2D_SingleValuePerChannelPanics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(2, backend)
	x := tensor.Ones[float32](tensor.Shape{1, 2, 1, 1}, backend)

	assert.Panics(t, func() { bn.Forward(x) })

	bn.SetTraining(false)
	assert.NotPanics(t, func() { bn.Forward(x) })
}

func TestBatchNorm2D_LoadStateDict(t *testing.T) {
	backend := cpu.New()
	src := NewBatchNorm2D(2, backend)
	copy(src.Weight().Tensor().Data(), []float32{2, 3})
	copy(src.RunningMean().AsFloat32(), []float32{0.5, -0.5})

	dst := NewBatchNorm2D(2, backend)
	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, []float32{2, 3}, dst.Weight().Tensor().Data())
	assert.Equal(t, []float32{0.5, -0.5}, dst.RunningMean().AsFloat32())

	sd := src.StateDict()
	delete(sd, "running_var")
	assert.ErrorContains(t, dst.LoadStateDict(sd), "missing running_var")

	wrong := NewBatchNorm2D(3, backend)
	assert.ErrorContains(t, dst.LoadStateDict(wrong.StateDict()), "shape mismatch")
}

func TestMaxPool2D_StemGeometry(t *testing.T) {
	backend := cpu.New()
	pool := NewMaxPool2D(3, 2, 1, backend)

	out := pool.Forward(tensor.Zeros[float32](tensor.Shape{2, 4, 16, 16}, backend))
	assert.Equal(t, tensor.Shape{2, 4, 8, 8}, out.Shape())
	assert.Empty(t, pool.Parameters())
	assert.Equal(t, "MaxPool2D(kernel_size=3, stride=2, padding=1)", pool.String())

	assert.Panics(t, func() { NewMaxPool2D(3, 2, 2, backend) })
	assert.Panics(t, func() { NewMaxPool2D(0, 2, 0, backend) })
}

func TestAdaptiveAvgPool2D_Global(t *testing.T) {
	backend := cpu.New()
	pool := NewAdaptiveAvgPool2D(1, 1, backend)

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 10, 20, 30, 40}, tensor.Shape{1, 2, 2, 2}, backend)
	require.NoError(t, err)

	out := NewFlatten[*cpu.CPUBackend](1).Forward(pool.Forward(x))
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.Equal(t, []float32{2.5, 25}, out.Data())
}

func TestLinear_Forward(t *testing.T) {
	backend := cpu.New()
	fc := NewLinear(2, 3, backend)
	copy(fc.Weight().Tensor().Data(), []float32{1, 0, 0, 1, 1, 1})
	copy(fc.Bias().Tensor().Data(), []float32{0, 0, 1})

	x, err := tensor.FromSlice([]float32{2, 3}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	out := fc.Forward(x)
	assert.Equal(t, tensor.Shape{1, 3}, out.Shape())
	assert.Equal(t, []float32{2, 3, 6}, out.Data())

	assert.Panics(t, func() { fc.Forward(tensor.Zeros[float32](tensor.Shape{1, 3}, backend)) })
}

func TestLinear_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	src := NewLinear(4, 2, backend)
	dst := NewLinear(4, 2, backend)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, src.Weight().Tensor().Data(), dst.Weight().Tensor().Data())

	assert.Error(t, NewLinear(4, 3, backend).LoadStateDict(src.StateDict()))
}

func TestSequential_StateDictPrefixes(t *testing.T) {
	backend := cpu.New()
	seq := NewSequential[*cpu.CPUBackend](
		NewConv2D(2, 4, 1, 1, 2, 0, false, backend),
		NewBatchNorm2D(4, backend),
	)

	sd := seq.StateDict()
	assert.Len(t, sd, 5)
	for _, key := range []string{"0.weight", "1.weight", "1.bias", "1.running_mean", "1.running_var"} {
		assert.Contains(t, sd, key)
	}
	assert.Equal(t, 2, seq.Len())
	assert.Len(t, seq.Parameters(), 3)

	out := seq.Forward(tensor.Ones[float32](tensor.Shape{2, 2, 4, 4}, backend))
	assert.Equal(t, tensor.Shape{2, 4, 2, 2}, out.Shape())

	other := NewSequential[*cpu.CPUBackend](
		NewConv2D(2, 4, 1, 1, 2, 0, false, backend),
		NewBatchNorm2D(4, backend),
	)
	require.NoError(t, other.LoadStateDict(sd))
	assert.Equal(t, sd["0.weight"].AsFloat32(), other.StateDict()["0.weight"].AsFloat32())

	delete(sd, "1.bias")
	assert.ErrorContains(t, other.LoadStateDict(sd), "1: missing bias")
}

func TestSequential_SetTrainingPropagates(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(2, backend)
	seq := NewSequential[*cpu.CPUBackend](NewReLU[*cpu.CPUBackend](), bn)

	assert.True(t, seq.IsTraining())
	SetTraining(seq, false)
	assert.False(t, bn.IsTraining())
	assert.False(t, seq.IsTraining())
}

func TestSubStateDict(t *testing.T) {
	raw := tensor.MustNewRaw("test", tensor.Shape{1}, tensor.CPU)
	sd := map[string]*tensor.RawTensor{
		"layer1.0.conv1.weight": raw,
		"layer1.0.bn1.weight":   raw,
		"layer10.weight":        raw,
	}

	sub := SubStateDict(sd, "layer1")
	assert.Len(t, sub, 2)
	assert.Contains(t, sub, "0.conv1.weight")

	merged := make(map[string]*tensor.RawTensor)
	MergeStateDict(merged, "stem", map[string]*tensor.RawTensor{"weight": raw})
	assert.Contains(t, merged, "stem.weight")
}

func TestParameters_AssignGrads(t *testing.T) {
	backend := autodiff.New(cpu.New())
	fc := NewLinear(3, 2, backend)
	x := tensor.Ones[float32](tensor.Shape{4, 3}, backend)

	backend.Tape().StartRecording()
	out := fc.Forward(x).SumDim(1, false).SumDim(0, false)
	grads := autodiff.Backward(out, backend)

	params := fc.Parameters()
	assert.Equal(t, 2, AssignGrads(params, grads))
	// d(sum)/db = batch
	assert.Equal(t, []float32{4, 4}, fc.Bias().Grad().Data())
	assert.Equal(t, []float32{4, 4, 4, 4, 4, 4}, fc.Weight().Grad().Data())
	assert.Equal(t, 8, CountParameters(params))

	fc.Bias().ZeroGrad()
	assert.Nil(t, fc.Bias().Grad())
}
