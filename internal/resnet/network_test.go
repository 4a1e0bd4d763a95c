package resnet

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// tinyConfig is a narrow-in-depth network that is cheap to run.
func tinyConfig(kind BlockKind, classes int, includeTop bool) Config {
	return Config{Block: kind, Layers: []int{1, 1, 1, 1}, NumClasses: classes, IncludeTop: includeTop}
}

func TestPresets_Structure(t *testing.T) {
	if testing.Short() {
		t.Skip("builds full-size networks")
	}
	backend := cpu.New()

	tests := []struct {
		name   string
		build  func() *Network[cpuBackend]
		kind   BlockKind
		blocks int
		depth  int
		params int // torchvision parameter counts with a 1000-class head
	}{
		{"resnet18", func() *Network[cpuBackend] { return ResNet18(DefaultNumClasses, true, backend) }, Basic, 8, 18, 11_689_512},
		{"resnet34", func() *Network[cpuBackend] { return ResNet34(DefaultNumClasses, true, backend) }, Basic, 16, 34, 21_797_672},
		{"resnet50", func() *Network[cpuBackend] { return ResNet50(DefaultNumClasses, true, backend) }, Bottleneck, 16, 50, 25_557_032},
		{"resnet101", func() *Network[cpuBackend] { return ResNet101(DefaultNumClasses, true, backend) }, Bottleneck, 33, 101, 44_549_160},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := tt.build()

			blocks := net.Blocks()
			assert.Len(t, blocks, tt.blocks)
			assert.Equal(t, tt.depth, net.Depth())
			assert.Equal(t, tt.name, net.Name())
			assert.Equal(t, tt.params, net.NumParameters())
			assert.Equal(t, 512*tt.kind.Expansion(), net.FeatureChannels())

			for _, b := range blocks {
				assert.Equal(t, tt.kind, b.Kind())
			}
			checkShortcuts(t, net)
		})
	}
}

// checkShortcuts verifies from parameter shapes that every block has an
// adapter exactly when it changes stride or channel count, and that the
// adapter maps the block's input onto its output.
func checkShortcuts[B tensor.Backend](t *testing.T, net *Network[B]) {
	t.Helper()
	for si, stage := range net.Stages() {
		for bi, b := range stage.Blocks() {
			want := b.Stride() != 1 || b.InChannels() != b.OutChannels()
			ds := b.Downsample()
			if !assert.Equal(t, want, ds != nil, "layer%d.%d", si+1, bi) || ds == nil {
				continue
			}
			sd := ds.StateDict()
			assert.Equal(t, tensor.Shape{b.OutChannels(), b.InChannels(), 1, 1}, sd["0.weight"].Shape(), "layer%d.%d", si+1, bi)
			assert.Equal(t, tensor.Shape{b.OutChannels()}, sd["1.running_mean"].Shape(), "layer%d.%d", si+1, bi)
		}
		assert.Equal(t, StageStrides[si], stage.Stride())
		assert.Equal(t, StageWidths[si]*net.Config().Block.Expansion(), stage.OutChannels())
	}
}

func TestNetwork_FirstStageAdapter(t *testing.T) {
	backend := cpu.New()

	basic, err := New(tinyConfig(Basic, 10, true), backend)
	require.NoError(t, err)
	assert.Nil(t, basic.Stages()[0].Block(0).Downsample(), "64 -> 64 at stride 1")

	bottleneck, err := New(tinyConfig(Bottleneck, 10, true), backend)
	require.NoError(t, err)
	assert.NotNil(t, bottleneck.Stages()[0].Block(0).Downsample(), "64 -> 256 at stride 1")

	for _, net := range []*Network[cpuBackend]{basic, bottleneck} {
		for _, s := range net.Stages()[1:] {
			assert.NotNil(t, s.Block(0).Downsample())
		}
		checkShortcuts(t, net)
	}
}

func TestNetwork_ForwardShapes(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		name  string
		cfg   Config
		input tensor.Shape
		want  tensor.Shape
	}{
		{"basic head", tinyConfig(Basic, 10, true), tensor.Shape{2, 3, 32, 32}, tensor.Shape{2, 10}},
		{"basic features", tinyConfig(Basic, 10, false), tensor.Shape{2, 3, 64, 64}, tensor.Shape{2, 512, 2, 2}},
		{"bottleneck head", tinyConfig(Bottleneck, 7, true), tensor.Shape{2, 3, 32, 32}, tensor.Shape{2, 7}},
		{"bottleneck features", tinyConfig(Bottleneck, 7, false), tensor.Shape{2, 3, 40, 48}, tensor.Shape{2, 2048, 2, 2}},
		{"odd size", tinyConfig(Basic, 5, false), tensor.Shape{2, 3, 33, 33}, tensor.Shape{2, 512, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, err := New(tt.cfg, backend)
			require.NoError(t, err)

			predicted, err := net.OutputShape(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, predicted)

			out := net.Forward(tensor.Randn[float32](tt.input, backend))
			assert.Equal(t, tt.want, out.Shape())
			for _, v := range out.Data() {
				require.False(t, math.IsNaN(float64(v)))
			}
		})
	}
}

func TestNetwork_OutputShapeErrors(t *testing.T) {
	net, err := New(tinyConfig(Basic, 10, true), cpu.New())
	require.NoError(t, err)

	_, err = net.OutputShape(tensor.Shape{3, 32, 32})
	assert.Error(t, err)
	_, err = net.OutputShape(tensor.Shape{1, 1, 32, 32})
	assert.ErrorContains(t, err, "input channels")
	_, err = net.OutputShape(tensor.Shape{1, 3, 0, 32})
	assert.Error(t, err)
}

func TestNetwork_WrongChannelsPanics(t *testing.T) {
	backend := cpu.New()
	net, err := New(tinyConfig(Basic, 10, true), backend)
	require.NoError(t, err)

	assert.Panics(t, func() { net.Forward(tensor.Zeros[float32](tensor.Shape{2, 1, 32, 32}, backend)) })
}

func TestNetwork_Initialization(t *testing.T) {
	backend := cpu.New()
	net, err := New(tinyConfig(Bottleneck, 10, true), backend)
	require.NoError(t, err)

	summary := Summarize(net)
	require.NotEmpty(t, summary.ConvWeight)
	for _, w := range summary.ConvWeight {
		if w.Shape.NumElements() < 16384 {
			continue
		}
		_, fanOut := nn.Fans(w.Shape)
		expected := math.Sqrt(2 / float64(fanOut))
		assert.InDelta(t, expected, w.Std, expected*0.1, w.Name)
		assert.InDelta(t, 0, w.Mean, expected*0.1, w.Name)
	}

	sd := net.StateDict()
	for name, raw := range sd {
		switch {
		case len(raw.Shape()) == 4:
		case name == "fc.weight" || name == "fc.bias":
		case strings.HasSuffix(name, ".weight"), strings.HasSuffix(name, ".running_var"):
			assertAll(t, raw.AsFloat32(), 1, name)
		case strings.HasSuffix(name, ".bias"), strings.HasSuffix(name, ".running_mean"):
			assertAll(t, raw.AsFloat32(), 0, name)
		}
	}
}

func assertAll(t *testing.T, data []float32, want float32, name string) {
	t.Helper()
	for _, v := range data {
		if v != want {
			t.Errorf("%s: expected all %v, found %v", name, want, v)
			return
		}
	}
}

func TestNetwork_TrainEval(t *testing.T) {
	backend := cpu.New()
	net, err := New(tinyConfig(Basic, 4, true), backend)
	require.NoError(t, err)
	assert.True(t, net.IsTraining())

	x := tensor.Randn[float32](tensor.Shape{2, 3, 32, 32}, backend)
	_, bn1 := net.Stem()
	before := append([]float32(nil), bn1.RunningMean().AsFloat32()...)

	net.Eval()
	assert.False(t, net.IsTraining())
	for _, b := range net.Blocks() {
		assert.False(t, b.IsTraining())
		if ds := b.Downsample(); ds != nil {
			assert.False(t, ds.IsTraining())
		}
	}
	first := net.Forward(x).Clone()
	second := net.Forward(x)
	assert.Equal(t, first.Data(), second.Data(), "eval is deterministic")
	assert.Equal(t, before, bn1.RunningMean().AsFloat32(), "eval leaves running stats alone")

	net.Train()
	assert.True(t, net.IsTraining())
	net.Forward(x)
	assert.NotEqual(t, before, bn1.RunningMean().AsFloat32(), "training updates running stats")
}

func TestNetwork_StateDictKeys(t *testing.T) {
	backend := cpu.New()
	net, err := New(Config{Depth: 18, NumClasses: 10, IncludeTop: true}, backend)
	require.NoError(t, err)

	sd := net.StateDict()
	// 62 parameter tensors + 20 batch norms * 2 running buffers
	assert.Len(t, sd, 102)
	for _, key := range []string{
		"conv1.weight", "bn1.running_mean",
		"layer1.0.conv1.weight", "layer1.1.bn2.bias",
		"layer2.0.downsample.0.weight", "layer2.0.downsample.1.running_var",
		"layer4.1.conv2.weight", "fc.weight", "fc.bias",
	} {
		assert.Contains(t, sd, key)
	}
	assert.NotContains(t, sd, "layer1.0.downsample.0.weight")
	assert.NotContains(t, sd, "layer2.1.downsample.0.weight")
	assert.Equal(t, tensor.Shape{10, 512}, sd["fc.weight"].Shape())
	assert.Len(t, net.Parameters(), 62)

	headless, err := New(Config{Depth: 18, IncludeTop: false}, backend)
	require.NoError(t, err)
	assert.Len(t, headless.StateDict(), 100)
	assert.Nil(t, headless.Classifier())
}

func TestNetwork_LoadStateDict(t *testing.T) {
	backend := cpu.New()
	src, err := New(tinyConfig(Basic, 3, true), backend)
	require.NoError(t, err)
	dst, err := New(tinyConfig(Basic, 3, true), backend)
	require.NoError(t, err)

	sd := src.StateDict()
	sd["bn1.num_batches_tracked"] = tensor.MustNewRaw("test", tensor.Shape{1}, tensor.CPU)
	require.NoError(t, dst.LoadStateDict(sd))

	for name, raw := range src.StateDict() {
		assert.Equal(t, raw.AsFloat32(), dst.StateDict()[name].AsFloat32(), name)
	}

	// A headless network takes a full checkpoint and ignores fc.*.
	headless, err := New(tinyConfig(Basic, 3, false), backend)
	require.NoError(t, err)
	require.NoError(t, headless.LoadStateDict(src.StateDict()))
}

func TestNetwork_LoadStateDictErrors(t *testing.T) {
	backend := cpu.New()
	net, err := New(tinyConfig(Basic, 3, true), backend)
	require.NoError(t, err)
	conv1Before := append([]float32(nil), net.StateDict()["conv1.weight"].AsFloat32()...)

	other, err := New(tinyConfig(Basic, 5, true), backend)
	require.NoError(t, err)
	err = net.LoadStateDict(other.StateDict())
	assert.ErrorContains(t, err, "fc.weight: shape mismatch")
	assert.Equal(t, conv1Before, net.StateDict()["conv1.weight"].AsFloat32(), "nothing is copied on error")

	missing := other.StateDict()
	delete(missing, "layer3.0.bn2.running_var")
	err = net.LoadStateDict(missing)
	assert.ErrorContains(t, err, `missing key "layer3.0.bn2.running_var"`)

	src, err := New(tinyConfig(Basic, 3, true), backend)
	require.NoError(t, err)
	extra := src.StateDict()
	extra["layer5.0.conv1.weight"] = tensor.MustNewRaw("test", tensor.Shape{1}, tensor.CPU)
	assert.ErrorContains(t, net.LoadStateDict(extra), `unexpected key "layer5.0.conv1.weight"`)

	bottleneck, err := New(tinyConfig(Bottleneck, 3, true), backend)
	require.NoError(t, err)
	assert.Error(t, net.LoadStateDict(bottleneck.StateDict()))
}

func TestNetwork_GradientsReachEveryParameter(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net, err := New(tinyConfig(Bottleneck, 4, true), backend)
	require.NoError(t, err)

	x := tensor.Randn[float32](tensor.Shape{2, 3, 32, 32}, backend)
	backend.Tape().StartRecording()
	loss := nn.NewCrossEntropyLoss(backend).Forward(net.Forward(x), []int{1, 3})
	grads := autodiff.Backward(loss, backend)

	params := net.Parameters()
	assert.Equal(t, len(params), nn.AssignGrads(params, grads))
	for _, p := range params {
		g := p.Grad()
		require.NotNil(t, g)
		assert.Equal(t, p.Tensor().Shape(), g.Shape())
	}

	g := grads[x.Raw()]
	require.NotNil(t, g, "gradient flows back to the input")
	assert.Equal(t, x.Shape(), g.Shape())
}

func TestNew_InvalidConfig(t *testing.T) {
	backend := cpu.New()
	_, err := New(Config{Block: Basic, Layers: []int{2, 2, 2}, NumClasses: 10, IncludeTop: true}, backend)
	assert.Error(t, err)
	_, err = New(Config{Depth: 77, NumClasses: 10}, backend)
	assert.ErrorContains(t, err, "unknown resnet depth 77")
	_, err = New(Config{Block: Basic, Layers: []int{1, 1, 1, 1}, NumClasses: 0, IncludeTop: true}, backend)
	assert.ErrorContains(t, err, "num_classes")

	assert.Panics(t, func() { ResNet34(0, true, backend) })
}

func TestResNet34_EndToEnd224(t *testing.T) {
	if testing.Short() {
		t.Skip("full-resolution forward pass")
	}
	backend := cpu.New()
	net := ResNet34(DefaultNumClasses, true, backend)
	assert.Len(t, net.Blocks(), 16)

	logits := net.Forward(tensor.Randn[float32](tensor.Shape{2, 3, 224, 224}, backend))
	assert.Equal(t, tensor.Shape{2, 1000}, logits.Shape())

	features := ResNet34(DefaultNumClasses, false, backend)
	out, err := features.OutputShape(tensor.Shape{2, 3, 224, 224})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 512, 7, 7}, out)
}
