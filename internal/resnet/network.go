package resnet

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// Network is a ResNet: stem, four stages and an optional classification head.
//
// Input is [N, 3, H, W]. With the head the output is logits [N, NumClasses];
// without it the output is the last stage's feature map
// [N, 512*expansion, ~H/32, ~W/32].
//
// A new network is in training mode, like a freshly constructed PyTorch
// module. Call Eval before inference so batch norm uses its running
// statistics.
type Network[B tensor.Backend] struct {
	cfg Config

	conv1   *nn.Conv2D[B]
	bn1     *nn.BatchNorm2D[B]
	relu    *nn.ReLU[B]
	maxpool *nn.MaxPool2D[B]

	stages [NumStages]*Stage[B]

	// Head, nil when cfg.IncludeTop is false.
	avgpool *nn.AdaptiveAvgPool2D[B]
	flatten *nn.Flatten[B]
	fc      *nn.Linear[B]

	backend B
}

// New builds a network from cfg, resolving cfg.Depth to a preset when Block
// or Layers are unset.
//
// Every convolution weight is drawn from the Kaiming normal distribution
// (fan_out, ReLU gain). Batch norms start at γ=1, β=0 and the classifier
// keeps the Linear layer's default initialization.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	cfg, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Network[B]{
		cfg:     cfg,
		conv1:   nn.NewConv2D(3, StageWidths[0], 7, 7, 2, 3, false, backend),
		bn1:     nn.NewBatchNorm2D(StageWidths[0], backend),
		relu:    nn.NewReLU[B](),
		maxpool: nn.NewMaxPool2D(3, 2, 1, backend),
		backend: backend,
	}

	inChannels := StageWidths[0]
	for i := range n.stages {
		n.stages[i] = BuildStage(&inChannels, cfg.Block, StageWidths[i], cfg.Layers[i], StageStrides[i], backend)
	}

	if cfg.IncludeTop {
		n.avgpool = nn.NewAdaptiveAvgPool2D(1, 1, backend)
		n.flatten = nn.NewFlatten[B](1)
		n.fc = nn.NewLinear(inChannels, cfg.NumClasses, backend)
	}

	n.initWeights()
	return n, nil
}

// initWeights applies Kaiming normal (fan_out) to every convolution weight.
// Convolution weights are the only 4D tensors in the network.
func (n *Network[B]) initWeights() {
	for _, raw := range n.StateDict() {
		if len(raw.Shape()) == 4 {
			nn.KaimingNormal(tensor.New[float32](raw, n.backend), nn.FanOut)
		}
	}
}

// Forward runs the network on a [N, 3, H, W] batch.
//
// There is no input validation of its own: a wrong channel count or an image
// too small for the stem panics inside the convolution or pooling layer.
func (n *Network[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x = n.conv1.Forward(x)
	x = n.bn1.Forward(x)
	x = n.relu.Forward(x)
	x = n.maxpool.Forward(x)

	for _, s := range n.stages {
		x = s.Forward(x)
	}

	if !n.cfg.IncludeTop {
		return x
	}

	x = n.avgpool.Forward(x)
	x = n.flatten.Forward(x)
	return n.fc.Forward(x)
}

// children lists the stateful sections in torchvision order.
func (n *Network[B]) children() []namedModule[B] {
	c := []namedModule[B]{
		{"conv1", n.conv1},
		{"bn1", n.bn1},
	}
	for i, s := range n.stages {
		c = append(c, namedModule[B]{fmt.Sprintf("layer%d", i+1), s})
	}
	if n.fc != nil {
		c = append(c, namedModule[B]{"fc", n.fc})
	}
	return c
}

// Parameters returns every trainable parameter in construction order.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	return parametersOf(n.children())
}

// NumParameters returns the number of trainable scalars.
func (n *Network[B]) NumParameters() int {
	return nn.CountParameters(n.Parameters())
}

// StateDict returns parameters and batch-norm running statistics keyed with
// torchvision names. The tensors are the network's own storage.
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(n.children())
}

// LoadStateDict copies stateDict into the network.
//
// Every key of StateDict must be present with the same shape, and no other
// keys may appear, except BatchNorm "num_batches_tracked" counters and "fc.*"
// when the network has no head. Nothing is copied unless the whole dict
// validates.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	own := n.StateDict()

	var errs []error
	for _, name := range sortedKeys(own) {
		src, ok := stateDict[name]
		if !ok {
			errs = append(errs, fmt.Errorf("missing key %q", name))
			continue
		}
		if src.DType() != tensor.Float32 {
			errs = append(errs, fmt.Errorf("%s: dtype mismatch: expected float32, got %v", name, src.DType()))
			continue
		}
		if !src.Shape().Equal(own[name].Shape()) {
			errs = append(errs, fmt.Errorf("%s: shape mismatch: expected %v, got %v", name, own[name].Shape(), src.Shape()))
		}
	}
	for _, name := range sortedKeys(stateDict) {
		if _, ok := own[name]; ok || n.ignorableKey(name) {
			continue
		}
		errs = append(errs, fmt.Errorf("unexpected key %q", name))
	}
	if len(errs) > 0 {
		return fmt.Errorf("resnet: load state dict: %w", errors.Join(errs...))
	}

	for name, dst := range own {
		if err := dst.CopyFrom(stateDict[name]); err != nil {
			return fmt.Errorf("resnet: load state dict: %s: %w", name, err)
		}
	}
	return nil
}

func (n *Network[B]) ignorableKey(name string) bool {
	if strings.HasSuffix(name, ".num_batches_tracked") {
		return true
	}
	return !n.cfg.IncludeTop && strings.HasPrefix(name, "fc.")
}

func sortedKeys(m map[string]*tensor.RawTensor) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Train puts every batch norm in training mode.
func (n *Network[B]) Train() {
	n.SetTraining(true)
}

// Eval puts every batch norm in evaluation mode.
func (n *Network[B]) Eval() {
	n.SetTraining(false)
}

// SetTraining sets the mode of every batch norm.
func (n *Network[B]) SetTraining(training bool) {
	setTrainingOf(n.children(), training)
}

// IsTraining reports whether the network is in training mode.
func (n *Network[B]) IsTraining() bool {
	return n.bn1.IsTraining()
}

// Config returns the resolved configuration.
func (n *Network[B]) Config() Config {
	return n.cfg
}

// Depth returns the number of weighted layers (34 for ResNet-34).
func (n *Network[B]) Depth() int {
	return n.cfg.NetworkDepth()
}

// Name returns "resnet<depth>".
func (n *Network[B]) Name() string {
	return fmt.Sprintf("resnet%d", n.Depth())
}

// Backend returns the backend the network computes on.
func (n *Network[B]) Backend() B {
	return n.backend
}

// Stem returns the stem convolution and batch norm.
func (n *Network[B]) Stem() (*nn.Conv2D[B], *nn.BatchNorm2D[B]) {
	return n.conv1, n.bn1
}

// Stages returns layer1..layer4.
func (n *Network[B]) Stages() []*Stage[B] {
	return n.stages[:]
}

// Blocks returns every residual block in order.
func (n *Network[B]) Blocks() []Block[B] {
	var blocks []Block[B]
	for _, s := range n.stages {
		blocks = append(blocks, s.Blocks()...)
	}
	return blocks
}

// Classifier returns the final linear layer, or nil without a head.
func (n *Network[B]) Classifier() *nn.Linear[B] {
	return n.fc
}

// FeatureChannels returns the channel count of the last stage (512*expansion).
func (n *Network[B]) FeatureChannels() int {
	return n.stages[NumStages-1].OutChannels()
}

// OutputShape returns the shape Forward produces for an input shape
// [N, C, H, W], or an error if the input cannot pass through the network.
func (n *Network[B]) OutputShape(input tensor.Shape) (tensor.Shape, error) {
	batch, channels, h, w, err := input.NCHW()
	if err != nil {
		return nil, err
	}
	if channels != n.conv1.InChannels() {
		return nil, fmt.Errorf("expected %d input channels, got %d", n.conv1.InChannels(), channels)
	}
	if batch < 1 || h < 1 || w < 1 {
		return nil, fmt.Errorf("invalid input shape %v", input)
	}

	step := func(k, s, p int) {
		h = tensor.WindowOutputSize(h, k, s, p)
		w = tensor.WindowOutputSize(w, k, s, p)
	}
	step(7, 2, 3) // conv1
	step(3, 2, 1) // maxpool
	for _, s := range n.stages {
		step(3, s.Stride(), 1)
	}

	if n.cfg.IncludeTop {
		return tensor.Shape{batch, n.cfg.NumClasses}, nil
	}
	return tensor.Shape{batch, n.FeatureChannels(), h, w}, nil
}
