// Package resnet builds the ResNet family of image classifiers out of the
// layers in internal/nn.
//
// A network is a stem (7x7/2 convolution, batch norm, ReLU, 3x3/2 max pool),
// four stages of residual blocks at widths 64, 128, 256 and 512 with strides
// 1, 2, 2, 2, and an optional head (global average pool, flatten, linear).
// Stages are made of Basic blocks (two 3x3 convolutions) or Bottleneck blocks
// (1x1 reduce, 3x3, 1x1 expand by 4).
//
// Parameter names follow torchvision ("layer2.0.downsample.1.running_var"),
// so converted torchvision checkpoints load one-to-one.
package resnet

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// BlockKind selects the residual block variant.
type BlockKind int

// Block variants. The zero value means "not set".
const (
	Basic BlockKind = iota + 1
	Bottleneck
)

// Expansion returns the ratio of a block's output channels to its width:
// 1 for Basic, 4 for Bottleneck.
func (k BlockKind) Expansion() int {
	switch k {
	case Basic:
		return 1
	case Bottleneck:
		return 4
	default:
		panic(fmt.Sprintf("resnet: invalid block kind %d", int(k)))
	}
}

// LayersPerBlock returns the number of weighted layers in one block.
func (k BlockKind) LayersPerBlock() int {
	if k == Bottleneck {
		return 3
	}
	return 2
}

// String returns "basic" or "bottleneck".
func (k BlockKind) String() string {
	switch k {
	case Basic:
		return "basic"
	case Bottleneck:
		return "bottleneck"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// ParseBlockKind parses "basic" or "bottleneck" (case-insensitive).
func ParseBlockKind(s string) (BlockKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return Basic, nil
	case "bottleneck":
		return Bottleneck, nil
	default:
		return 0, fmt.Errorf("unknown block kind %q (want basic or bottleneck)", s)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *BlockKind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	kind, err := ParseBlockKind(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*k = kind
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (k BlockKind) MarshalYAML() (any, error) {
	return k.String(), nil
}

// Block is a residual block:
//
//	out = ReLU(main(x) + shortcut(x))
//
// where shortcut is the identity, or a 1x1 convolution with batch norm (the
// downsample adapter) when the block changes stride or channel count.
type Block[B tensor.Backend] interface {
	nn.Module[B]
	nn.Stateful
	nn.Trainable

	Kind() BlockKind
	InChannels() int
	OutChannels() int
	Stride() int

	// Downsample returns the shortcut adapter, or nil for an identity shortcut.
	Downsample() *nn.Sequential[B]
}

// NeedsDownsample reports whether a block taking inChannels and producing
// outChannels at the given stride needs a shortcut adapter.
func NeedsDownsample(inChannels, outChannels, stride int) bool {
	return stride != 1 || inChannels != outChannels
}

// NewBlock creates a block of the given kind.
//
// width is the block's internal channel count; its output has
// width*kind.Expansion() channels.
func NewBlock[B tensor.Backend](kind BlockKind, inChannels, width, stride int, downsample bool, backend B) Block[B] {
	switch kind {
	case Basic:
		return NewBasicBlock(inChannels, width, stride, downsample, backend)
	case Bottleneck:
		return NewBottleneckBlock(inChannels, width, stride, downsample, backend)
	default:
		panic(fmt.Sprintf("resnet: invalid block kind %d", int(kind)))
	}
}

// newDownsample builds the shortcut adapter: 1x1 convolution (no bias) at
// the block stride, then batch norm.
func newDownsample[B tensor.Backend](inChannels, outChannels, stride int, backend B) *nn.Sequential[B] {
	return nn.NewSequential[B](
		nn.NewConv2D(inChannels, outChannels, 1, 1, stride, 0, false, backend),
		nn.NewBatchNorm2D(outChannels, backend),
	)
}

// conv3x3 is a 3x3 convolution with padding 1 and no bias.
func conv3x3[B tensor.Backend](inChannels, outChannels, stride int, backend B) *nn.Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, 3, 3, stride, 1, false, backend)
}

// conv1x1 is a 1x1 convolution with no bias.
func conv1x1[B tensor.Backend](inChannels, outChannels, stride int, backend B) *nn.Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, 1, 1, stride, 0, false, backend)
}

// namedModule pairs a child module with its state dict prefix.
type namedModule[B tensor.Backend] struct {
	name   string
	module nn.Module[B]
}

// Helpers over named children, shared by blocks, stages and the network.

func stateDictOf[B tensor.Backend](children []namedModule[B]) map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for _, c := range children {
		if st, ok := c.module.(nn.Stateful); ok {
			nn.MergeStateDict(sd, c.name, st.StateDict())
		}
	}
	return sd
}

func loadStateDictOf[B tensor.Backend](children []namedModule[B], stateDict map[string]*tensor.RawTensor) error {
	for _, c := range children {
		st, ok := c.module.(nn.Stateful)
		if !ok {
			continue
		}
		if err := st.LoadStateDict(nn.SubStateDict(stateDict, c.name)); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

func parametersOf[B tensor.Backend](children []namedModule[B]) []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, c := range children {
		params = append(params, c.module.Parameters()...)
	}
	return params
}

func setTrainingOf[B tensor.Backend](children []namedModule[B], training bool) {
	for _, c := range children {
		nn.SetTraining(c.module, training)
	}
}
