package resnet

import (
	"fmt"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// BasicBlock is the two-convolution residual block of ResNet-18/34:
//
//	x -> conv3x3(stride) -> BN -> ReLU -> conv3x3 -> BN -> (+ shortcut) -> ReLU
//
// Output channels equal width (expansion 1).
type BasicBlock[B tensor.Backend] struct {
	inChannels int
	width      int
	stride     int

	conv1      *nn.Conv2D[B]
	bn1        *nn.BatchNorm2D[B]
	conv2      *nn.Conv2D[B]
	bn2        *nn.BatchNorm2D[B]
	relu       *nn.ReLU[B]
	downsample *nn.Sequential[B] // nil for identity shortcut
}

// NewBasicBlock creates a Basic block. The first convolution carries the stride.
func NewBasicBlock[B tensor.Backend](inChannels, width, stride int, downsample bool, backend B) *BasicBlock[B] {
	if !downsample && NeedsDownsample(inChannels, width, stride) {
		panic(fmt.Sprintf("resnet: basic block %d->%d stride %d needs a downsample shortcut", inChannels, width, stride))
	}

	b := &BasicBlock[B]{
		inChannels: inChannels,
		width:      width,
		stride:     stride,
		conv1:      conv3x3(inChannels, width, stride, backend),
		bn1:        nn.NewBatchNorm2D(width, backend),
		conv2:      conv3x3(width, width, 1, backend),
		bn2:        nn.NewBatchNorm2D(width, backend),
		relu:       nn.NewReLU[B](),
	}
	if downsample {
		b.downsample = newDownsample(inChannels, width, stride, backend)
	}
	return b
}

// Forward computes ReLU(main(x) + shortcut(x)).
func (b *BasicBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	identity := x

	out := b.relu.Forward(b.bn1.Forward(b.conv1.Forward(x)))
	out = b.bn2.Forward(b.conv2.Forward(out))

	if b.downsample != nil {
		identity = b.downsample.Forward(x)
	}

	return b.relu.Forward(out.Add(identity))
}

func (b *BasicBlock[B]) children() []namedModule[B] {
	c := []namedModule[B]{
		{"conv1", b.conv1},
		{"bn1", b.bn1},
		{"conv2", b.conv2},
		{"bn2", b.bn2},
	}
	if b.downsample != nil {
		c = append(c, namedModule[B]{"downsample", b.downsample})
	}
	return c
}

// Parameters returns conv and BN parameters, then the adapter's.
func (b *BasicBlock[B]) Parameters() []*nn.Parameter[B] {
	return parametersOf(b.children())
}

// StateDict returns the block's tensors keyed conv1.weight, bn1.running_mean, ...
func (b *BasicBlock[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(b.children())
}

// LoadStateDict loads the block's tensors.
func (b *BasicBlock[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictOf(b.children(), stateDict)
}

// SetTraining sets the mode of every batch norm in the block.
func (b *BasicBlock[B]) SetTraining(training bool) {
	setTrainingOf(b.children(), training)
}

// IsTraining reports the mode of the block.
func (b *BasicBlock[B]) IsTraining() bool {
	return b.bn1.IsTraining()
}

// Kind returns Basic.
func (b *BasicBlock[B]) Kind() BlockKind { return Basic }

// InChannels returns the input channel count.
func (b *BasicBlock[B]) InChannels() int { return b.inChannels }

// OutChannels returns the output channel count.
func (b *BasicBlock[B]) OutChannels() int { return b.width }

// Stride returns the block stride.
func (b *BasicBlock[B]) Stride() int { return b.stride }

// Downsample returns the shortcut adapter, or nil.
func (b *BasicBlock[B]) Downsample() *nn.Sequential[B] { return b.downsample }

// Convs returns the main-branch convolutions in order.
func (b *BasicBlock[B]) Convs() []*nn.Conv2D[B] {
	return []*nn.Conv2D[B]{b.conv1, b.conv2}
}

// String returns a string representation of the block.
func (b *BasicBlock[B]) String() string {
	return fmt.Sprintf("BasicBlock(%d->%d, stride=%d, downsample=%v)", b.inChannels, b.width, b.stride, b.downsample != nil)
}
