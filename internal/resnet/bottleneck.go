package resnet

import (
	"fmt"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// BottleneckBlock is the three-convolution residual block of ResNet-50/101/152:
//
//	x -> conv1x1 -> BN -> ReLU          (reduce to width)
//	  -> conv3x3(stride) -> BN -> ReLU  (spatial)
//	  -> conv1x1 -> BN                  (expand to width*4)
//	  -> (+ shortcut) -> ReLU
//
// The stride sits on the 3x3 convolution only, as in torchvision, so the main
// branch is downsampled once and matches the strided shortcut.
type BottleneckBlock[B tensor.Backend] struct {
	inChannels int
	width      int
	stride     int

	conv1      *nn.Conv2D[B]
	bn1        *nn.BatchNorm2D[B]
	conv2      *nn.Conv2D[B]
	bn2        *nn.BatchNorm2D[B]
	conv3      *nn.Conv2D[B]
	bn3        *nn.BatchNorm2D[B]
	relu       *nn.ReLU[B]
	downsample *nn.Sequential[B]
}

// NewBottleneckBlock creates a Bottleneck block producing width*4 channels.
func NewBottleneckBlock[B tensor.Backend](inChannels, width, stride int, downsample bool, backend B) *BottleneckBlock[B] {
	outChannels := width * Bottleneck.Expansion()
	if !downsample && NeedsDownsample(inChannels, outChannels, stride) {
		panic(fmt.Sprintf("resnet: bottleneck block %d->%d stride %d needs a downsample shortcut", inChannels, outChannels, stride))
	}

	b := &BottleneckBlock[B]{
		inChannels: inChannels,
		width:      width,
		stride:     stride,
		conv1:      conv1x1(inChannels, width, 1, backend),
		bn1:        nn.NewBatchNorm2D(width, backend),
		conv2:      conv3x3(width, width, stride, backend),
		bn2:        nn.NewBatchNorm2D(width, backend),
		conv3:      conv1x1(width, outChannels, 1, backend),
		bn3:        nn.NewBatchNorm2D(outChannels, backend),
		relu:       nn.NewReLU[B](),
	}
	if downsample {
		b.downsample = newDownsample(inChannels, outChannels, stride, backend)
	}
	return b
}

// Forward computes ReLU(main(x) + shortcut(x)).
func (b *BottleneckBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	identity := x

	out := b.relu.Forward(b.bn1.Forward(b.conv1.Forward(x)))
	out = b.relu.Forward(b.bn2.Forward(b.conv2.Forward(out)))
	out = b.bn3.Forward(b.conv3.Forward(out))

	if b.downsample != nil {
		identity = b.downsample.Forward(x)
	}

	return b.relu.Forward(out.Add(identity))
}

func (b *BottleneckBlock[B]) children() []namedModule[B] {
	c := []namedModule[B]{
		{"conv1", b.conv1},
		{"bn1", b.bn1},
		{"conv2", b.conv2},
		{"bn2", b.bn2},
		{"conv3", b.conv3},
		{"bn3", b.bn3},
	}
	if b.downsample != nil {
		c = append(c, namedModule[B]{"downsample", b.downsample})
	}
	return c
}

// Parameters returns conv and BN parameters, then the adapter's.
func (b *BottleneckBlock[B]) Parameters() []*nn.Parameter[B] {
	return parametersOf(b.children())
}

// StateDict returns the block's tensors.
func (b *BottleneckBlock[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(b.children())
}

// LoadStateDict loads the block's tensors.
func (b *BottleneckBlock[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictOf(b.children(), stateDict)
}

// SetTraining sets the mode of every batch norm in the block.
func (b *BottleneckBlock[B]) SetTraining(training bool) {
	setTrainingOf(b.children(), training)
}

// IsTraining reports the mode of the block.
func (b *BottleneckBlock[B]) IsTraining() bool {
	return b.bn1.IsTraining()
}

// Kind returns Bottleneck.
func (b *BottleneckBlock[B]) Kind() BlockKind { return Bottleneck }

// InChannels returns the input channel count.
func (b *BottleneckBlock[B]) InChannels() int { return b.inChannels }

// OutChannels returns width*4.
func (b *BottleneckBlock[B]) OutChannels() int { return b.width * Bottleneck.Expansion() }

// Stride returns the block stride.
func (b *BottleneckBlock[B]) Stride() int { return b.stride }

// Downsample returns the shortcut adapter, or nil.
func (b *BottleneckBlock[B]) Downsample() *nn.Sequential[B] { return b.downsample }

// Convs returns the main-branch convolutions in order.
func (b *BottleneckBlock[B]) Convs() []*nn.Conv2D[B] {
	return []*nn.Conv2D[B]{b.conv1, b.conv2, b.conv3}
}

// String returns a string representation of the block.
func (b *BottleneckBlock[B]) String() string {
	return fmt.Sprintf("BottleneckBlock(%d->%d, width=%d, stride=%d, downsample=%v)",
		b.inChannels, b.OutChannels(), b.width, b.stride, b.downsample != nil)
}
