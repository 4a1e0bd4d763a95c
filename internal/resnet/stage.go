package resnet

import (
	"fmt"
	"strconv"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// Stage is a run of residual blocks at one width (torchvision's layer1..layer4).
//
// Only the first block may change stride or channel count; its state dict
// keys start with "0.", the next block's with "1.", and so on.
type Stage[B tensor.Backend] struct {
	blocks []Block[B]
}

// BuildStage chains blocks residual blocks of the given kind and width.
//
// The first block gets the stride and, if stride != 1 or *inChannels !=
// width*kind.Expansion(), a downsample shortcut. The remaining blocks use
// stride 1 and identity shortcuts. On return *inChannels holds the stage's
// output channel count, ready for the next stage.
//
//	inChannels := 64
//	layer1 := resnet.BuildStage(&inChannels, resnet.Bottleneck, 64, 3, 1, backend)
//	// inChannels == 256, layer1.Block(0).Downsample() != nil
func BuildStage[B tensor.Backend](inChannels *int, kind BlockKind, width, blocks, stride int, backend B) *Stage[B] {
	if blocks <= 0 {
		panic(fmt.Sprintf("resnet: stage needs at least one block, got %d", blocks))
	}
	if width <= 0 || stride <= 0 {
		panic(fmt.Sprintf("resnet: invalid stage width %d or stride %d", width, stride))
	}

	outChannels := width * kind.Expansion()
	downsample := NeedsDownsample(*inChannels, outChannels, stride)

	s := &Stage[B]{blocks: make([]Block[B], 0, blocks)}
	s.blocks = append(s.blocks, NewBlock(kind, *inChannels, width, stride, downsample, backend))
	*inChannels = outChannels
	for i := 1; i < blocks; i++ {
		s.blocks = append(s.blocks, NewBlock(kind, *inChannels, width, 1, false, backend))
	}
	return s
}

// Forward runs the blocks in order.
func (s *Stage[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	for _, b := range s.blocks {
		x = b.Forward(x)
	}
	return x
}

func (s *Stage[B]) children() []namedModule[B] {
	c := make([]namedModule[B], len(s.blocks))
	for i, b := range s.blocks {
		c[i] = namedModule[B]{strconv.Itoa(i), b}
	}
	return c
}

// Parameters returns the parameters of every block.
func (s *Stage[B]) Parameters() []*nn.Parameter[B] {
	return parametersOf(s.children())
}

// StateDict returns the tensors of every block under its index.
func (s *Stage[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(s.children())
}

// LoadStateDict loads every block from the entries under its index.
func (s *Stage[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictOf(s.children(), stateDict)
}

// SetTraining sets the mode of every block.
func (s *Stage[B]) SetTraining(training bool) {
	setTrainingOf(s.children(), training)
}

// IsTraining reports the mode of the first block.
func (s *Stage[B]) IsTraining() bool {
	return s.blocks[0].IsTraining()
}

// Len returns the number of blocks.
func (s *Stage[B]) Len() int {
	return len(s.blocks)
}

// Block returns the i-th block.
func (s *Stage[B]) Block(i int) Block[B] {
	return s.blocks[i]
}

// Blocks returns all blocks.
func (s *Stage[B]) Blocks() []Block[B] {
	return s.blocks
}

// Stride returns the stage stride (that of its first block).
func (s *Stage[B]) Stride() int {
	return s.blocks[0].Stride()
}

// OutChannels returns the stage's output channel count.
func (s *Stage[B]) OutChannels() int {
	return s.blocks[len(s.blocks)-1].OutChannels()
}
