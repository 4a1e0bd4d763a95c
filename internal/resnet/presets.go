package resnet

import (
	"fmt"
	"sort"

	"github.com/born-ml/resnet/internal/tensor"
)

// PretrainedBaseURL is where torchvision publishes its ImageNet weights.
const PretrainedBaseURL = "https://download.pytorch.org/models/"

// Architecture is a named preset: block variant, blocks per stage and the
// canonical pretrained weights for that exact layout.
type Architecture struct {
	Depth  int
	Block  BlockKind
	Layers [NumStages]int
	URL    string
}

// Name returns "resnet<depth>".
func (a Architecture) Name() string {
	return fmt.Sprintf("resnet%d", a.Depth)
}

// Config returns the network config for this preset.
func (a Architecture) Config(numClasses int, includeTop bool) Config {
	return Config{
		Depth:      a.Depth,
		Block:      a.Block,
		Layers:     append([]int(nil), a.Layers[:]...),
		NumClasses: numClasses,
		IncludeTop: includeTop,
	}
}

var presets = map[int]Architecture{
	18:  {Depth: 18, Block: Basic, Layers: [NumStages]int{2, 2, 2, 2}, URL: PretrainedBaseURL + "resnet18-5c106cde.pth"},
	34:  {Depth: 34, Block: Basic, Layers: [NumStages]int{3, 4, 6, 3}, URL: PretrainedBaseURL + "resnet34-333f7ec4.pth"},
	50:  {Depth: 50, Block: Bottleneck, Layers: [NumStages]int{3, 4, 6, 3}, URL: PretrainedBaseURL + "resnet50-19c8e357.pth"},
	101: {Depth: 101, Block: Bottleneck, Layers: [NumStages]int{3, 4, 23, 3}, URL: PretrainedBaseURL + "resnet101-5d3b4d8f.pth"},
	152: {Depth: 152, Block: Bottleneck, Layers: [NumStages]int{3, 8, 36, 3}, URL: PretrainedBaseURL + "resnet152-b121ed2d.pth"},
}

// Preset returns the architecture for a standard depth (18, 34, 50, 101, 152).
func Preset(depth int) (Architecture, error) {
	arch, ok := presets[depth]
	if !ok {
		return Architecture{}, fmt.Errorf("unknown resnet depth %d (available: %v)", depth, Depths())
	}
	return arch, nil
}

// Depths returns the available preset depths in increasing order.
func Depths() []int {
	depths := make([]int, 0, len(presets))
	for d := range presets {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	return depths
}

// FromPreset builds the network for a preset depth.
func FromPreset[B tensor.Backend](depth, numClasses int, includeTop bool, backend B) (*Network[B], error) {
	arch, err := Preset(depth)
	if err != nil {
		return nil, err
	}
	return New(arch.Config(numClasses, includeTop), backend)
}

func mustPreset[B tensor.Backend](depth, numClasses int, includeTop bool, backend B) *Network[B] {
	net, err := FromPreset(depth, numClasses, includeTop, backend)
	if err != nil {
		panic(fmt.Sprintf("resnet%d: %v", depth, err))
	}
	return net
}

// ResNet18 builds a Basic-block network with [2, 2, 2, 2] blocks.
func ResNet18[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return mustPreset(18, numClasses, includeTop, backend)
}

// ResNet34 builds a Basic-block network with [3, 4, 6, 3] blocks.
//
// Panics if includeTop is set and numClasses is not positive.
//
//	net := resnet.ResNet34(resnet.DefaultNumClasses, true, cpu.New())
//	logits := net.Forward(images) // [N, 3, 224, 224] -> [N, 1000]
func ResNet34[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return mustPreset(34, numClasses, includeTop, backend)
}

// ResNet50 builds a Bottleneck network with [3, 4, 6, 3] blocks.
func ResNet50[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return mustPreset(50, numClasses, includeTop, backend)
}

// ResNet101 builds a Bottleneck network with [3, 4, 23, 3] blocks.
func ResNet101[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return mustPreset(101, numClasses, includeTop, backend)
}

// ResNet152 builds a Bottleneck network with [3, 8, 36, 3] blocks.
func ResNet152[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return mustPreset(152, numClasses, includeTop, backend)
}
