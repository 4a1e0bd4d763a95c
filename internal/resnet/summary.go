package resnet

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// SectionSummary describes the stem, one stage, or the head.
type SectionSummary struct {
	Name        string
	Blocks      int
	Stride      int
	OutChannels int
	Downsample  bool // first block has a shortcut adapter
	Params      int
}

// WeightStats describes the values of one convolution weight.
type WeightStats struct {
	Name  string
	Shape tensor.Shape
	Mean  float64
	Std   float64
}

// Summary is a structural and statistical overview of a network.
type Summary struct {
	Name       string
	Block      BlockKind
	Layers     []int
	Blocks     int
	Params     int
	Sections   []SectionSummary
	ConvWeight []WeightStats // sorted by name
}

// Summarize reports per-section parameter counts and the mean and standard
// deviation of every convolution weight.
//
// Right after construction every conv std is close to sqrt(2/fan_out).
func Summarize[B tensor.Backend](n *Network[B]) Summary {
	cfg := n.Config()
	s := Summary{
		Name:   n.Name(),
		Block:  cfg.Block,
		Layers: append([]int(nil), cfg.Layers...),
		Blocks: len(n.Blocks()),
		Params: n.NumParameters(),
	}

	conv1, bn1 := n.Stem()
	s.Sections = append(s.Sections, SectionSummary{
		Name:        "stem",
		Stride:      4,
		OutChannels: conv1.OutChannels(),
		Params:      nn.CountParameters(conv1.Parameters()) + nn.CountParameters(bn1.Parameters()),
	})
	for i, stage := range n.Stages() {
		s.Sections = append(s.Sections, SectionSummary{
			Name:        fmt.Sprintf("layer%d", i+1),
			Blocks:      stage.Len(),
			Stride:      stage.Stride(),
			OutChannels: stage.OutChannels(),
			Downsample:  stage.Block(0).Downsample() != nil,
			Params:      nn.CountParameters(stage.Parameters()),
		})
	}
	if fc := n.Classifier(); fc != nil {
		s.Sections = append(s.Sections, SectionSummary{
			Name:        "fc",
			OutChannels: fc.OutFeatures(),
			Params:      nn.CountParameters(fc.Parameters()),
		})
	}

	for name, raw := range n.StateDict() {
		if len(raw.Shape()) != 4 || !strings.HasSuffix(name, "weight") {
			continue
		}
		mean, std := stat.MeanStdDev(toFloat64(raw.AsFloat32()), nil)
		s.ConvWeight = append(s.ConvWeight, WeightStats{Name: name, Shape: raw.Shape(), Mean: mean, Std: std})
	}
	sort.Slice(s.ConvWeight, func(i, j int) bool { return s.ConvWeight[i].Name < s.ConvWeight[j].Name })

	return s
}

func toFloat64(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}
