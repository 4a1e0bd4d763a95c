package resnet

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/backend/cpu"
)

func TestSummarize(t *testing.T) {
	net, err := New(tinyConfig(Basic, 10, true), cpu.New())
	require.NoError(t, err)

	s := Summarize(net)
	assert.Equal(t, "resnet10", s.Name)
	assert.Equal(t, Basic, s.Block)
	assert.Equal(t, []int{1, 1, 1, 1}, s.Layers)
	assert.Equal(t, 4, s.Blocks)
	assert.Equal(t, net.NumParameters(), s.Params)

	require.Len(t, s.Sections, 6)
	names := make([]string, len(s.Sections))
	total := 0
	for i, sec := range s.Sections {
		names[i] = sec.Name
		total += sec.Params
	}
	assert.Equal(t, []string{"stem", "layer1", "layer2", "layer3", "layer4", "fc"}, names)
	assert.Equal(t, s.Params, total)

	stem := s.Sections[0]
	assert.Equal(t, 4, stem.Stride)
	assert.Equal(t, 64*3*7*7+2*64, stem.Params)

	assert.False(t, s.Sections[1].Downsample)
	for _, sec := range s.Sections[2:5] {
		assert.True(t, sec.Downsample, sec.Name)
		assert.Equal(t, 2, sec.Stride, sec.Name)
	}
	assert.Equal(t, 512, s.Sections[4].OutChannels)
	assert.Equal(t, 10, s.Sections[5].OutChannels)
	assert.Equal(t, 512*10+10, s.Sections[5].Params)

	// conv1 + 2 per block + 3 adapters
	assert.Len(t, s.ConvWeight, 1+2*4+3)
	assert.True(t, sort.SliceIsSorted(s.ConvWeight, func(i, j int) bool {
		return s.ConvWeight[i].Name < s.ConvWeight[j].Name
	}))
}

func TestSummarize_Headless(t *testing.T) {
	net, err := New(tinyConfig(Bottleneck, 0, false), cpu.New())
	require.NoError(t, err)

	s := Summarize(net)
	require.Len(t, s.Sections, 5)
	assert.Equal(t, "layer4", s.Sections[4].Name)
	assert.True(t, s.Sections[1].Downsample, "bottleneck stage 1 widens 64 -> 256")
	assert.Equal(t, 2048, s.Sections[4].OutChannels)
}
