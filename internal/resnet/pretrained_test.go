package resnet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/tensor"
	"github.com/born-ml/resnet/internal/weights"
)

func TestSaveLoadWeights(t *testing.T) {
	backend := cpu.New()
	path := filepath.Join(t.TempDir(), "resnet.safetensors")

	src, err := New(tinyConfig(Basic, 4, true), backend)
	require.NoError(t, err)
	// Move the running statistics away from their initial values.
	src.Forward(tensor.Randn[float32](tensor.Shape{2, 3, 32, 32}, backend))
	require.NoError(t, SaveWeights(src, path))

	f, err := weights.ReadFile(path)
	require.NoError(t, err)
	meta := f.Metadata()
	assert.Equal(t, "resnet10", meta["arch"])
	assert.Equal(t, "basic", meta["block"])
	assert.Equal(t, "4", meta["num_classes"])
	assert.Len(t, f.Names(), len(src.StateDict()))

	dst, err := New(tinyConfig(Basic, 4, true), backend)
	require.NoError(t, err)
	require.NoError(t, LoadPretrained(dst, path))
	for name, raw := range src.StateDict() {
		assert.Equal(t, raw.AsFloat32(), dst.StateDict()[name].AsFloat32(), name)
	}

	src.Eval()
	dst.Eval()
	x := tensor.Randn[float32](tensor.Shape{1, 3, 32, 32}, backend)
	assert.Equal(t, src.Forward(x).Data(), dst.Forward(x).Data())
}

func TestLoadPretrained_Errors(t *testing.T) {
	backend := cpu.New()
	dir := t.TempDir()

	net, err := New(tinyConfig(Basic, 4, true), backend)
	require.NoError(t, err)
	assert.Error(t, LoadPretrained(net, filepath.Join(dir, "missing.safetensors")))

	other, err := New(tinyConfig(Bottleneck, 4, true), backend)
	require.NoError(t, err)
	path := filepath.Join(dir, "bottleneck.safetensors")
	require.NoError(t, SaveWeights(other, path))
	assert.ErrorContains(t, LoadPretrained(net, path), "resnet: load state dict")
}
