package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/tensor"
)

func TestFromSlice(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, x.Shape())
	assert.Equal(t, float32(6), x.At(1, 2))

	_, err = tensor.FromSlice([]float32{1, 2}, tensor.Shape{2, 3}, backend)
	assert.Error(t, err)
}

func TestTensor_AtSet(t *testing.T) {
	x := tensor.Zeros[float32](tensor.Shape{2, 3, 4}, cpu.New())
	x.Set(7, 1, 2, 3)
	assert.Equal(t, float32(7), x.At(1, 2, 3))
	assert.Equal(t, float32(7), x.Data()[23])

	assert.Panics(t, func() { x.At(2, 0, 0) })
	assert.Panics(t, func() { x.At(0, 0) })
}

func TestCreation(t *testing.T) {
	backend := cpu.New()

	ones := tensor.Ones[float32](tensor.Shape{3}, backend)
	assert.Equal(t, []float32{1, 1, 1}, ones.Data())

	full := tensor.Full[float32](tensor.Shape{2}, 2.5, backend)
	assert.Equal(t, []float32{2.5, 2.5}, full.Data())

	randn := tensor.Randn[float32](tensor.Shape{1000}, backend)
	var sum float64
	for _, v := range randn.Data() {
		sum += float64(v)
	}
	assert.InDelta(t, 0, sum/1000, 0.2)
}

func TestTensor_Reshape(t *testing.T) {
	x := tensor.Zeros[float32](tensor.Shape{2, 512, 1, 1}, cpu.New())

	assert.Equal(t, tensor.Shape{2, 512}, x.Reshape(2, -1).Shape())
	assert.Equal(t, tensor.Shape{2, 512}, x.Flatten(1).Shape())
	assert.Equal(t, tensor.Shape{1024}, x.Flatten(0).Shape())

	assert.Panics(t, func() { x.Reshape(-1, -1) })
	assert.Panics(t, func() { x.Reshape(3, -1) })
	assert.Panics(t, func() { x.Flatten(4) })
}

func TestTensor_Ops(t *testing.T) {
	backend := cpu.New()

	a, err := tensor.FromSlice([]float32{1, -2, 3, -4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float32{1, 1}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	assert.Equal(t, []float32{2, -1, 4, -3}, a.Add(b).Data())
	assert.Equal(t, []float32{1, -2, 3, -4}, a.Mul(b).Data())
	assert.Equal(t, []float32{1, 0, 3, 0}, a.ReLU().Data())
	assert.Equal(t, []float32{1, 3, -2, -4}, a.Transpose().Data())
	assert.Equal(t, []float32{4, -6}, a.SumDim(0, false).Data())
	assert.Equal(t, []float32{5, 11, 11, 25}, a.MatMul(a.Transpose()).Data())
}

func TestTensor_Clone(t *testing.T) {
	x := tensor.Ones[float32](tensor.Shape{2}, cpu.New())
	c := x.Clone()
	c.Set(5, 0)
	assert.Equal(t, float32(1), x.At(0))
	assert.Contains(t, x.String(), "float32")
}
