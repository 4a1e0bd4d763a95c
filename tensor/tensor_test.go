// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/backend/cpu"
	"github.com/born-ml/resnet/tensor"
)

func TestPublicTensorAPI(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	y := tensor.Full[float32](tensor.Shape{2, 3}, 1, backend)

	sum := x.Add(y)
	assert.Equal(t, []float32{2, 3, 4, 5, 6, 7}, sum.Data())
	assert.Equal(t, tensor.Float32, sum.DType())

	prod := x.MatMul(tensor.Ones[float32](tensor.Shape{3, 1}, backend))
	assert.Equal(t, tensor.Shape{2, 1}, prod.Shape())
	assert.Equal(t, []float32{6, 15}, prod.Data())

	assert.Equal(t, tensor.Shape{2, 1, 1, 3}, x.Reshape(2, 1, 1, 3).Shape())
	assert.Equal(t, 24, tensor.Zeros[float32](tensor.Shape{2, 3, 4}, backend).NumElements())
}

func TestPublicBroadcastShapes(t *testing.T) {
	shape, broadcastA, err := tensor.BroadcastShapes(tensor.Shape{1, 64, 1, 1}, tensor.Shape{8, 64, 14, 14})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{8, 64, 14, 14}, shape)
	assert.True(t, broadcastA)

	_, _, err = tensor.BroadcastShapes(tensor.Shape{3}, tensor.Shape{4})
	assert.Error(t, err)
}
