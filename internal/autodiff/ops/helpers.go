package ops

import "github.com/born-ml/resnet/internal/tensor"

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: bias[1,C,1,1] + x[N,C,H,W] -> y[N,C,H,W]
//	Backward: grad_y[N,C,H,W] -> grad_bias[1,C,1,1] (sum over N, H, W)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad
	}

	result := grad

	// Leading dimensions the target does not have.
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	// Dimensions where the target was broadcast from 1.
	for i, dim := range targetShape {
		if dim == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// broadcastTo expands t to shape by adding it onto zeros.
func broadcastTo(t *tensor.RawTensor, shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if t.Shape().Equal(shape) {
		return t
	}
	zeros := tensor.MustNewRaw("broadcastTo", shape, backend.Device())
	return backend.Add(zeros, t)
}
