package tensor

import "fmt"

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones[float32](Shape{3, 1}, backend)
//	b := tensor.Ones[float32](Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5] (broadcasted)
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Add(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Mul(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// ReLU applies max(0, x) element-wise.
func (t *Tensor[T, B]) ReLU() *Tensor[T, B] {
	return New[T, B](t.backend.ReLU(t.raw), t.backend)
}

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.MatMul(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
// A single -1 dimension is inferred from the remaining ones.
//
// Example:
//
//	pooled := features.Reshape(n, -1) // [N, C, 1, 1] -> [N, C]
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	shape := inferShape(t.Shape(), newShape)
	result := t.backend.Reshape(t.raw, shape)
	return New[T, B](result, t.backend)
}

// Flatten collapses all dimensions from startDim onwards into one.
//
// Example:
//
//	x := tensor.Zeros[float32](Shape{2, 512, 1, 1}, backend)
//	x.Flatten(1) // [2, 512]
func (t *Tensor[T, B]) Flatten(startDim int) *Tensor[T, B] {
	shape := t.Shape()
	if startDim < 0 || startDim >= len(shape) {
		panic(fmt.Sprintf("flatten: start dim %d out of range for shape %v", startDim, shape))
	}

	newShape := make([]int, 0, startDim+1)
	newShape = append(newShape, shape[:startDim]...)
	newShape = append(newShape, Shape(shape[startDim:]).NumElements())
	return t.Reshape(newShape...)
}

// Transpose transposes the tensor by permuting its dimensions.
//
// If axes is empty, reverses all dimensions (for 2D, this is standard transpose).
// Otherwise, axes specifies the permutation.
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	result := t.backend.Transpose(t.raw, axes...)
	return New[T, B](result, t.backend)
}

// SumDim sums along a dimension.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.SumDim(t.raw, dim, keepDim), t.backend)
}

// inferShape resolves a single -1 entry in a requested shape.
func inferShape(current Shape, requested []int) Shape {
	shape := Shape(append([]int(nil), requested...))
	inferIdx := -1
	known := 1
	for i, dim := range shape {
		if dim == -1 {
			if inferIdx >= 0 {
				panic(fmt.Sprintf("reshape: only one dimension can be inferred, got %v", requested))
			}
			inferIdx = i
			continue
		}
		known *= dim
	}
	if inferIdx >= 0 {
		if known <= 0 || current.NumElements()%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension for %v from %v", requested, current))
		}
		shape[inferIdx] = current.NumElements() / known
	}
	return shape
}
