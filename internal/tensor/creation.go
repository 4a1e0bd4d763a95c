package tensor

import "math/rand"

// Zeros allocates a zero-filled tensor on the backend's device.
//
//	images := tensor.Zeros[float32](Shape{8, 3, 224, 224}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return New[T, B](MustNewRaw("zeros", shape, b.Device()), b)
}

// Ones allocates a tensor of ones, the batch norm scale at initialization.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, 1, b)
}

// Full allocates a tensor with every element set to value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return fill(Zeros[T, B](shape, b), func() T { return value })
}

// Randn allocates a tensor of standard normal samples, the usual stand-in
// for an image batch in tests and benchmarks.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	//nolint:gosec // statistical sampling, not security-critical
	return fill(Zeros[T, B](shape, b), func() T { return T(rand.NormFloat64()) })
}

func fill[T DType, B Backend](t *Tensor[T, B], next func() T) *Tensor[T, B] {
	data := t.Data()
	for i := range data {
		data[i] = next()
	}
	return t
}
