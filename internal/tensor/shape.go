package tensor

import (
	"fmt"
	"slices"
)

// Shape holds tensor dimensions, outermost first.
// Feature maps use the [batch, channels, height, width] layout.
type Shape []int

// NumElements returns the product of the dimensions (1 for a scalar).
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate reports the first non-positive dimension.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("dimension %d of %v is %d, must be positive", i, s, dim)
		}
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns an independent copy.
func (s Shape) Clone() Shape {
	return slices.Clone(s)
}

// NCHW splits a 4D feature-map shape into its dimensions.
func (s Shape) NCHW() (n, c, h, w int, err error) {
	if len(s) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("expected 4D [N,C,H,W], got %v", s)
	}
	return s[0], s[1], s[2], s[3], nil
}

// ComputeStrides returns row-major element strides.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

// WindowOutputSize is the length of a convolution or pooling sweep over one
// spatial axis:
//
//	out = (in + 2*padding - kernel) / stride + 1
//
// The result is below 1 when the padded input is shorter than the kernel.
func WindowOutputSize(in, kernel, stride, padding int) int {
	padded := in + 2*padding
	if padded < kernel {
		return 0
	}
	return (padded-kernel)/stride + 1
}

// BroadcastShapes aligns a and b from the right; a pair of dimensions is
// compatible when equal or when one is 1, and missing leading dimensions
// count as 1. The flag reports whether either side had to be stretched.
//
//	(2, 64, 7, 7) + (1, 64, 1, 1) → (2, 64, 7, 7), true
//	(4, 10)       + (10)          → (4, 10), true
//	(3, 4)        + (3, 5)        → error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	rank := max(len(a), len(b))
	out := make(Shape, rank)
	stretched := len(a) != len(b)

	dim := func(s Shape, i int) int {
		if j := len(s) - rank + i; j >= 0 {
			return s[j]
		}
		return 1
	}
	for i := range rank {
		da, db := dim(a, i), dim(b, i)
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
			stretched = true
		case db == 1:
			out[i] = da
			stretched = true
		default:
			return nil, false, fmt.Errorf("cannot broadcast %v with %v: dimension %d is %d vs %d", a, b, i, da, db)
		}
	}
	return out, stretched, nil
}
