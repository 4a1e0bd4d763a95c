package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/resnet/internal/tensor"
)

// FanMode selects which fan Kaiming initialization preserves variance for.
type FanMode int

const (
	// FanIn preserves the variance of activations in the forward pass.
	FanIn FanMode = iota
	// FanOut preserves the variance of gradients in the backward pass.
	FanOut
)

// Fans returns fan_in and fan_out of a weight shape.
//
// For Linear [out, in]: fan_in = in, fan_out = out.
// For Conv2D [out, in, kh, kw]: fan_in = in*kh*kw, fan_out = out*kh*kw.
func Fans(shape tensor.Shape) (fanIn, fanOut int) {
	if len(shape) < 2 {
		panic(fmt.Sprintf("init: fan computation needs at least 2 dimensions, got %v", shape))
	}
	receptive := tensor.Shape(shape[2:]).NumElements()
	return shape[1] * receptive, shape[0] * receptive
}

// Uniform returns a tensor of the given shape drawn from U(-bound, bound).
func Uniform[B tensor.Backend](shape tensor.Shape, bound float64, backend B) *tensor.Tensor[float32, B] {
	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32((rand.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return Uniform(shape, math.Sqrt(6.0/float64(fanIn+fanOut)), backend)
}

// FanInBound returns 1/sqrt(fanIn), the U(-b, b) bound of a classifier's
// weight and bias. For the weight this equals Kaiming uniform with a = sqrt(5).
func FanInBound(fanIn int) float64 {
	return 1 / math.Sqrt(float64(fanIn))
}

// KaimingNormal fills t in place with N(0, std²), std = gain / sqrt(fan),
// using the ReLU gain sqrt(2).
//
// With FanOut on a conv weight [out, in, kh, kw] this is the He et al.
// initialization ResNet uses for every convolution:
//
//	std = sqrt(2 / (out * kh * kw))
//
// Reference: "Delving Deep into Rectifiers" (He et al., 2015).
func KaimingNormal[B tensor.Backend](t *tensor.Tensor[float32, B], mode FanMode) {
	fanIn, fanOut := Fans(t.Shape())
	fan := fanIn
	if mode == FanOut {
		fan = fanOut
	}
	std := math.Sqrt2 / math.Sqrt(float64(fan))

	data := t.Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32(rand.NormFloat64() * std)
	}
}

// Zeros creates a tensor filled with zeros.
//
// This is commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}
