package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/resnet/internal/tensor"
)

// MaxPool2D performs 2D max pooling with implicit negative-infinity padding.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height + 2*padding - kernelSize) / stride + 1
//	out_width  = (width + 2*padding - kernelSize) / stride + 1
//
// Padded positions never win the max, so each window takes the max over its
// in-bounds elements. Padding may be at most half the kernel size, which
// guarantees every window overlaps the input.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride, padding int) *tensor.RawTensor {
	n, c, h, w, hOut, wOut := poolGeometry("maxpool2d", input.Shape(), kernelSize, stride, padding)

	output := tensor.MustNewRaw("maxpool2d", tensor.Shape{n, c, hOut, wOut}, cpu.device)
	inputData := input.AsFloat32()
	outputData := output.AsFloat32()

	outIdx := 0
	for plane := 0; plane < n*c; plane++ {
		channelData := inputData[plane*h*w : (plane+1)*h*w]
		for oh := 0; oh < hOut; oh++ {
			hStart := oh*stride - padding
			for ow := 0; ow < wOut; ow++ {
				wStart := ow*stride - padding

				maxVal := float32(math.Inf(-1))
				for kh := 0; kh < kernelSize; kh++ {
					ih := hStart + kh
					if ih < 0 || ih >= h {
						continue
					}
					row := channelData[ih*w : (ih+1)*w]
					for kw := 0; kw < kernelSize; kw++ {
						iw := wStart + kw
						if iw < 0 || iw >= w {
							continue
						}
						if row[iw] > maxVal {
							maxVal = row[iw]
						}
					}
				}

				outputData[outIdx] = maxVal
				outIdx++
			}
		}
	}

	return output
}

// MaxPool2DBackward routes each output gradient to the input position that
// held the window maximum.
//
// maxIndices[i] is the flat input index selected for flat output index i;
// gradients of overlapping windows that picked the same position accumulate.
func (cpu *CPUBackend) MaxPool2DBackward(
	input, grad *tensor.RawTensor,
	maxIndices []int,
	kernelSize, stride, padding int,
) *tensor.RawTensor {
	n, c, _, _, hOut, wOut := poolGeometry("MaxPool2DBackward", input.Shape(), kernelSize, stride, padding)
	expected := tensor.Shape{n, c, hOut, wOut}
	if !grad.Shape().Equal(expected) {
		panic(fmt.Sprintf("MaxPool2DBackward: gradient shape %v != output shape %v", grad.Shape(), expected))
	}
	if len(maxIndices) != grad.NumElements() {
		panic(fmt.Sprintf("MaxPool2DBackward: %d max indices for %d outputs", len(maxIndices), grad.NumElements()))
	}

	inputGrad := tensor.MustNewRaw("MaxPool2DBackward", input.Shape(), cpu.device)
	inputGradData := inputGrad.AsFloat32()
	for i, g := range grad.AsFloat32() {
		if idx := maxIndices[i]; idx >= 0 {
			inputGradData[idx] += g
		}
	}
	return inputGrad
}

// poolGeometry validates a pooling configuration and returns
// N, C, H, W and the output spatial size.
func poolGeometry(op string, shape tensor.Shape, kernelSize, stride, padding int) (n, c, h, w, hOut, wOut int) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: expected 4D input [N,C,H,W], got %dD", op, len(shape)))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("%s: invalid kernel size %d", op, kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %d", op, stride))
	}
	if padding < 0 || 2*padding > kernelSize {
		panic(fmt.Sprintf("%s: padding %d must be in [0, kernel/2] for kernel %d", op, padding, kernelSize))
	}

	n, c, h, w = shape[0], shape[1], shape[2], shape[3]
	if h+2*padding < kernelSize || w+2*padding < kernelSize {
		panic(fmt.Sprintf("%s: kernel size %d too large for input %dx%d (padding=%d)", op, kernelSize, h, w, padding))
	}
	hOut = tensor.WindowOutputSize(h, kernelSize, stride, padding)
	wOut = tensor.WindowOutputSize(w, kernelSize, stride, padding)
	return n, c, h, w, hOut, wOut
}
