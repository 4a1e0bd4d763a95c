package cpu

import (
	"fmt"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// convGeometry holds the dimensions of one convolution.
type convGeometry struct {
	n, cIn, h, w     int // input [N, C_in, H, W]
	cOut, kH, kW     int // kernel [C_out, C_in, K_h, K_w]
	hOut, wOut       int // output spatial size
	stride, padding  int
	colRows, colCols int // im2col matrix [C_in*K_h*K_w, H_out*W_out]
}

// newConvGeometry validates shapes and computes output dimensions.
//
//	out_h = (H + 2*padding - K_h) / stride + 1
//	out_w = (W + 2*padding - K_w) / stride + 1
func newConvGeometry(op string, inputShape, kernelShape tensor.Shape, stride, padding int) convGeometry {
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", op, len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride %d or padding %d", op, stride, padding))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, inputShape[1], kernelShape[1]))
	}

	g := convGeometry{
		n: inputShape[0], cIn: inputShape[1], h: inputShape[2], w: inputShape[3],
		cOut: kernelShape[0], kH: kernelShape[2], kW: kernelShape[3],
		stride: stride, padding: padding,
	}
	g.hOut = tensor.WindowOutputSize(g.h, g.kH, stride, padding)
	g.wOut = tensor.WindowOutputSize(g.w, g.kW, stride, padding)
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("%s: input %dx%d too small for kernel %dx%d (stride=%d, padding=%d)",
			op, g.h, g.w, g.kH, g.kW, stride, padding))
	}
	g.colRows = g.cIn * g.kH * g.kW
	g.colCols = g.hOut * g.wOut
	return g
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Algorithm, per image:
//  1. im2col: unfold input patches into a [C_in*K_h*K_w, H_out*W_out] matrix
//  2. output[c_out] = kernel[c_out] (as a row) @ col
//
// Output channels are independent and are computed in parallel.
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("conv2d", input.Shape(), kernel.Shape(), stride, padding)

	output := tensor.MustNewRaw("conv2d", tensor.Shape{g.n, g.cOut, g.hOut, g.wOut}, cpu.device)

	inputData := input.AsFloat32()
	kernelData := kernel.AsFloat32()
	outputData := output.AsFloat32()

	col := make([]float32, g.colRows*g.colCols)
	inPlane := g.cIn * g.h * g.w
	outPlane := g.cOut * g.colCols

	for b := 0; b < g.n; b++ {
		im2col(col, inputData[b*inPlane:(b+1)*inPlane], g)
		out := outputData[b*outPlane : (b+1)*outPlane]

		parallel.For(g.cOut, g.colRows*g.colCols, func(co int) {
			dst := out[co*g.colCols : (co+1)*g.colCols]
			weights := kernelData[co*g.colRows : (co+1)*g.colRows]
			for r, wv := range weights {
				if wv == 0 {
					continue
				}
				src := col[r*g.colCols : (r+1)*g.colCols]
				for p, v := range src {
					dst[p] += wv * v
				}
			}
		}, cpu.par)
	}

	return output
}

// im2col unfolds one image [C, H, W] into col [C*K_h*K_w, H_out*W_out].
//
// Row r = (c*K_h + kh)*K_w + kw holds, for every output position, the input
// value under kernel tap (kh, kw) of channel c. Positions falling into the
// zero padding are written as 0.
func im2col(col, image []float32, g convGeometry) {
	for c := 0; c < g.cIn; c++ {
		plane := image[c*g.h*g.w : (c+1)*g.h*g.w]
		for kh := 0; kh < g.kH; kh++ {
			for kw := 0; kw < g.kW; kw++ {
				row := col[((c*g.kH+kh)*g.kW+kw)*g.colCols:]
				idx := 0
				for oh := 0; oh < g.hOut; oh++ {
					ih := oh*g.stride - g.padding + kh
					if ih < 0 || ih >= g.h {
						for ow := 0; ow < g.wOut; ow++ {
							row[idx] = 0
							idx++
						}
						continue
					}
					src := plane[ih*g.w : (ih+1)*g.w]
					for ow := 0; ow < g.wOut; ow++ {
						iw := ow*g.stride - g.padding + kw
						if iw >= 0 && iw < g.w {
							row[idx] = src[iw]
						} else {
							row[idx] = 0
						}
						idx++
					}
				}
			}
		}
	}
}

// col2im accumulates col [C*K_h*K_w, H_out*W_out] back into image [C, H, W].
// It is the adjoint of im2col: padded positions are dropped.
func col2im(image, col []float32, g convGeometry, c int) {
	plane := image[c*g.h*g.w : (c+1)*g.h*g.w]
	for kh := 0; kh < g.kH; kh++ {
		for kw := 0; kw < g.kW; kw++ {
			row := col[((c*g.kH+kh)*g.kW+kw)*g.colCols:]
			idx := 0
			for oh := 0; oh < g.hOut; oh++ {
				ih := oh*g.stride - g.padding + kh
				if ih < 0 || ih >= g.h {
					idx += g.wOut
					continue
				}
				dst := plane[ih*g.w : (ih+1)*g.w]
				for ow := 0; ow < g.wOut; ow++ {
					iw := ow*g.stride - g.padding + kw
					if iw >= 0 && iw < g.w {
						dst[iw] += row[idx]
					}
					idx++
				}
			}
		}
	}
}
