package cpu

import (
	"fmt"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// checkConvGrad panics if grad does not have the convolution's output shape.
func checkConvGrad(op string, grad *tensor.RawTensor, g convGeometry) {
	expected := tensor.Shape{g.n, g.cOut, g.hOut, g.wOut}
	if !grad.Shape().Equal(expected) {
		panic(fmt.Sprintf("%s: gradient shape %v != output shape %v", op, grad.Shape(), expected))
	}
}

// Conv2DInputBackward computes the gradient w.r.t. the convolution input.
//
// Per image, the column gradient is kernelᵀ @ grad:
//
//	dcol[r, p] = Σ_c_out kernel[c_out, r] * grad[c_out, p]
//
// and col2im folds it back onto the input grid (transposed convolution).
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("Conv2DInputBackward", input.Shape(), kernel.Shape(), stride, padding)
	checkConvGrad("Conv2DInputBackward", grad, g)

	inputGrad := tensor.MustNewRaw("Conv2DInputBackward", input.Shape(), cpu.device)

	kernelData := kernel.AsFloat32()
	gradData := grad.AsFloat32()
	inputGradData := inputGrad.AsFloat32()

	dcol := make([]float32, g.colRows*g.colCols)
	inPlane := g.cIn * g.h * g.w
	outPlane := g.cOut * g.colCols

	for b := 0; b < g.n; b++ {
		gradImage := gradData[b*outPlane : (b+1)*outPlane]

		parallel.For(g.colRows, g.cOut*g.colCols, func(r int) {
			dst := dcol[r*g.colCols : (r+1)*g.colCols]
			for p := range dst {
				dst[p] = 0
			}
			for co := 0; co < g.cOut; co++ {
				wv := kernelData[co*g.colRows+r]
				if wv == 0 {
					continue
				}
				src := gradImage[co*g.colCols : (co+1)*g.colCols]
				for p, v := range src {
					dst[p] += wv * v
				}
			}
		}, cpu.par)

		image := inputGradData[b*inPlane : (b+1)*inPlane]
		parallel.For(g.cIn, g.kH*g.kW*g.colCols, func(c int) {
			col2im(image, dcol, g, c)
		}, cpu.par)
	}

	return inputGrad
}

// Conv2DKernelBackward computes the gradient w.r.t. the convolution kernel.
//
// Summed over the batch:
//
//	dkernel[c_out, r] = Σ_p grad[c_out, p] * col[r, p]
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("Conv2DKernelBackward", input.Shape(), kernel.Shape(), stride, padding)
	checkConvGrad("Conv2DKernelBackward", grad, g)

	kernelGrad := tensor.MustNewRaw("Conv2DKernelBackward", kernel.Shape(), cpu.device)

	inputData := input.AsFloat32()
	gradData := grad.AsFloat32()
	kernelGradData := kernelGrad.AsFloat32()

	col := make([]float32, g.colRows*g.colCols)
	inPlane := g.cIn * g.h * g.w
	outPlane := g.cOut * g.colCols

	for b := 0; b < g.n; b++ {
		im2col(col, inputData[b*inPlane:(b+1)*inPlane], g)
		gradImage := gradData[b*outPlane : (b+1)*outPlane]

		parallel.For(g.cOut, g.colRows*g.colCols, func(co int) {
			gradRow := gradImage[co*g.colCols : (co+1)*g.colCols]
			dst := kernelGradData[co*g.colRows : (co+1)*g.colRows]
			for r := range dst {
				colRow := col[r*g.colCols : (r+1)*g.colCols]
				var sum float32
				for p, gv := range gradRow {
					sum += gv * colRow[p]
				}
				dst[r] += sum
			}
		}, cpu.par)
	}

	return kernelGrad
}
