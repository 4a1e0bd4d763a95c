package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// bnGeometry validates batch-norm operands and returns N, C and H*W.
func bnGeometry(op string, input *tensor.RawTensor, perChannel ...*tensor.RawTensor) (n, c, hw int) {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: expected 4D input [N,C,H,W], got %dD", op, len(shape)))
	}
	n, c, hw = shape[0], shape[1], shape[2]*shape[3]
	for _, t := range perChannel {
		if !t.Shape().Equal(tensor.Shape{c}) {
			panic(fmt.Sprintf("%s: expected per-channel tensor of shape [%d], got %v", op, c, t.Shape()))
		}
	}
	return n, c, hw
}

// channelMoments computes the per-channel mean and biased variance over N, H, W.
// Accumulation is done in float64.
func (cpu *CPUBackend) channelMoments(data []float32, n, c, hw int) (mean, variance []float64) {
	mean = make([]float64, c)
	variance = make([]float64, c)
	count := float64(n * hw)

	parallel.For(c, n*hw, func(ch int) {
		var sum float64
		for b := 0; b < n; b++ {
			for _, v := range data[(b*c+ch)*hw : (b*c+ch+1)*hw] {
				sum += float64(v)
			}
		}
		mu := sum / count

		var sq float64
		for b := 0; b < n; b++ {
			for _, v := range data[(b*c+ch)*hw : (b*c+ch+1)*hw] {
				d := float64(v) - mu
				sq += d * d
			}
		}
		mean[ch] = mu
		variance[ch] = sq / count
	}, cpu.par)

	return mean, variance
}

// batchStats returns the statistics BatchNorm2D normalizes with.
func (cpu *CPUBackend) batchStats(
	op string,
	input, runningMean, runningVar *tensor.RawTensor,
	training bool,
	n, c, hw int,
) (mean, variance []float64) {
	if !training {
		mean = make([]float64, c)
		variance = make([]float64, c)
		for ch, v := range runningMean.AsFloat32() {
			mean[ch] = float64(v)
		}
		for ch, v := range runningVar.AsFloat32() {
			variance[ch] = float64(v)
		}
		return mean, variance
	}

	if n*hw <= 1 {
		panic(fmt.Sprintf("%s: expected more than 1 value per channel when training, got input shape %v",
			op, input.Shape()))
	}
	return cpu.channelMoments(input.AsFloat32(), n, c, hw)
}

// BatchNorm2D applies per-channel batch normalization:
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
//
// In training mode mean/var are the biased batch statistics over (N, H, W),
// and the running buffers are updated in place:
//
//	running_mean = (1 - momentum) * running_mean + momentum * mean
//	running_var  = (1 - momentum) * running_var  + momentum * var * m/(m-1)
//
// where m = N*H*W (the running variance tracks the unbiased estimate).
// In evaluation mode the running buffers are used as-is.
func (cpu *CPUBackend) BatchNorm2D(
	input, gamma, beta, runningMean, runningVar *tensor.RawTensor,
	training bool,
	momentum, eps float32,
) *tensor.RawTensor {
	n, c, hw := bnGeometry("batchnorm2d", input, gamma, beta, runningMean, runningVar)
	mean, variance := cpu.batchStats("batchnorm2d", input, runningMean, runningVar, training, n, c, hw)

	if training {
		m := float64(n * hw)
		rm := runningMean.AsFloat32()
		rv := runningVar.AsFloat32()
		mom := float64(momentum)
		for ch := 0; ch < c; ch++ {
			rm[ch] = float32((1-mom)*float64(rm[ch]) + mom*mean[ch])
			rv[ch] = float32((1-mom)*float64(rv[ch]) + mom*variance[ch]*m/(m-1))
		}
	}

	output := tensor.MustNewRaw("batchnorm2d", input.Shape(), cpu.device)
	inputData := input.AsFloat32()
	outputData := output.AsFloat32()
	gammaData := gamma.AsFloat32()
	betaData := beta.AsFloat32()

	for ch := 0; ch < c; ch++ {
		invStd := 1 / math.Sqrt(variance[ch]+float64(eps))
		scale := float32(float64(gammaData[ch]) * invStd)
		shift := float32(float64(betaData[ch]) - mean[ch]*float64(gammaData[ch])*invStd)
		for b := 0; b < n; b++ {
			off := (b*c + ch) * hw
			src := inputData[off : off+hw]
			dst := outputData[off : off+hw]
			for i, v := range src {
				dst[i] = v*scale + shift
			}
		}
	}

	return output
}

// BatchNorm2DBackward computes gradients of BatchNorm2D w.r.t. input, gamma and beta.
//
// With x̂ = (x - mean) * invStd and m = N*H*W:
//
//	dbeta  = Σ dy
//	dgamma = Σ dy * x̂
//	dx     = gamma * invStd / m * (m*dy - dbeta - x̂*dgamma)   (training)
//	dx     = gamma * invStd * dy                              (evaluation)
//
// In training mode the batch statistics are recomputed from input; the
// running buffers are not modified.
func (cpu *CPUBackend) BatchNorm2DBackward(
	input, gamma, runningMean, runningVar, grad *tensor.RawTensor,
	training bool,
	eps float32,
) (inputGrad, gammaGrad, betaGrad *tensor.RawTensor) {
	n, c, hw := bnGeometry("BatchNorm2DBackward", input, gamma, runningMean, runningVar)
	if !grad.Shape().Equal(input.Shape()) {
		panic(fmt.Sprintf("BatchNorm2DBackward: gradient shape %v != input shape %v", grad.Shape(), input.Shape()))
	}
	mean, variance := cpu.batchStats("BatchNorm2DBackward", input, runningMean, runningVar, training, n, c, hw)

	inputGrad = tensor.MustNewRaw("BatchNorm2DBackward", input.Shape(), cpu.device)
	gammaGrad = tensor.MustNewRaw("BatchNorm2DBackward", tensor.Shape{c}, cpu.device)
	betaGrad = tensor.MustNewRaw("BatchNorm2DBackward", tensor.Shape{c}, cpu.device)

	inputData := input.AsFloat32()
	gradData := grad.AsFloat32()
	inputGradData := inputGrad.AsFloat32()
	gammaData := gamma.AsFloat32()
	gammaGradData := gammaGrad.AsFloat32()
	betaGradData := betaGrad.AsFloat32()
	m := float64(n * hw)

	parallel.For(c, 2*n*hw, func(ch int) {
		invStd := 1 / math.Sqrt(variance[ch]+float64(eps))

		var dBeta, dGamma float64
		for b := 0; b < n; b++ {
			off := (b*c + ch) * hw
			for i := off; i < off+hw; i++ {
				dy := float64(gradData[i])
				dBeta += dy
				dGamma += dy * (float64(inputData[i]) - mean[ch]) * invStd
			}
		}
		betaGradData[ch] = float32(dBeta)
		gammaGradData[ch] = float32(dGamma)

		g := float64(gammaData[ch])
		for b := 0; b < n; b++ {
			off := (b*c + ch) * hw
			for i := off; i < off+hw; i++ {
				dy := float64(gradData[i])
				if !training {
					inputGradData[i] = float32(g * invStd * dy)
					continue
				}
				xHat := (float64(inputData[i]) - mean[ch]) * invStd
				inputGradData[i] = float32(g * invStd / m * (m*dy - dBeta - xHat*dGamma))
			}
		}
	}, cpu.par)

	return inputGrad, gammaGrad, betaGrad
}
