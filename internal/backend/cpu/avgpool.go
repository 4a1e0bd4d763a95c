package cpu

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// adaptiveBin returns the [start, end) input range averaged into output cell i:
//
//	start = floor(i * in / out)
//	end   = ceil((i+1) * in / out)
func adaptiveBin(i, in, out int) (start, end int) {
	start = (i * in) / out
	end = ((i+1)*in + out - 1) / out
	return start, end
}

func checkAdaptive(op string, shape tensor.Shape, outH, outW int) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: expected 4D input [N,C,H,W], got %dD", op, len(shape)))
	}
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("%s: invalid output size %dx%d", op, outH, outW))
	}
}

// AdaptiveAvgPool2D averages each channel plane into an outH x outW grid.
//
// With outH = outW = 1 this is global average pooling:
// [N, C, H, W] -> [N, C, 1, 1].
func (cpu *CPUBackend) AdaptiveAvgPool2D(input *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	shape := input.Shape()
	checkAdaptive("adaptiveavgpool2d", shape, outH, outW)
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	output := tensor.MustNewRaw("adaptiveavgpool2d", tensor.Shape{n, c, outH, outW}, cpu.device)
	inputData := input.AsFloat32()
	outputData := output.AsFloat32()

	outIdx := 0
	for plane := 0; plane < n*c; plane++ {
		channelData := inputData[plane*h*w : (plane+1)*h*w]
		for oh := 0; oh < outH; oh++ {
			hStart, hEnd := adaptiveBin(oh, h, outH)
			for ow := 0; ow < outW; ow++ {
				wStart, wEnd := adaptiveBin(ow, w, outW)

				var sum float64
				for ih := hStart; ih < hEnd; ih++ {
					row := channelData[ih*w : (ih+1)*w]
					for iw := wStart; iw < wEnd; iw++ {
						sum += float64(row[iw])
					}
				}
				count := (hEnd - hStart) * (wEnd - wStart)
				outputData[outIdx] = float32(sum / float64(count))
				outIdx++
			}
		}
	}

	return output
}

// AdaptiveAvgPool2DBackward spreads each output gradient evenly over its bin.
func (cpu *CPUBackend) AdaptiveAvgPool2DBackward(input, grad *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	shape := input.Shape()
	checkAdaptive("AdaptiveAvgPool2DBackward", shape, outH, outW)
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if expected := (tensor.Shape{n, c, outH, outW}); !grad.Shape().Equal(expected) {
		panic(fmt.Sprintf("AdaptiveAvgPool2DBackward: gradient shape %v != output shape %v", grad.Shape(), expected))
	}

	inputGrad := tensor.MustNewRaw("AdaptiveAvgPool2DBackward", shape, cpu.device)
	gradData := grad.AsFloat32()
	inputGradData := inputGrad.AsFloat32()

	outIdx := 0
	for plane := 0; plane < n*c; plane++ {
		channelGrad := inputGradData[plane*h*w : (plane+1)*h*w]
		for oh := 0; oh < outH; oh++ {
			hStart, hEnd := adaptiveBin(oh, h, outH)
			for ow := 0; ow < outW; ow++ {
				wStart, wEnd := adaptiveBin(ow, w, outW)
				share := gradData[outIdx] / float32((hEnd-hStart)*(wEnd-wStart))
				for ih := hStart; ih < hEnd; ih++ {
					row := channelGrad[ih*w : (ih+1)*w]
					for iw := wStart; iw < wEnd; iw++ {
						row[iw] += share
					}
				}
				outIdx++
			}
		}
	}

	return inputGrad
}
