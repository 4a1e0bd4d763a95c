package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/resnet/internal/tensor"
)

// CrossEntropyOp is the fused softmax cross-entropy over a batch of logits:
//
//	loss = mean_b( -log_softmax(logits[b])[targets[b]] )
//
// Backward pass:
//
//	∂L/∂logits[b,i] = (softmax(logits[b])[i] - 1{i == targets[b]}) / batch
//
// The softmax is computed once in the forward pass and kept for backward.
type CrossEntropyOp struct {
	inputs  []*tensor.RawTensor // [logits]
	output  *tensor.RawTensor   // [1]
	probs   []float32           // softmax(logits), [batch * classes]
	targets []int
}

// CrossEntropyForward computes the mean loss of logits [batch, classes]
// against class indices and returns the recorded operation.
//
// Panics if logits is not 2D, if len(targets) != batch, or if a target is
// out of range.
func CrossEntropyForward(logits *tensor.RawTensor, targets []int) (*tensor.RawTensor, *CrossEntropyOp) {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross_entropy: logits must be 2D [batch, classes], got %v", shape))
	}
	batch, classes := shape[0], shape[1]
	if len(targets) != batch {
		panic(fmt.Sprintf("cross_entropy: got %d targets for batch of %d", len(targets), batch))
	}

	data := logits.AsFloat32()
	probs := make([]float32, len(data))
	var total float64
	for b := 0; b < batch; b++ {
		target := targets[b]
		if target < 0 || target >= classes {
			panic(fmt.Sprintf("cross_entropy: target %d out of range [0, %d)", target, classes))
		}
		row := data[b*classes : (b+1)*classes]
		lse := logSumExp(row)
		for i, z := range row {
			probs[b*classes+i] = float32(math.Exp(float64(z) - lse))
		}
		total += lse - float64(row[target])
	}

	out := tensor.MustNewRaw("cross_entropy", tensor.Shape{1}, logits.Device())
	out.AsFloat32()[0] = float32(total / float64(batch))

	return out, &CrossEntropyOp{
		inputs:  []*tensor.RawTensor{logits},
		output:  out,
		probs:   probs,
		targets: append([]int(nil), targets...),
	}
}

// logSumExp computes log(Σ exp(z)) with the max-shift trick.
func logSumExp(z []float32) float64 {
	maxZ := float64(z[0])
	for _, v := range z[1:] {
		maxZ = math.Max(maxZ, float64(v))
	}
	var sum float64
	for _, v := range z {
		sum += math.Exp(float64(v) - maxZ)
	}
	return maxZ + math.Log(sum)
}

// Backward computes the gradient with respect to the logits.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	logits := op.inputs[0]
	batch, classes := logits.Shape()[0], logits.Shape()[1]
	scale := outputGrad.AsFloat32()[0] / float32(batch)

	grad := tensor.MustNewRaw("cross_entropy_backward", logits.Shape(), logits.Device())
	g := grad.AsFloat32()
	for b := 0; b < batch; b++ {
		for i := 0; i < classes; i++ {
			p := op.probs[b*classes+i]
			if i == op.targets[b] {
				p--
			}
			g[b*classes+i] = p * scale
		}
	}
	return []*tensor.RawTensor{grad}
}

// Inputs returns [logits].
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the scalar loss tensor.
func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}
