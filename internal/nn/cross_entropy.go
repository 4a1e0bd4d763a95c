package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/resnet/internal/tensor"
)

// CrossEntropyLoss computes cross-entropy loss for multi-class classification.
//
// Mathematical Formulation:
//
//	Loss = mean_b( -log_softmax(logits[b])[targets[b]] )
//
// Gradient (Backward):
//
//	∂L/∂logits = (Softmax(logits) - y_one_hot) / batch
//
// Usage:
//
//	criterion := nn.NewCrossEntropyLoss(backend)
//	logits := net.Forward(images)              // [batch, classes]
//	loss := criterion.Forward(logits, labels)  // labels: class indices
//
// The input is raw logits. The log-sum-exp trick keeps large logits finite.
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// crossEntropyBackend is implemented by backends that record the loss for
// differentiation (autodiff.AutodiffBackend).
type crossEntropyBackend interface {
	CrossEntropy(logits *tensor.RawTensor, targets []int) *tensor.RawTensor
}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{
		backend: backend,
	}
}

// Forward returns the mean loss as a [1] tensor.
//
// When the backend records operations the loss is put on the tape;
// otherwise it is computed directly and cannot be differentiated.
func (c *CrossEntropyLoss[B]) Forward(logits *tensor.Tensor[float32, B], targets []int) *tensor.Tensor[float32, B] {
	if ad, ok := any(c.backend).(crossEntropyBackend); ok {
		return tensor.New[float32, B](ad.CrossEntropy(logits.Raw(), targets), c.backend)
	}

	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross_entropy: logits must be 2D [batch, classes], got %v", shape))
	}
	batch, classes := shape[0], shape[1]
	if len(targets) != batch {
		panic(fmt.Sprintf("cross_entropy: got %d targets for batch of %d", len(targets), batch))
	}

	data := logits.Data()
	var total float64
	for b, target := range targets {
		if target < 0 || target >= classes {
			panic(fmt.Sprintf("cross_entropy: target %d out of range [0, %d)", target, classes))
		}
		logProbs := logSoftmax(data[b*classes : (b+1)*classes])
		total -= float64(logProbs[target])
	}

	out := tensor.MustNewRaw("cross_entropy", tensor.Shape{1}, c.backend.Device())
	out.AsFloat32()[0] = float32(total / float64(batch))
	return tensor.New[float32, B](out, c.backend)
}

// Parameters returns nil (loss functions have no trainable parameters).
func (c *CrossEntropyLoss[B]) Parameters() []*Parameter[B] {
	return nil
}

// logSoftmax computes log(softmax(z)) in numerically stable way.
//
//	LogSoftmax(z)[i] = z[i] - (max(z) + log(Σ exp(z - max(z))))
func logSoftmax(z []float32) []float32 {
	maxZ := z[0]
	for _, v := range z[1:] {
		if v > maxZ {
			maxZ = v
		}
	}

	var sumExp float64
	for _, v := range z {
		sumExp += math.Exp(float64(v - maxZ))
	}
	logSumExp := maxZ + float32(math.Log(sumExp))

	result := make([]float32, len(z))
	for i, v := range z {
		result[i] = v - logSumExp
	}
	return result
}

// Softmax returns the class probabilities of each row of logits [batch, classes].
func Softmax[B tensor.Backend](logits *tensor.Tensor[float32, B]) [][]float32 {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("softmax: logits must be 2D [batch, classes], got %v", shape))
	}
	batch, classes := shape[0], shape[1]
	data := logits.Data()

	probs := make([][]float32, batch)
	for b := range probs {
		row := logSoftmax(data[b*classes : (b+1)*classes])
		for i, lp := range row {
			row[i] = float32(math.Exp(float64(lp)))
		}
		probs[b] = row
	}
	return probs
}

// Argmax returns the predicted class of each row of logits [batch, classes].
func Argmax[B tensor.Backend](logits *tensor.Tensor[float32, B]) []int {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("argmax: logits must be 2D [batch, classes], got %v", shape))
	}
	batch, classes := shape[0], shape[1]
	data := logits.Data()

	preds := make([]int, batch)
	for b := range preds {
		row := data[b*classes : (b+1)*classes]
		best := 0
		for i := 1; i < classes; i++ {
			if row[i] > row[best] {
				best = i
			}
		}
		preds[b] = best
	}
	return preds
}

// Accuracy returns the fraction of rows whose argmax equals the target.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], targets []int) float32 {
	preds := Argmax(logits)
	if len(preds) != len(targets) {
		panic(fmt.Sprintf("accuracy: got %d targets for batch of %d", len(targets), len(preds)))
	}
	correct := 0
	for i, p := range preds {
		if p == targets[i] {
			correct++
		}
	}
	return float32(correct) / float32(len(preds))
}
