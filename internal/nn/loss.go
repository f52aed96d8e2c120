package nn

import (
	"fmt"
	"math"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

const epsilon = 1e-7

// Loss scores a batch of predictions against one-hot targets.
type Loss interface {
	Name() string
	// Compute returns the batch-mean loss and its gradient with respect to pred.
	Compute(pred, target *tensor.Tensor) (float64, *tensor.Tensor)
}

// CategoricalCrossentropy is -sum(target * log(pred)) averaged over the batch,
// with pred clipped to [1e-7, 1-1e-7].
type CategoricalCrossentropy struct{}

func (CategoricalCrossentropy) Name() string { return "categorical_crossentropy" }

func (CategoricalCrossentropy) Compute(pred, target *tensor.Tensor) (float64, *tensor.Tensor) {
	if !pred.Shape().Equal(target.Shape()) || pred.Shape().NDim() != 2 {
		panic(fmt.Sprintf("categorical_crossentropy: prediction %v and target %v must be equal rank-2 shapes", pred.Shape(), target.Shape()))
	}
	n := pred.Shape().At(0)
	p, y := pred.DataPtr(), target.DataPtr()
	grad := tensor.New(pred.Shape())
	g := grad.DataPtr()

	var total float64
	for i := range p {
		if y[i] == 0 {
			continue
		}
		clipped := math.Min(math.Max(float64(p[i]), epsilon), 1-epsilon)
		total -= float64(y[i]) * math.Log(clipped)
		g[i] = float32(-float64(y[i]) / clipped / float64(n))
	}
	return total / float64(n), grad
}

// CategoricalAccuracy is the fraction of rows whose argmax matches the target argmax.
func CategoricalAccuracy(pred, target *tensor.Tensor) float64 {
	p, t := pred.Argmax(), target.Argmax()
	if len(p) == 0 {
		return 0
	}
	hits := 0
	for i := range p {
		if p[i] == t[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(p))
}
