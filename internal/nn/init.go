package nn

import (
	"math"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// glorotUniform fills t from U(-limit, limit), limit = sqrt(6 / (fanIn + fanOut)).
func glorotUniform(t *tensor.Tensor, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := t.DataPtr()
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * limit)
	}
}
