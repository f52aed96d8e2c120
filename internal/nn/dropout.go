package nn

import (
	"fmt"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Dropout zeroes a fraction rate of its inputs while training and scales the
// survivors by 1/(1-rate). At inference it is the identity.
type Dropout struct {
	base
	rate float64
	rng  *rand.Rand

	mask []float32
}

// NewDropout creates a dropout layer.
func NewDropout(rate float64) *Dropout {
	return &Dropout{rate: rate}
}

func (l *Dropout) ClassName() string { return "Dropout" }

func (l *Dropout) Build(input tensor.Shape, rng *rand.Rand) (tensor.Shape, error) {
	if l.rate < 0 || l.rate >= 1 {
		return tensor.Shape{}, fmt.Errorf("%s: rate %v outside [0, 1)", l.name, l.rate)
	}
	l.in, l.out = input, input
	l.rng = rand.New(rand.NewSource(rng.Int63()))
	return l.out, nil
}

func (l *Dropout) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	batchOf(x, l.in, l.name)
	if !training || l.rate == 0 {
		l.mask = nil
		return x
	}
	scale := float32(1 / (1 - l.rate))
	out := tensor.New(x.Shape())
	src, dst := x.DataPtr(), out.DataPtr()
	l.mask = make([]float32, len(src))
	for i, v := range src {
		if l.rng.Float64() >= l.rate {
			l.mask[i] = scale
			dst[i] = v * scale
		}
	}
	return out
}

func (l *Dropout) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if l.mask == nil {
		return grad
	}
	dx := tensor.New(grad.Shape())
	dst := dx.DataPtr()
	for i, g := range grad.DataPtr() {
		dst[i] = g * l.mask[i]
	}
	return dx
}

type dropoutConfig struct {
	commonConfig
	Rate       float64 `json:"rate"`
	NoiseShape []int   `json:"noise_shape"`
	Seed       *int64  `json:"seed"`
}

func (l *Dropout) config(common commonConfig) any {
	return dropoutConfig{commonConfig: common, Rate: l.rate}
}

func decodeDropout(cfg dropoutConfig) (Layer, error) {
	if cfg.NoiseShape != nil {
		return nil, fmt.Errorf("dropout %s: noise_shape is not supported", cfg.Name)
	}
	return &Dropout{rate: cfg.Rate}, nil
}
