package nn

import (
	"fmt"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Flatten collapses each sample to one dimension in row-major (HWC) order.
type Flatten struct {
	base
}

// NewFlatten creates a flatten layer.
func NewFlatten() *Flatten { return &Flatten{} }

func (l *Flatten) ClassName() string { return "Flatten" }

func (l *Flatten) Build(input tensor.Shape, _ *rand.Rand) (tensor.Shape, error) {
	if input.NDim() == 0 || input.Numel() == 0 {
		return tensor.Shape{}, fmt.Errorf("%s: cannot flatten empty input %v", l.name, input)
	}
	l.in = input
	l.out = tensor.NewShape(input.Numel())
	return l.out, nil
}

func (l *Flatten) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	n := batchOf(x, l.in, l.name)
	return x.Reshape(l.out.Prepend(n))
}

func (l *Flatten) Backward(grad *tensor.Tensor) *tensor.Tensor {
	n := batchOf(grad, l.out, l.name)
	return grad.Reshape(l.in.Prepend(n))
}

type flattenConfig struct {
	commonConfig
	DataFormat string `json:"data_format"`
}

func (l *Flatten) config(common commonConfig) any {
	return flattenConfig{commonConfig: common, DataFormat: channelsLast}
}

func decodeFlatten(cfg flattenConfig) (Layer, error) {
	if err := checkDataFormat(cfg.DataFormat); err != nil {
		return nil, err
	}
	return &Flatten{}, nil
}
