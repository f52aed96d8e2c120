package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Activation applies an element-wise (relu, linear) or last-axis (softmax) function.
type Activation struct {
	base
	kind string

	lastOutput *tensor.Tensor
}

// NewActivation creates an activation layer. kind is relu, softmax or linear.
func NewActivation(kind string) *Activation {
	return &Activation{kind: kind}
}

func (l *Activation) ClassName() string { return "Activation" }

// Kind returns the activation function name.
func (l *Activation) Kind() string { return l.kind }

func (l *Activation) Build(input tensor.Shape, _ *rand.Rand) (tensor.Shape, error) {
	switch l.kind {
	case "relu", "softmax", "linear":
	default:
		return tensor.Shape{}, fmt.Errorf("%s: unknown activation function '%s'", l.name, l.kind)
	}
	if input.NDim() == 0 {
		return tensor.Shape{}, fmt.Errorf("%s: empty input shape", l.name)
	}
	l.in, l.out = input, input
	return l.out, nil
}

func (l *Activation) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	batchOf(x, l.in, l.name)
	out := x.Clone()
	data := out.DataPtr()
	switch l.kind {
	case "relu":
		for i, v := range data {
			if v < 0 {
				data[i] = 0
			}
		}
	case "softmax":
		k := l.in.At(-1)
		for off := 0; off < len(data); off += k {
			softmax(data[off : off+k])
		}
	}
	l.lastOutput = out
	return out
}

func softmax(row []float32) {
	maxV := row[0]
	for _, v := range row[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range row {
		e := math.Exp(float64(v - maxV))
		row[i] = float32(e)
		sum += e
	}
	for i := range row {
		row[i] = float32(float64(row[i]) / sum)
	}
}

func (l *Activation) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if l.lastOutput == nil {
		panic(l.name + ": backward called before forward")
	}
	y := l.lastOutput.DataPtr()
	g := grad.DataPtr()
	dx := tensor.New(grad.Shape())
	dst := dx.DataPtr()
	switch l.kind {
	case "relu":
		for i, v := range y {
			if v > 0 {
				dst[i] = g[i]
			}
		}
	case "softmax":
		k := l.in.At(-1)
		for off := 0; off < len(y); off += k {
			var dot float32
			for i := off; i < off+k; i++ {
				dot += g[i] * y[i]
			}
			for i := off; i < off+k; i++ {
				dst[i] = y[i] * (g[i] - dot)
			}
		}
	default:
		copy(dst, g)
	}
	return dx
}

type activationConfig struct {
	commonConfig
	Activation string `json:"activation"`
}

func (l *Activation) config(common commonConfig) any {
	return activationConfig{commonConfig: common, Activation: l.kind}
}

func decodeActivation(cfg activationConfig) (Layer, error) {
	return &Activation{kind: cfg.Activation}, nil
}
