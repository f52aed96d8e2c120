package nn

import (
	"fmt"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Dense is a fully connected layer with an [in, units] kernel.
type Dense struct {
	base
	units  int
	kernel *Param
	bias   *Param

	lastInput *tensor.Tensor
}

// NewDense creates a fully connected layer.
func NewDense(units int, name string) *Dense {
	return &Dense{base: base{name: name}, units: units}
}

func (l *Dense) ClassName() string { return "Dense" }

func (l *Dense) Build(input tensor.Shape, rng *rand.Rand) (tensor.Shape, error) {
	if input.NDim() != 1 {
		return tensor.Shape{}, fmt.Errorf("%s: expected a flat input, got %v", l.name, input)
	}
	if l.units <= 0 {
		return tensor.Shape{}, fmt.Errorf("%s: units must be positive", l.name)
	}
	l.in = input
	l.out = tensor.NewShape(l.units)
	l.kernel = newParam("kernel", tensor.NewShape(input.At(0), l.units))
	l.bias = newParam("bias", tensor.NewShape(l.units))
	glorotUniform(l.kernel.Value, input.At(0), l.units, rng)
	return l.out, nil
}

func (l *Dense) Params() []*Param {
	if l.kernel == nil {
		return nil
	}
	return []*Param{l.kernel, l.bias}
}

func (l *Dense) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	n := batchOf(x, l.in, l.name)
	l.lastInput = x

	in, units := l.in.At(0), l.units
	out := tensor.New(l.out.Prepend(n))
	src, dst := x.DataPtr(), out.DataPtr()
	kernel, bias := l.kernel.Value.DataPtr(), l.bias.Value.DataPtr()

	parallelFor(n, func(b int) {
		o := dst[b*units : (b+1)*units]
		copy(o, bias)
		for i, v := range src[b*in : (b+1)*in] {
			if v == 0 {
				continue
			}
			k := kernel[i*units : (i+1)*units]
			for j := range o {
				o[j] += v * k[j]
			}
		}
	})
	return out
}

func (l *Dense) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if l.lastInput == nil {
		panic(l.name + ": backward called before forward")
	}
	n := batchOf(grad, l.out, l.name)

	in, units := l.in.At(0), l.units
	src, g := l.lastInput.DataPtr(), grad.DataPtr()
	kernel := l.kernel.Value.DataPtr()
	dKernel, dBias := l.kernel.Grad.DataPtr(), l.bias.Grad.DataPtr()

	for b := 0; b < n; b++ {
		for j, v := range g[b*units : (b+1)*units] {
			dBias[j] += v
		}
	}

	parallelFor(in, func(i int) {
		d := dKernel[i*units : (i+1)*units]
		for b := 0; b < n; b++ {
			v := src[b*in+i]
			if v == 0 {
				continue
			}
			gRow := g[b*units : (b+1)*units]
			for j := range d {
				d[j] += v * gRow[j]
			}
		}
	})

	dx := tensor.New(l.in.Prepend(n))
	dst := dx.DataPtr()
	parallelFor(n, func(b int) {
		gRow := g[b*units : (b+1)*units]
		for i := 0; i < in; i++ {
			k := kernel[i*units : (i+1)*units]
			var sum float32
			for j, gv := range gRow {
				sum += gv * k[j]
			}
			dst[b*in+i] = sum
		}
	})
	return dx
}

type denseConfig struct {
	commonConfig
	Units      int    `json:"units"`
	Activation string `json:"activation"`
	UseBias    bool   `json:"use_bias"`
}

func (l *Dense) config(common commonConfig) any {
	return denseConfig{
		commonConfig: common,
		Units:        l.units,
		Activation:   "linear",
		UseBias:      true,
	}
}

func decodeDense(cfg denseConfig) (Layer, error) {
	if err := checkLinear(cfg.Activation); err != nil {
		return nil, fmt.Errorf("dense %s: %w", cfg.Name, err)
	}
	if !cfg.UseBias {
		return nil, fmt.Errorf("dense %s: layers without bias are not supported", cfg.Name)
	}
	return &Dense{units: cfg.Units}, nil
}
