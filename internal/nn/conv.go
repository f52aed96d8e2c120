package nn

import (
	"fmt"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Conv2D is a stride-1 'valid' convolution with an HWCK kernel
// (kernel height, kernel width, input channels, filters) and a bias per filter.
type Conv2D struct {
	base
	filters int
	kh, kw  int
	kernel  *Param
	bias    *Param

	lastInput *tensor.Tensor
}

// NewConv2D creates a convolution with filters square kernels of the given size.
func NewConv2D(filters, kernelSize int, name string) *Conv2D {
	return &Conv2D{base: base{name: name}, filters: filters, kh: kernelSize, kw: kernelSize}
}

func (l *Conv2D) ClassName() string { return "Conv2D" }

func (l *Conv2D) Build(input tensor.Shape, rng *rand.Rand) (tensor.Shape, error) {
	if input.NDim() != 3 {
		return tensor.Shape{}, fmt.Errorf("%s: expected (height, width, channels) input, got %v", l.name, input)
	}
	if l.filters <= 0 || l.kh <= 0 || l.kw <= 0 {
		return tensor.Shape{}, fmt.Errorf("%s: filters and kernel size must be positive", l.name)
	}
	h, w, c := input.At(0), input.At(1), input.At(2)
	if h < l.kh || w < l.kw {
		return tensor.Shape{}, fmt.Errorf("%s: input %dx%d smaller than kernel %dx%d", l.name, h, w, l.kh, l.kw)
	}

	l.in = input
	l.out = tensor.NewShape(h-l.kh+1, w-l.kw+1, l.filters)
	l.kernel = newParam("kernel", tensor.NewShape(l.kh, l.kw, c, l.filters))
	l.bias = newParam("bias", tensor.NewShape(l.filters))
	glorotUniform(l.kernel.Value, l.kh*l.kw*c, l.kh*l.kw*l.filters, rng)
	return l.out, nil
}

func (l *Conv2D) Params() []*Param {
	if l.kernel == nil {
		return nil
	}
	return []*Param{l.kernel, l.bias}
}

func (l *Conv2D) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	n := batchOf(x, l.in, l.name)
	l.lastInput = x

	h, w, c := l.in.At(0), l.in.At(1), l.in.At(2)
	oh, ow, f := l.out.At(0), l.out.At(1), l.filters
	out := tensor.New(l.out.Prepend(n))
	src, dst := x.DataPtr(), out.DataPtr()
	kernel, bias := l.kernel.Value.DataPtr(), l.bias.Value.DataPtr()

	parallelFor(n, func(b int) {
		for y := 0; y < oh; y++ {
			for xx := 0; xx < ow; xx++ {
				o := dst[((b*oh+y)*ow+xx)*f : ((b*oh+y)*ow+xx+1)*f]
				copy(o, bias)
				for ky := 0; ky < l.kh; ky++ {
					for kx := 0; kx < l.kw; kx++ {
						in := src[((b*h+y+ky)*w+xx+kx)*c:]
						wBase := (ky*l.kw + kx) * c * f
						for ch := 0; ch < c; ch++ {
							v := in[ch]
							if v == 0 {
								continue
							}
							k := kernel[wBase+ch*f : wBase+(ch+1)*f]
							for i := range o {
								o[i] += v * k[i]
							}
						}
					}
				}
			}
		}
	})
	return out
}

func (l *Conv2D) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if l.lastInput == nil {
		panic(l.name + ": backward called before forward")
	}
	n := batchOf(grad, l.out, l.name)

	h, w, c := l.in.At(0), l.in.At(1), l.in.At(2)
	oh, ow, f := l.out.At(0), l.out.At(1), l.filters
	src, g := l.lastInput.DataPtr(), grad.DataPtr()
	kernel := l.kernel.Value.DataPtr()
	dKernel, dBias := l.kernel.Grad.DataPtr(), l.bias.Grad.DataPtr()

	for i := 0; i < n*oh*ow; i++ {
		row := g[i*f : (i+1)*f]
		for k, v := range row {
			dBias[k] += v
		}
	}

	// each (ky, kx) owns a disjoint slice of the kernel gradient
	parallelFor(l.kh*l.kw, func(pos int) {
		ky, kx := pos/l.kw, pos%l.kw
		dk := dKernel[pos*c*f : (pos+1)*c*f]
		for b := 0; b < n; b++ {
			for y := 0; y < oh; y++ {
				for xx := 0; xx < ow; xx++ {
					gRow := g[((b*oh+y)*ow+xx)*f : ((b*oh+y)*ow+xx+1)*f]
					in := src[((b*h+y+ky)*w+xx+kx)*c:]
					for ch := 0; ch < c; ch++ {
						v := in[ch]
						if v == 0 {
							continue
						}
						d := dk[ch*f : (ch+1)*f]
						for k := range d {
							d[k] += v * gRow[k]
						}
					}
				}
			}
		}
	})

	dx := tensor.New(l.in.Prepend(n))
	dst := dx.DataPtr()
	parallelFor(n, func(b int) {
		for y := 0; y < oh; y++ {
			for xx := 0; xx < ow; xx++ {
				gRow := g[((b*oh+y)*ow+xx)*f : ((b*oh+y)*ow+xx+1)*f]
				for ky := 0; ky < l.kh; ky++ {
					for kx := 0; kx < l.kw; kx++ {
						d := dst[((b*h+y+ky)*w+xx+kx)*c:]
						wBase := (ky*l.kw + kx) * c * f
						for ch := 0; ch < c; ch++ {
							k := kernel[wBase+ch*f : wBase+(ch+1)*f]
							var sum float32
							for i, gv := range gRow {
								sum += gv * k[i]
							}
							d[ch] += sum
						}
					}
				}
			}
		}
	})
	return dx
}

type convConfig struct {
	commonConfig
	Filters      int    `json:"filters"`
	KernelSize   [2]int `json:"kernel_size"`
	Strides      [2]int `json:"strides"`
	Padding      string `json:"padding"`
	DataFormat   string `json:"data_format"`
	DilationRate [2]int `json:"dilation_rate"`
	Activation   string `json:"activation"`
	UseBias      bool   `json:"use_bias"`
}

func (l *Conv2D) config(common commonConfig) any {
	return convConfig{
		commonConfig: common,
		Filters:      l.filters,
		KernelSize:   [2]int{l.kh, l.kw},
		Strides:      [2]int{1, 1},
		Padding:      "valid",
		DataFormat:   channelsLast,
		DilationRate: [2]int{1, 1},
		Activation:   "linear",
		UseBias:      true,
	}
}

func decodeConv(cfg convConfig) (Layer, error) {
	if err := checkDataFormat(cfg.DataFormat); err != nil {
		return nil, err
	}
	if cfg.Strides != [2]int{1, 1} && cfg.Strides != [2]int{} {
		return nil, fmt.Errorf("conv2d %s: unsupported strides %v", cfg.Name, cfg.Strides)
	}
	if cfg.DilationRate != [2]int{1, 1} && cfg.DilationRate != [2]int{} {
		return nil, fmt.Errorf("conv2d %s: unsupported dilation rate %v", cfg.Name, cfg.DilationRate)
	}
	if cfg.Padding != "valid" {
		return nil, fmt.Errorf("conv2d %s: unsupported padding %q", cfg.Name, cfg.Padding)
	}
	if err := checkLinear(cfg.Activation); err != nil {
		return nil, fmt.Errorf("conv2d %s: %w", cfg.Name, err)
	}
	if !cfg.UseBias {
		return nil, fmt.Errorf("conv2d %s: layers without bias are not supported", cfg.Name)
	}
	return &Conv2D{filters: cfg.Filters, kh: cfg.KernelSize[0], kw: cfg.KernelSize[1]}, nil
}
