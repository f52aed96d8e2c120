package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// MaxPooling2D keeps the maximum of each non-overlapping pool window.
// Trailing rows and columns that do not fill a window are dropped.
type MaxPooling2D struct {
	base
	py, px int

	argmax []int32
}

// NewMaxPooling2D creates a size x size pooling layer with stride size.
func NewMaxPooling2D(size int) *MaxPooling2D {
	return &MaxPooling2D{py: size, px: size}
}

func (l *MaxPooling2D) ClassName() string { return "MaxPooling2D" }

func (l *MaxPooling2D) Build(input tensor.Shape, _ *rand.Rand) (tensor.Shape, error) {
	if input.NDim() != 3 {
		return tensor.Shape{}, fmt.Errorf("%s: expected (height, width, channels) input, got %v", l.name, input)
	}
	if l.py <= 0 || l.px <= 0 {
		return tensor.Shape{}, fmt.Errorf("%s: pool size must be positive", l.name)
	}
	oh, ow := input.At(0)/l.py, input.At(1)/l.px
	if oh < 1 || ow < 1 {
		return tensor.Shape{}, fmt.Errorf("%s: input %v too small for pool %dx%d", l.name, input, l.py, l.px)
	}
	l.in = input
	l.out = tensor.NewShape(oh, ow, input.At(2))
	return l.out, nil
}

func (l *MaxPooling2D) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	n := batchOf(x, l.in, l.name)
	h, w, c := l.in.At(0), l.in.At(1), l.in.At(2)
	oh, ow := l.out.At(0), l.out.At(1)
	out := tensor.New(l.out.Prepend(n))
	src, dst := x.DataPtr(), out.DataPtr()
	l.argmax = make([]int32, len(dst))

	parallelFor(n, func(b int) {
		for y := 0; y < oh; y++ {
			for xx := 0; xx < ow; xx++ {
				for ch := 0; ch < c; ch++ {
					best := float32(math.Inf(-1))
					bestIdx := -1
					for i := 0; i < l.py; i++ {
						for j := 0; j < l.px; j++ {
							idx := ((b*h+y*l.py+i)*w+xx*l.px+j)*c + ch
							if bestIdx < 0 || src[idx] > best {
								best, bestIdx = src[idx], idx
							}
						}
					}
					o := ((b*oh+y)*ow+xx)*c + ch
					dst[o] = best
					l.argmax[o] = int32(bestIdx)
				}
			}
		}
	})
	return out
}

func (l *MaxPooling2D) Backward(grad *tensor.Tensor) *tensor.Tensor {
	n := batchOf(grad, l.out, l.name)
	if len(l.argmax) != grad.Shape().Numel() {
		panic(l.name + ": backward called before forward")
	}
	dx := tensor.New(l.in.Prepend(n))
	dst := dx.DataPtr()
	for o, g := range grad.DataPtr() {
		dst[l.argmax[o]] += g
	}
	return dx
}

type poolConfig struct {
	commonConfig
	PoolSize   [2]int  `json:"pool_size"`
	Padding    string  `json:"padding"`
	Strides    *[2]int `json:"strides"`
	DataFormat string  `json:"data_format"`
}

func (l *MaxPooling2D) config(common commonConfig) any {
	return poolConfig{
		commonConfig: common,
		PoolSize:     [2]int{l.py, l.px},
		Padding:      "valid",
		Strides:      &[2]int{l.py, l.px},
		DataFormat:   channelsLast,
	}
}

func decodePool(cfg poolConfig) (Layer, error) {
	if err := checkDataFormat(cfg.DataFormat); err != nil {
		return nil, err
	}
	if cfg.Padding != "valid" {
		return nil, fmt.Errorf("max_pooling2d %s: unsupported padding %q", cfg.Name, cfg.Padding)
	}
	if cfg.Strides != nil && *cfg.Strides != cfg.PoolSize {
		return nil, fmt.Errorf("max_pooling2d %s: strides %v must equal pool size %v", cfg.Name, *cfg.Strides, cfg.PoolSize)
	}
	return &MaxPooling2D{py: cfg.PoolSize[0], px: cfg.PoolSize[1]}, nil
}
