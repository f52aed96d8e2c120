package nn

import (
	"fmt"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// ZeroPadding2D surrounds each feature map with zero rows and columns.
type ZeroPadding2D struct {
	base
	top, bottom, left, right int
}

// NewZeroPadding2D pads py rows above and below and px columns left and right.
func NewZeroPadding2D(py, px int) *ZeroPadding2D {
	return &ZeroPadding2D{top: py, bottom: py, left: px, right: px}
}

func (l *ZeroPadding2D) ClassName() string { return "ZeroPadding2D" }

func (l *ZeroPadding2D) Build(input tensor.Shape, _ *rand.Rand) (tensor.Shape, error) {
	if input.NDim() != 3 {
		return tensor.Shape{}, fmt.Errorf("%s: expected (height, width, channels) input, got %v", l.name, input)
	}
	if l.top < 0 || l.bottom < 0 || l.left < 0 || l.right < 0 {
		return tensor.Shape{}, fmt.Errorf("%s: negative padding", l.name)
	}
	l.in = input
	l.out = tensor.NewShape(input.At(0)+l.top+l.bottom, input.At(1)+l.left+l.right, input.At(2))
	return l.out, nil
}

func (l *ZeroPadding2D) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	n := batchOf(x, l.in, l.name)
	h, w, c := l.in.At(0), l.in.At(1), l.in.At(2)
	oh, ow := l.out.At(0), l.out.At(1)
	out := tensor.New(l.out.Prepend(n))
	src, dst := x.DataPtr(), out.DataPtr()
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			from := ((b*h + y) * w) * c
			to := ((b*oh+y+l.top)*ow + l.left) * c
			copy(dst[to:to+w*c], src[from:from+w*c])
		}
	}
	return out
}

func (l *ZeroPadding2D) Backward(grad *tensor.Tensor) *tensor.Tensor {
	n := batchOf(grad, l.out, l.name)
	h, w, c := l.in.At(0), l.in.At(1), l.in.At(2)
	oh, ow := l.out.At(0), l.out.At(1)
	dx := tensor.New(l.in.Prepend(n))
	src, dst := grad.DataPtr(), dx.DataPtr()
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			from := ((b*oh+y+l.top)*ow + l.left) * c
			to := ((b*h + y) * w) * c
			copy(dst[to:to+w*c], src[from:from+w*c])
		}
	}
	return dx
}

type zeroPaddingConfig struct {
	commonConfig
	Padding    [2][2]int `json:"padding"`
	DataFormat string    `json:"data_format"`
}

func (l *ZeroPadding2D) config(common commonConfig) any {
	return zeroPaddingConfig{
		commonConfig: common,
		Padding:      [2][2]int{{l.top, l.bottom}, {l.left, l.right}},
		DataFormat:   channelsLast,
	}
}

func decodeZeroPadding(cfg zeroPaddingConfig) (Layer, error) {
	if err := checkDataFormat(cfg.DataFormat); err != nil {
		return nil, err
	}
	return &ZeroPadding2D{
		top:    cfg.Padding[0][0],
		bottom: cfg.Padding[0][1],
		left:   cfg.Padding[1][0],
		right:  cfg.Padding[1][1],
	}, nil
}
