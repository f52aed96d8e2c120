// Package nn implements the channels-last convolutional network used by the
// trainer and the predictor: layers, a sequential container, optimizers, the
// loss, and the Keras-style architecture description.
package nn

import (
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Param is a trainable tensor together with its accumulated gradient.
type Param struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

func newParam(name string, shape tensor.Shape) *Param {
	return &Param{
		Name:  name,
		Value: tensor.New(shape),
		Grad:  tensor.New(shape),
	}
}

// Layer is one step of a Sequential model. Shapes passed to Build are
// per-sample; Forward and Backward operate on batches with a leading N axis.
type Layer interface {
	// Name returns the unique layer name inside its model.
	Name() string
	// ClassName returns the Keras class name used in architecture files.
	ClassName() string
	// Build validates the per-sample input shape, allocates parameters and
	// returns the per-sample output shape.
	Build(input tensor.Shape, rng *rand.Rand) (tensor.Shape, error)
	// Forward computes the layer output. training enables dropout.
	Forward(x *tensor.Tensor, training bool) *tensor.Tensor
	// Backward accumulates parameter gradients and returns the input gradient.
	Backward(grad *tensor.Tensor) *tensor.Tensor
	// Params returns kernel then bias for layers that have them, nil otherwise.
	Params() []*Param

	setName(name string)
	outputShape() tensor.Shape
	config(common commonConfig) any
}

type base struct {
	name string
	in   tensor.Shape
	out  tensor.Shape
}

func (b *base) Name() string        { return b.name }
func (b *base) setName(name string) { b.name = name }
func (b *base) Params() []*Param    { return nil }

func (b *base) outputShape() tensor.Shape { return b.out }

var defaultPrefixes = map[string]string{
	"ZeroPadding2D": "zero_padding2d",
	"Conv2D":        "conv2d",
	"Activation":    "activation",
	"MaxPooling2D":  "max_pooling2d",
	"Flatten":       "flatten",
	"Dropout":       "dropout",
	"Dense":         "dense",
}

func batchOf(x *tensor.Tensor, sample tensor.Shape, layer string) int {
	s := x.Shape()
	if !s.Tail().Equal(sample) {
		panic(layer + ": input shape " + s.String() + " does not match built shape " + sample.String())
	}
	return s.At(0)
}
