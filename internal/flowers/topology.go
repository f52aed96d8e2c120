// Package flowers defines the fixed flower-classifier topology and its labels.
package flowers

import (
	"fmt"

	"github.com/Brownie44l1/flower-cnn/internal/nn"
	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

const (
	ImageSize     = 128
	Channels      = 3
	NumCategories = 5
	DropoutRate   = 0.5
)

// Labels are the class names in output order. Consumers of the exported
// weights rely on this position order, not on the names.
var Labels = []string{"daisy", "dandelion", "roses", "sunflowers", "tulips"}

// ParamLayers are the names of the layers that carry weights, in order.
var ParamLayers = []string{"firstConv", "secondConv", "thirdConv", "fourthConv", "firstDense", "labeller"}

var convBlocks = []struct {
	name    string
	filters int
}{
	{"firstConv", 32},
	{"secondConv", 16},
	{"thirdConv", 16},
	{"fourthConv", 8},
}

// Build returns the uncompiled, built network for ImageSize x ImageSize RGB input.
func Build(opts ...nn.Option) (*nn.Sequential, error) {
	m := nn.NewSequential("sequential_1", opts...)
	for _, block := range convBlocks {
		m.Add(nn.NewZeroPadding2D(1, 1))
		m.Add(nn.NewConv2D(block.filters, 3, block.name))
		m.Add(nn.NewActivation("relu"))
		m.Add(nn.NewMaxPooling2D(2))
	}
	m.Add(nn.NewFlatten())
	m.Add(nn.NewDropout(DropoutRate))
	m.Add(nn.NewDense(256, "firstDense"))
	m.Add(nn.NewActivation("relu"))
	m.Add(nn.NewDense(NumCategories, "labeller"))
	m.Add(nn.NewActivation("softmax"))

	if err := m.Build(InputShape()); err != nil {
		return nil, fmt.Errorf("error building flower network: %w", err)
	}
	return m, nil
}

// Compile builds the network and attaches Nadam and categorical cross-entropy.
func Compile(opts ...nn.Option) (*nn.Sequential, error) {
	m, err := Build(opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Compile(nn.NewNadam(nn.DefaultNadamConfig()), nn.CategoricalCrossentropy{}); err != nil {
		return nil, fmt.Errorf("error compiling flower network: %w", err)
	}
	return m, nil
}

// InputShape is the per-image input shape.
func InputShape() tensor.Shape {
	return tensor.NewShape(ImageSize, ImageSize, Channels)
}
