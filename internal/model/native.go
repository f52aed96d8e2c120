package model

import (
	"fmt"

	"github.com/Brownie44l1/flower-cnn/internal/export"
	"github.com/Brownie44l1/flower-cnn/internal/nn"
	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// NativeBackend runs the forward pass of a Sequential model.
type NativeBackend struct {
	model *nn.Sequential
}

func NewNativeBackend(model *nn.Sequential) *NativeBackend {
	return &NativeBackend{model: model}
}

// LoadNativeBackend rebuilds the model from an architecture file and loads
// its weights from a checkpoint or a .cpp weight dump.
func LoadNativeBackend(architecturePath, weightsPath string) (*NativeBackend, error) {
	m, err := export.ReadArchitecture(architecturePath)
	if err != nil {
		return nil, err
	}
	if err := export.LoadWeights(weightsPath, m); err != nil {
		return nil, err
	}
	return NewNativeBackend(m), nil
}

func (b *NativeBackend) Model() *nn.Sequential { return b.model }

func (b *NativeBackend) Probabilities(image *tensor.Tensor) ([]float32, error) {
	batch := image.Reshape(image.Shape().Prepend(1))
	out, err := b.model.Predict(batch)
	if err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}
	return out.Slice(0).Data(), nil
}

func (b *NativeBackend) Close() error { return nil }
