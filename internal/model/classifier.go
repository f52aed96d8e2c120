// Package model classifies preprocessed flower images with either the native
// Go network or an ONNX Runtime session.
package model

import (
	"fmt"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Backend computes class probabilities for one HWC image.
type Backend interface {
	Probabilities(image *tensor.Tensor) ([]float32, error)
	Close() error
}

type Classifier struct {
	backend  Backend
	Metadata Metadata
}

func NewClassifier(backend Backend, metadata Metadata) (*Classifier, error) {
	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{backend: backend, Metadata: metadata}, nil
}

func (c *Classifier) inputShape() tensor.Shape {
	dims := make([]int, len(c.Metadata.InputShape)-1)
	for i, d := range c.Metadata.InputShape[1:] {
		dims[i] = int(d)
	}
	return tensor.NewShape(dims...)
}

// Predict classifies one image given as flat HWC floats in [0, 1].
func (c *Classifier) Predict(inputData []float32) (*PredictionResponse, error) {
	if len(inputData) != c.Metadata.InputSize() {
		return nil, fmt.Errorf("expected %d input values, got %d", c.Metadata.InputSize(), len(inputData))
	}
	return c.PredictTensor(tensor.FromSlice(inputData, c.inputShape()))
}

// PredictTensor classifies one HWC image tensor.
func (c *Classifier) PredictTensor(image *tensor.Tensor) (*PredictionResponse, error) {
	if !image.Shape().Equal(c.inputShape()) {
		return nil, fmt.Errorf("expected image of shape %s, got %s", c.inputShape(), image.Shape())
	}

	outputData, err := c.backend.Probabilities(image)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	ranking, err := Rank(outputData, c.Metadata.Classes)
	if err != nil {
		return nil, err
	}

	predictions := make(map[string]float32, len(ranking))
	for _, p := range ranking {
		predictions[p.Class] = p.Probability
	}

	return &PredictionResponse{
		Class:       ranking[0].Class,
		Confidence:  ranking[0].Probability,
		Predictions: predictions,
		Ranking:     ranking,
	}, nil
}

func (c *Classifier) Close() error {
	return c.backend.Close()
}
