package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Brownie44l1/flower-cnn/internal/flowers"
)

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// DefaultMetadata describes the flower network with a batch of one.
func DefaultMetadata() Metadata {
	return Metadata{
		InputShape:  []int64{1, flowers.ImageSize, flowers.ImageSize, flowers.Channels},
		OutputShape: []int64{1, flowers.NumCategories},
		Classes:     append([]string(nil), flowers.Labels...),
		ImageSize:   flowers.ImageSize,
	}
}

// InputSize is the number of floats in one input image.
func (m Metadata) InputSize() int {
	n := 1
	for _, d := range m.InputShape[1:] {
		n *= int(d)
	}
	return n
}

func (m Metadata) Validate() error {
	if len(m.InputShape) < 2 || len(m.OutputShape) != 2 {
		return fmt.Errorf("invalid metadata shapes %v -> %v", m.InputShape, m.OutputShape)
	}
	if int(m.OutputShape[1]) != len(m.Classes) {
		return fmt.Errorf("metadata lists %d classes for %d outputs", len(m.Classes), m.OutputShape[1])
	}
	return nil
}

func LoadMetadata(path string) (Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m Metadata) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type Prediction struct {
	Class       string  `json:"class"`
	Probability float32 `json:"probability"`
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
	Ranking     []Prediction       `json:"ranking"`
}
