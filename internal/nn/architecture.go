package nn

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

const channelsLast = "channels_last"

// commonConfig is shared by every layer entry of an architecture file.
type commonConfig struct {
	Name            string `json:"name"`
	Trainable       bool   `json:"trainable"`
	BatchInputShape []*int `json:"batch_input_shape,omitempty"`
	DType           string `json:"dtype,omitempty"`
}

type layerJSON struct {
	ClassName string          `json:"class_name"`
	Config    json.RawMessage `json:"config"`
}

type modelJSON struct {
	ClassName string `json:"class_name"`
	Config    struct {
		Name   string      `json:"name"`
		Layers []layerJSON `json:"layers"`
	} `json:"config"`
}

func checkDataFormat(format string) error {
	if format != "" && format != channelsLast {
		return fmt.Errorf("unsupported data_format %q", format)
	}
	return nil
}

func checkLinear(activation string) error {
	if activation != "" && activation != "linear" {
		return fmt.Errorf("fused activation %q is not supported, use an Activation layer", activation)
	}
	return nil
}

// MarshalJSON writes the Keras-style architecture description.
func (m *Sequential) MarshalJSON() ([]byte, error) {
	if !m.built {
		return nil, errors.New("model is not built")
	}
	var doc modelJSON
	doc.ClassName = "Sequential"
	doc.Config.Name = m.name
	for i, l := range m.layers {
		common := commonConfig{Name: l.Name(), Trainable: true}
		if i == 0 {
			common.BatchInputShape = []*int{nil}
			for _, d := range m.input.Dims() {
				d := d
				common.BatchInputShape = append(common.BatchInputShape, &d)
			}
			common.DType = "float32"
		}
		raw, err := json.Marshal(l.config(common))
		if err != nil {
			return nil, fmt.Errorf("error encoding layer %s: %w", l.Name(), err)
		}
		doc.Config.Layers = append(doc.Config.Layers, layerJSON{ClassName: l.ClassName(), Config: raw})
	}
	return json.Marshal(doc)
}

func decodeWith[C any](raw json.RawMessage, decode func(C) (Layer, error)) (Layer, commonConfig, error) {
	var cfg C
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, commonConfig{}, err
	}
	var common commonConfig
	if err := json.Unmarshal(raw, &common); err != nil {
		return nil, commonConfig{}, err
	}
	l, err := decode(cfg)
	return l, common, err
}

var decoders = map[string]func(json.RawMessage) (Layer, commonConfig, error){
	"ZeroPadding2D": func(raw json.RawMessage) (Layer, commonConfig, error) { return decodeWith(raw, decodeZeroPadding) },
	"Conv2D":        func(raw json.RawMessage) (Layer, commonConfig, error) { return decodeWith(raw, decodeConv) },
	"Activation":    func(raw json.RawMessage) (Layer, commonConfig, error) { return decodeWith(raw, decodeActivation) },
	"MaxPooling2D":  func(raw json.RawMessage) (Layer, commonConfig, error) { return decodeWith(raw, decodePool) },
	"Flatten":       func(raw json.RawMessage) (Layer, commonConfig, error) { return decodeWith(raw, decodeFlatten) },
	"Dropout":       func(raw json.RawMessage) (Layer, commonConfig, error) { return decodeWith(raw, decodeDropout) },
	"Dense":         func(raw json.RawMessage) (Layer, commonConfig, error) { return decodeWith(raw, decodeDense) },
}

// ModelFromJSON rebuilds a model from an architecture description. Weights
// are freshly initialised; load a checkpoint to restore trained values.
func ModelFromJSON(data []byte, opts ...Option) (*Sequential, error) {
	var doc modelJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing architecture: %w", err)
	}
	if doc.ClassName != "Sequential" {
		return nil, fmt.Errorf("unsupported model class %q", doc.ClassName)
	}
	if len(doc.Config.Layers) == 0 {
		return nil, errors.New("architecture has no layers")
	}

	m := NewSequential(doc.Config.Name, opts...)
	var input []int
	for i, ls := range doc.Config.Layers {
		decode, ok := decoders[ls.ClassName]
		if !ok {
			return nil, fmt.Errorf("layer %d: unknown layer class %q", i, ls.ClassName)
		}
		l, common, err := decode(ls.Config)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, ls.ClassName, err)
		}
		if i == 0 {
			if len(common.BatchInputShape) < 2 {
				return nil, errors.New("first layer has no batch_input_shape")
			}
			for _, d := range common.BatchInputShape[1:] {
				if d == nil {
					return nil, errors.New("batch_input_shape must be fully specified after the batch axis")
				}
				input = append(input, *d)
			}
		}
		l.setName(common.Name)
		m.Add(l)
	}

	if err := m.Build(tensor.NewShape(input...)); err != nil {
		return nil, err
	}
	return m, nil
}
