package nn

import (
	"encoding/json"
	"testing"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchitectureRoundTrip(t *testing.T) {
	m := NewSequential("sequential_1")
	m.Add(NewZeroPadding2D(1, 1))
	m.Add(NewConv2D(4, 3, "firstConv"))
	m.Add(NewActivation("relu"))
	m.Add(NewMaxPooling2D(2))
	m.Add(NewFlatten())
	m.Add(NewDropout(0.5))
	m.Add(NewDense(3, "labeller"))
	m.Add(NewActivation("softmax"))
	require.NoError(t, m.Build(tensor.NewShape(8, 8, 3)))

	data, err := json.Marshal(m)
	require.NoError(t, err)

	restored, err := ModelFromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, "sequential_1", restored.Name())
	assert.True(t, restored.InputShape().Equal(tensor.NewShape(8, 8, 3)))
	assert.True(t, restored.OutputShape().Equal(tensor.NewShape(3)))
	require.Len(t, restored.Layers(), len(m.Layers()))
	for i, l := range m.Layers() {
		assert.Equal(t, l.Name(), restored.Layers()[i].Name())
		assert.Equal(t, l.ClassName(), restored.Layers()[i].ClassName())
	}
	assert.Equal(t, m.CountParams(), restored.CountParams())
}

func TestArchitectureLayout(t *testing.T) {
	m := NewSequential("s")
	m.Add(NewZeroPadding2D(1, 1))
	require.NoError(t, m.Build(tensor.NewShape(4, 4, 3)))

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Sequential", doc["class_name"])

	layers := doc["config"].(map[string]any)["layers"].([]any)
	first := layers[0].(map[string]any)
	assert.Equal(t, "ZeroPadding2D", first["class_name"])
	cfg := first["config"].(map[string]any)
	assert.Equal(t, []any{nil, 4.0, 4.0, 3.0}, cfg["batch_input_shape"])
	assert.Equal(t, []any{[]any{1.0, 1.0}, []any{1.0, 1.0}}, cfg["padding"])
	assert.Equal(t, "channels_last", cfg["data_format"])
}

func TestModelFromJSONErrors(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"functional":       `{"class_name":"Model","config":{"layers":[]}}`,
		"no layers":        `{"class_name":"Sequential","config":{"name":"s","layers":[]}}`,
		"unknown layer":    `{"class_name":"Sequential","config":{"layers":[{"class_name":"LSTM","config":{"name":"l","batch_input_shape":[null,3]}}]}}`,
		"no input shape":   `{"class_name":"Sequential","config":{"layers":[{"class_name":"Dense","config":{"name":"d","units":2}}]}}`,
		"same padding":     `{"class_name":"Sequential","config":{"layers":[{"class_name":"Conv2D","config":{"name":"c","filters":2,"kernel_size":[3,3],"padding":"same","batch_input_shape":[null,4,4,1]}}]}}`,
		"fused activation": `{"class_name":"Sequential","config":{"layers":[{"class_name":"Dense","config":{"name":"d","units":2,"activation":"relu","use_bias":true,"batch_input_shape":[null,3]}}]}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ModelFromJSON([]byte(doc))
			assert.Error(t, err)
		})
	}
}
