package model

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/flower-cnn/internal/export"
	"github.com/Brownie44l1/flower-cnn/internal/flowers"
	"github.com/Brownie44l1/flower-cnn/internal/nn"
	"github.com/Brownie44l1/flower-cnn/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankIsStableDescending(t *testing.T) {
	ranking, err := Rank([]float32{0.1, 0.5, 0.05, 0.3, 0.05}, flowers.Labels)
	require.NoError(t, err)

	var order []string
	for _, p := range ranking {
		order = append(order, p.Class)
	}
	assert.Equal(t, []string{"dandelion", "tulips", "daisy", "roses", "sunflowers"}, order)

	var buf bytes.Buffer
	require.NoError(t, WriteRanking(&buf, ranking))
	assert.Equal(t,
		"dandelion: 50.000000%\n"+
			"tulips: 30.000001%\n"+
			"daisy: 10.000000%\n"+
			"roses: 5.000000%\n"+
			"sunflowers: 5.000000%\n",
		buf.String())
}

func TestRankAllEqualKeepsLabelOrder(t *testing.T) {
	ranking, err := Rank([]float32{0.2, 0.2, 0.2, 0.2, 0.2}, flowers.Labels)
	require.NoError(t, err)
	for i, p := range ranking {
		assert.Equal(t, flowers.Labels[i], p.Class)
	}
}

func TestRankLengthMismatch(t *testing.T) {
	_, err := Rank([]float32{1}, flowers.Labels)
	assert.Error(t, err)
}

type fakeBackend struct {
	probs  []float32
	err    error
	seen   *tensor.Tensor
	closed bool
}

func (f *fakeBackend) Probabilities(image *tensor.Tensor) ([]float32, error) {
	f.seen = image
	return f.probs, f.err
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestClassifierPredict(t *testing.T) {
	backend := &fakeBackend{probs: []float32{0.1, 0.2, 0.4, 0.2, 0.1}}
	c, err := NewClassifier(backend, DefaultMetadata())
	require.NoError(t, err)

	resp, err := c.Predict(make([]float32, 128*128*3))
	require.NoError(t, err)
	assert.Equal(t, "roses", resp.Class)
	assert.Equal(t, float32(0.4), resp.Confidence)
	assert.Equal(t, float32(0.2), resp.Predictions["dandelion"])
	assert.Equal(t, "dandelion", resp.Ranking[1].Class)
	assert.Equal(t, "sunflowers", resp.Ranking[2].Class)
	assert.Equal(t, []int{128, 128, 3}, backend.seen.Shape().Dims())

	require.NoError(t, c.Close())
	assert.True(t, backend.closed)
}

func TestClassifierRejectsBadInput(t *testing.T) {
	c, err := NewClassifier(&fakeBackend{}, DefaultMetadata())
	require.NoError(t, err)

	_, err = c.Predict(make([]float32, 10))
	assert.ErrorContains(t, err, "expected 49152 input values")

	_, err = c.PredictTensor(tensor.Zeros(64, 64, 3))
	assert.Error(t, err)
}

func TestClassifierPropagatesBackendErrors(t *testing.T) {
	c, err := NewClassifier(&fakeBackend{err: errors.New("boom")}, DefaultMetadata())
	require.NoError(t, err)

	_, err = c.Predict(make([]float32, 128*128*3))
	assert.ErrorContains(t, err, "inference failed: boom")
}

func TestMetadataSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, DefaultMetadata().Save(path))

	loaded, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultMetadata(), loaded)
	assert.Equal(t, 128*128*3, loaded.InputSize())

	bad := DefaultMetadata()
	bad.Classes = bad.Classes[:3]
	assert.Error(t, bad.Validate())

	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadMetadata(path)
	assert.ErrorContains(t, err, "failed to parse metadata")
}

func TestOpenNativeFromArtifacts(t *testing.T) {
	dir := t.TempDir()
	m, err := flowers.Compile(nn.WithSeed(4))
	require.NoError(t, err)

	paths := export.Paths{
		Architecture: filepath.Join(dir, "architecture.json"),
		Checkpoint:   filepath.Join(dir, "weights.ckpt"),
	}
	require.NoError(t, export.WriteArtifacts(paths, m))

	image := tensor.Zeros(128, 128, 3)
	for i := range image.DataPtr() {
		image.DataPtr()[i] = float32(i%255) / 255
	}
	want, err := m.Predict(image.Reshape(image.Shape().Prepend(1)))
	require.NoError(t, err)

	c, err := Open(Options{Backend: BackendNative, ArchitecturePath: paths.Architecture, WeightsPath: paths.Checkpoint})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.PredictTensor(image)
	require.NoError(t, err)

	var sum float32
	for i, label := range flowers.Labels {
		assert.Equal(t, want.Data()[i], resp.Predictions[label])
		sum += resp.Predictions[label]
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(Options{Backend: "tpu"})
	assert.ErrorContains(t, err, "unknown model backend")

	_, err = Open(Options{ArchitecturePath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestOpenOnnx(t *testing.T) {
	lib, modelPath := os.Getenv("ONNX_RUNTIME_DYLIB"), os.Getenv("ONNX_MODEL_PATH")
	if lib == "" || modelPath == "" {
		t.Skip("ONNX_RUNTIME_DYLIB and ONNX_MODEL_PATH are required")
	}

	c, err := Open(Options{
		Backend: BackendOnnx,
		Onnx:    OnnxOptions{ModelPath: modelPath, SharedLibrary: lib, InputName: "input", OutputName: "output"},
	})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Predict(make([]float32, 128*128*3))
	require.NoError(t, err)
	assert.Len(t, resp.Ranking, 5)
}
