package train

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/flower-cnn/internal/dataset"
	"github.com/Brownie44l1/flower-cnn/internal/nn"
	"github.com/Brownie44l1/flower-cnn/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func writeImages(t *testing.T, dir string, n int, fill color.NRGBA) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for i := 0; i < n; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				img.Set(x, y, fill)
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(rune('a'+i))+".png"), buf.Bytes(), 0644))
	}
}

// dataTree writes a two-class dataset where class colours differ in the red channel.
func dataTree(t *testing.T, perClass int) string {
	root := t.TempDir()
	writeImages(t, filepath.Join(root, "dark"), perClass, color.NRGBA{R: 20, G: 100, B: 100, A: 255})
	writeImages(t, filepath.Join(root, "light"), perClass, color.NRGBA{R: 240, G: 100, B: 100, A: 255})
	return root
}

func iterator(t *testing.T, root string, batch int, gen dataset.Generator) *dataset.DirectoryIterator {
	t.Helper()
	it, err := dataset.NewDirectoryIterator(root, dataset.Options{
		TargetSize: 4, BatchSize: batch, Shuffle: true, Seed: 2, Generator: gen,
	})
	require.NoError(t, err)
	return it
}

func tinyModel(t *testing.T) *nn.Sequential {
	t.Helper()
	m := nn.NewSequential("tiny", nn.WithSeed(3))
	m.Add(nn.NewFlatten())
	m.Add(nn.NewDense(2, "labeller"))
	m.Add(nn.NewActivation("softmax"))
	require.NoError(t, m.Build(tensor.NewShape(4, 4, 3)))
	require.NoError(t, m.Compile(&nn.SGD{LearningRate: 0.5}, nn.CategoricalCrossentropy{}))
	return m
}

func TestSteps(t *testing.T) {
	it := iterator(t, dataTree(t, 5), 4, dataset.Generator{Rescale: 1.0 / 255})
	steps, err := Steps(it)
	require.NoError(t, err)
	assert.Equal(t, 2, steps)

	small := iterator(t, dataTree(t, 1), 4, dataset.Generator{})
	_, err = Steps(small)
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	root := dataTree(t, 4)
	train := iterator(t, root, 3, dataset.Generator{Rescale: 1.0 / 255, HorizontalFlip: true, ZoomRange: 0.1})
	validation := iterator(t, root, 4, dataset.Generator{Rescale: 1.0 / 255})

	var progress bytes.Buffer
	history, err := Fit(context.Background(), tinyModel(t), train, validation,
		Config{Epochs: 15, Workers: 2, MaxQueueSize: 2, Progress: &progress})
	require.NoError(t, err)

	require.Len(t, history.Epochs, 15)
	assert.NotEmpty(t, history.RunID)
	for i, e := range history.Epochs {
		assert.Equal(t, i+1, e.Epoch)
		assert.False(t, math.IsNaN(e.Loss))
	}
	last, ok := history.Last()
	require.True(t, ok)
	assert.Less(t, last.Loss, history.Epochs[0].Loss)
	assert.Equal(t, 1.0, last.ValAccuracy)
	assert.NotZero(t, progress.Len())
}

func TestFitRejectsEmptyValidation(t *testing.T) {
	train := iterator(t, dataTree(t, 2), 2, dataset.Generator{})
	validation := iterator(t, dataTree(t, 1), 4, dataset.Generator{})

	_, err := Fit(context.Background(), tinyModel(t), train, validation, Config{Epochs: 1, Workers: 1, MaxQueueSize: 1})
	assert.ErrorContains(t, err, "invalid validation set")
}

func TestFitStopsOnBadImage(t *testing.T) {
	root := dataTree(t, 2)
	require.NoError(t, os.WriteFile(filepath.Join(root, "dark", "zz.png"), []byte("broken"), 0644))

	train := iterator(t, root, 5, dataset.Generator{})
	validation := iterator(t, dataTree(t, 2), 2, dataset.Generator{})

	_, err := Fit(context.Background(), tinyModel(t), train, validation, Config{Epochs: 3, Workers: 2, MaxQueueSize: 2})
	assert.ErrorContains(t, err, "error loading batch")
}

func TestFitHonoursCancellation(t *testing.T) {
	root := dataTree(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fit(ctx, tinyModel(t), iterator(t, root, 2, dataset.Generator{}), iterator(t, root, 2, dataset.Generator{}),
		Config{Epochs: 2, Workers: 1, MaxQueueSize: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHistorySaveLoad(t *testing.T) {
	h := NewHistory()
	h.Epochs = append(h.Epochs, EpochResult{Epoch: 1, Loss: 1.5, Accuracy: 0.25, ValLoss: 1.25, ValAccuracy: 0.5})

	path := filepath.Join(t.TempDir(), "history.yaml")
	require.NoError(t, h.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id: "+h.RunID)
	assert.Contains(t, string(data), "val_acc: 0.5")

	var loaded History
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, h.RunID, loaded.RunID)
	assert.Equal(t, h.Epochs, loaded.Epochs)
	assert.True(t, h.Started.Equal(loaded.Started))
}
