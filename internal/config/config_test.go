package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/flower-cnn/internal/flowers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestTrainDefaultsMatchHyperparameters(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadTrain()
	require.NoError(t, err)
	assert.Equal(t, flowers.Epochs, cfg.Epochs)
	assert.Equal(t, flowers.BatchSize, cfg.BatchSize)
	assert.Equal(t, flowers.Workers, cfg.Workers)
	assert.Equal(t, flowers.MaxQueueSize, cfg.MaxQueueSize)
	assert.Equal(t, "../data/train", cfg.TrainDir)
	assert.Equal(t, "../data/validate", cfg.ValidateDir)
	assert.Equal(t, "my-weights.cpp", cfg.DumpPath)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Empty(t, cfg.ArtifactBucket)
}

func TestTrainOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("EPOCHS", "3")
	t.Setenv("TRAIN_DIR", "/data/flowers")
	t.Setenv("STORAGE_PROVIDER", "s3")

	cfg, err := LoadTrain()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, "/data/flowers", cfg.TrainDir)
	assert.Equal(t, "s3", cfg.Storage.Provider)

	t.Setenv("BATCH_SIZE", "0")
	_, err = LoadTrain()
	assert.Error(t, err)

	t.Setenv("BATCH_SIZE", "many")
	_, err = LoadTrain()
	assert.ErrorContains(t, err, "error parsing config")
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MODEL_BACKEND=onnx\nPORT=9090\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("MODEL_BACKEND")
		os.Unsetenv("PORT")
	})

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "onnx", cfg.Backend)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "architecture.json", cfg.ArchitecturePath)
}

func TestExplicitEnvFileMustExist(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ENV_FILE", "missing.env")

	_, err := LoadPredict()
	assert.ErrorContains(t, err, "missing.env")
}

func TestPredictArtifactSource(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadPredict()
	require.NoError(t, err)
	assert.Empty(t, cfg.ArtifactBucket)
	assert.Equal(t, ".", cfg.ArtifactDir)

	t.Setenv("ARTIFACT_BUCKET", "runs")
	t.Setenv("ARTIFACT_PREFIX", "1234")
	t.Setenv("STORAGE_ROOT", "/srv/artifacts")
	cfg, err = LoadPredict()
	require.NoError(t, err)
	assert.Equal(t, "runs", cfg.ArtifactBucket)
	assert.Equal(t, "1234", cfg.ArtifactPrefix)
	assert.Equal(t, "/srv/artifacts", cfg.Storage.LocalRoot)
}
