// Package config reads the trainer, predictor and server settings from the
// environment. Defaults reproduce the fixed values the tools were built with.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

type Storage struct {
	Provider          string `env:"STORAGE_PROVIDER" envDefault:"local"`
	LocalRoot         string `env:"STORAGE_ROOT" envDefault:"artifacts"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
}

type Train struct {
	TrainDir         string `env:"TRAIN_DIR" envDefault:"../data/train"`
	ValidateDir      string `env:"VALIDATE_DIR" envDefault:"../data/validate"`
	ArchitecturePath string `env:"ARCHITECTURE_PATH" envDefault:"my-architecture.json"`
	CheckpointPath   string `env:"CHECKPOINT_PATH" envDefault:"my-weights.ckpt"`
	DumpPath         string `env:"WEIGHTS_DUMP_PATH" envDefault:"my-weights.cpp"`
	MetadataPath     string `env:"METADATA_PATH" envDefault:"my-metadata.json"`
	HistoryPath      string `env:"HISTORY_PATH" envDefault:"my-history.yaml"`

	Epochs       int   `env:"EPOCHS" envDefault:"70"`
	BatchSize    int   `env:"BATCH_SIZE" envDefault:"40"`
	Workers      int   `env:"WORKERS" envDefault:"32"`
	MaxQueueSize int   `env:"MAX_QUEUE_SIZE" envDefault:"32"`
	Seed         int64 `env:"SEED" envDefault:"1"`

	// ArtifactBucket enables publishing the outputs when set.
	ArtifactBucket string `env:"ARTIFACT_BUCKET"`
	Storage        Storage
}

type Predict struct {
	ArchitecturePath string `env:"ARCHITECTURE_PATH" envDefault:"architecture.json"`
	WeightsPath      string `env:"WEIGHTS_PATH" envDefault:"weights.ckpt"`
	MetadataPath     string `env:"METADATA_PATH"`
	Backend          string `env:"MODEL_BACKEND" envDefault:"native"`
	OnnxModelPath    string `env:"ONNX_MODEL_PATH"`
	OnnxRuntimeDylib string `env:"ONNX_RUNTIME_DYLIB"`
	OnnxInputName    string `env:"ONNX_INPUT_NAME" envDefault:"input"`
	OnnxOutputName   string `env:"ONNX_OUTPUT_NAME" envDefault:"output"`

	// ArtifactBucket, when set, is downloaded from ARTIFACT_PREFIX into
	// ARTIFACT_DIR before the model is opened.
	ArtifactBucket string `env:"ARTIFACT_BUCKET"`
	ArtifactPrefix string `env:"ARTIFACT_PREFIX"`
	ArtifactDir    string `env:"ARTIFACT_DIR" envDefault:"."`
	Storage        Storage
}

type Server struct {
	Predict
	Port int `env:"PORT" envDefault:"8080"`
}

// LoadEnvFile loads ENV_FILE, or .env when ENV_FILE is unset. A missing
// default file is not an error.
func LoadEnvFile() error {
	path, explicit := os.LookupEnv("ENV_FILE")
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			slog.Debug("no env file found, using os.Environ only")
			return nil
		}
		return fmt.Errorf("error loading env file '%s': %w", path, err)
	}
	slog.Info("loaded env file", "path", path)
	return nil
}

func parse[T any]() (T, error) {
	var cfg T
	if err := LoadEnvFile(); err != nil {
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

func LoadTrain() (Train, error) {
	cfg, err := parse[Train]()
	if err != nil {
		return cfg, err
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 || cfg.Workers <= 0 || cfg.MaxQueueSize <= 0 {
		return cfg, fmt.Errorf("epochs, batch size, workers and queue size must be positive")
	}
	return cfg, nil
}

func LoadPredict() (Predict, error) {
	return parse[Predict]()
}

func LoadServer() (Server, error) {
	return parse[Server]()
}
