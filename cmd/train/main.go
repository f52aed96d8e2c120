package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/flower-cnn/internal/config"
	"github.com/Brownie44l1/flower-cnn/internal/dataset"
	"github.com/Brownie44l1/flower-cnn/internal/export"
	"github.com/Brownie44l1/flower-cnn/internal/flowers"
	"github.com/Brownie44l1/flower-cnn/internal/model"
	"github.com/Brownie44l1/flower-cnn/internal/nn"
	"github.com/Brownie44l1/flower-cnn/internal/storage"
	"github.com/Brownie44l1/flower-cnn/internal/train"
)

func main() {
	cfg, err := config.LoadTrain()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := flowers.Compile(nn.WithSeed(cfg.Seed))
	if err != nil {
		log.Fatalf("Failed to build model: %v", err)
	}
	if err := m.Summary(os.Stdout); err != nil {
		log.Fatalf("Failed to print summary: %v", err)
	}

	if err := export.WriteArchitecture(cfg.ArchitecturePath, m); err != nil {
		log.Fatalf("Failed to write architecture: %v", err)
	}

	trainSet, err := dataset.NewDirectoryIterator(cfg.TrainDir, dataset.Options{
		TargetSize: flowers.ImageSize,
		BatchSize:  cfg.BatchSize,
		Shuffle:    true,
		Seed:       cfg.Seed,
		Generator:  flowers.TrainGenerator(),
		Classes:    flowers.Labels,
	})
	if err != nil {
		log.Fatalf("Failed to open training set: %v", err)
	}

	validationSet, err := dataset.NewDirectoryIterator(cfg.ValidateDir, dataset.Options{
		TargetSize: flowers.ImageSize,
		BatchSize:  cfg.BatchSize,
		Shuffle:    true,
		Seed:       cfg.Seed,
		Generator:  flowers.ValidationGenerator(),
		Classes:    flowers.Labels,
	})
	if err != nil {
		log.Fatalf("Failed to open validation set: %v", err)
	}

	history, err := train.Fit(ctx, m, trainSet, validationSet, train.Config{
		Epochs:       cfg.Epochs,
		Workers:      cfg.Workers,
		MaxQueueSize: cfg.MaxQueueSize,
		Progress:     os.Stderr,
	})
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	paths := export.Paths{
		Architecture: cfg.ArchitecturePath,
		Checkpoint:   cfg.CheckpointPath,
		Dump:         cfg.DumpPath,
	}
	if err := export.WriteArtifacts(paths, m); err != nil {
		log.Fatalf("Failed to export model: %v", err)
	}
	if err := model.DefaultMetadata().Save(cfg.MetadataPath); err != nil {
		log.Fatalf("Failed to write metadata: %v", err)
	}
	if err := history.Save(cfg.HistoryPath); err != nil {
		log.Fatalf("Failed to write history: %v", err)
	}

	if last, ok := history.Last(); ok {
		log.Printf("Run %s finished: loss %.4f, acc %.4f, val_loss %.4f, val_acc %.4f",
			history.RunID, last.Loss, last.Accuracy, last.ValLoss, last.ValAccuracy)
	}

	if cfg.ArtifactBucket == "" {
		return
	}

	provider, err := storage.NewProvider(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage provider: %v", err)
	}
	files := append(paths.Files(), cfg.MetadataPath, cfg.HistoryPath)
	if err := storage.Publish(ctx, provider, cfg.ArtifactBucket, history.RunID, files); err != nil {
		log.Fatalf("Failed to publish artifacts: %v", err)
	}
	log.Printf("Published %d artifacts to %s/%s/", len(files), cfg.ArtifactBucket, history.RunID)
}
