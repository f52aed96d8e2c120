package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Brownie44l1/flower-cnn/internal/config"
	"github.com/Brownie44l1/flower-cnn/internal/dataset"
	"github.com/Brownie44l1/flower-cnn/internal/model"
	"github.com/Brownie44l1/flower-cnn/internal/storage"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <image>\n", os.Args[0])
		os.Exit(2)
	}
	imagePath := os.Args[1]

	cfg, err := config.LoadPredict()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ArtifactBucket != "" {
		provider, err := storage.NewProvider(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to create storage provider: %v", err)
		}
		if _, err := storage.Fetch(context.Background(), provider, cfg.ArtifactBucket, cfg.ArtifactPrefix, cfg.ArtifactDir); err != nil {
			log.Fatalf("Failed to fetch artifacts: %v", err)
		}
	}

	classifier, err := model.Open(model.Options{
		Backend:          cfg.Backend,
		ArchitecturePath: cfg.ArchitecturePath,
		WeightsPath:      cfg.WeightsPath,
		MetadataPath:     cfg.MetadataPath,
		Onnx: model.OnnxOptions{
			ModelPath:     cfg.OnnxModelPath,
			SharedLibrary: cfg.OnnxRuntimeDylib,
			InputName:     cfg.OnnxInputName,
			OutputName:    cfg.OnnxOutputName,
		},
	})
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer classifier.Close()

	image, err := dataset.LoadImage(imagePath, classifier.Metadata.ImageSize)
	if err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}
	dataset.ScalePixels(image)

	result, err := classifier.PredictTensor(image)
	if err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}

	if err := model.WriteRanking(os.Stdout, result.Ranking); err != nil {
		log.Fatalf("Failed to print predictions: %v", err)
	}
}
