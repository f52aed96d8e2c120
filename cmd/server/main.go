package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/flower-cnn/internal/config"
	"github.com/Brownie44l1/flower-cnn/internal/handlers"
	"github.com/Brownie44l1/flower-cnn/internal/model"
	"github.com/Brownie44l1/flower-cnn/internal/storage"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ArtifactBucket != "" {
		provider, err := storage.NewProvider(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to create storage provider: %v", err)
		}
		files, err := storage.Fetch(context.Background(), provider, cfg.ArtifactBucket, cfg.ArtifactPrefix, cfg.ArtifactDir)
		if err != nil {
			log.Fatalf("Failed to fetch artifacts: %v", err)
		}
		log.Printf("Fetched %d artifacts into %s", len(files), cfg.ArtifactDir)
	}

	log.Printf("Loading %s model from: %s", cfg.Backend, cfg.ArchitecturePath)

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
		log.Fatalf("Failed to initialize classifier: %v", err)
	}
	defer classifier.Close()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.NewRouter(handlers.NewHandler(classifier)),
	}

	log.Printf("Server starting on port %d", cfg.Port)
	log.Printf("Classes: %v", classifier.Metadata.Classes)
	log.Println("Endpoints:")
	log.Println("  GET  /health        - Health check")
	log.Println("  POST /predict       - Raw HWC array prediction")
	log.Println("  POST /predict/image - Predict from image upload")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
