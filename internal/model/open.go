package model

import (
	"fmt"
	"log/slog"
)

const (
	BackendNative = "native"
	BackendOnnx   = "onnx"
)

type Options struct {
	Backend          string
	ArchitecturePath string
	WeightsPath      string
	// MetadataPath is optional; the flower defaults apply when it is empty.
	MetadataPath string
	Onnx         OnnxOptions
}

// Open loads a classifier using the configured backend.
func Open(opts Options) (*Classifier, error) {
	metadata := DefaultMetadata()
	if opts.MetadataPath != "" {
		var err error
		if metadata, err = LoadMetadata(opts.MetadataPath); err != nil {
			return nil, err
		}
	}

	var backend Backend
	switch opts.Backend {
	case BackendNative, "":
		native, err := LoadNativeBackend(opts.ArchitecturePath, opts.WeightsPath)
		if err != nil {
			return nil, err
		}
		if got := native.Model().InputShape().Dims(); fmt.Sprint(got) != fmt.Sprint(metadata.InputShape[1:]) {
			return nil, fmt.Errorf("model input %v does not match metadata input %v", got, metadata.InputShape[1:])
		}
		backend = native
	case BackendOnnx:
		onnx, err := NewOnnxBackend(opts.Onnx, metadata)
		if err != nil {
			return nil, err
		}
		backend = onnx
	default:
		return nil, fmt.Errorf("unknown model backend '%s'", opts.Backend)
	}

	classifier, err := NewClassifier(backend, metadata)
	if err != nil {
		backend.Close()
		return nil, err
	}
	slog.Info("loaded classifier", "backend", opts.Backend, "classes", len(metadata.Classes))
	return classifier, nil
}
