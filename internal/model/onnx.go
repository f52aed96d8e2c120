package model

import (
	"fmt"
	"sync"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
	ort "github.com/yalue/onnxruntime_go"
)

// OnnxBackend runs an ONNX export of the network with fixed NHWC input and
// [1, classes] output tensors.
type OnnxBackend struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

type OnnxOptions struct {
	ModelPath     string
	SharedLibrary string
	InputName     string
	OutputName    string
}

func NewOnnxBackend(opts OnnxOptions, metadata Metadata) (*OnnxBackend, error) {
	if opts.SharedLibrary != "" {
		ort.SetSharedLibraryPath(opts.SharedLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &OnnxBackend{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (b *OnnxBackend) Probabilities(image *tensor.Tensor) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	input := b.inputTensor.GetData()
	if len(input) != image.Shape().Numel() {
		return nil, fmt.Errorf("session expects %d input values, got %d", len(input), image.Shape().Numel())
	}
	copy(input, image.DataPtr())

	if err := b.session.Run(); err != nil {
		return nil, err
	}
	return append([]float32(nil), b.outputTensor.GetData()...), nil
}

func (b *OnnxBackend) Close() error {
	if b.inputTensor != nil {
		b.inputTensor.Destroy()
	}
	if b.outputTensor != nil {
		b.outputTensor.Destroy()
	}
	if b.session != nil {
		b.session.Destroy()
	}
	return ort.DestroyEnvironment()
}
