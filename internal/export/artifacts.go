package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/Brownie44l1/flower-cnn/internal/nn"
)

// Paths are the output files of a training run.
type Paths struct {
	Architecture string
	Checkpoint   string
	Dump         string
}

// Files lists the paths that are set.
func (p Paths) Files() []string {
	var files []string
	for _, f := range []string{p.Architecture, p.Checkpoint, p.Dump} {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}

// WriteArchitecture writes the Keras-style JSON description of m.
func WriteArchitecture(path string, m *nn.Sequential) error {
	return writeFile(path, func(w io.Writer) error {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("error encoding architecture: %w", err)
		}
		_, err = w.Write(data)
		return err
	})
}

// ReadArchitecture rebuilds an uninitialised model from an architecture file.
func ReadArchitecture(path string, opts ...nn.Option) (*nn.Sequential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading architecture: %w", err)
	}
	m, err := nn.ModelFromJSON(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading architecture %s: %w", path, err)
	}
	return m, nil
}

// WriteArtifacts writes every non-empty path in p. The dump is parsed back
// and compared with the model before returning.
func WriteArtifacts(p Paths, m *nn.Sequential) error {
	if p.Architecture != "" {
		if err := WriteArchitecture(p.Architecture, m); err != nil {
			return err
		}
		slog.Info("wrote architecture", "path", p.Architecture)
	}

	if p.Checkpoint != "" {
		if err := writeFile(p.Checkpoint, func(w io.Writer) error { return SaveCheckpoint(w, m) }); err != nil {
			return err
		}
		slog.Info("wrote checkpoint", "path", p.Checkpoint)
	}

	if p.Dump != "" {
		layers, err := CollectWeights(m)
		if err != nil {
			return err
		}
		if err := writeFile(p.Dump, func(w io.Writer) error { return WriteDump(w, layers) }); err != nil {
			return err
		}

		f, err := os.Open(p.Dump)
		if err != nil {
			return fmt.Errorf("error reopening weight dump: %w", err)
		}
		defer f.Close()
		if err := VerifyDump(bufio.NewReader(f), layers); err != nil {
			return fmt.Errorf("weight dump verification failed: %w", err)
		}
		slog.Info("wrote weight dump", "path", p.Dump, "layers", len(layers))
	}

	return nil
}

// LoadWeights fills m from a checkpoint, or from a weight dump when path ends in .cpp.
func LoadWeights(path string, m *nn.Sequential) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening weights: %w", err)
	}
	defer f.Close()

	if filepath.Ext(path) == ".cpp" {
		err = LoadDump(bufio.NewReader(f), m)
	} else {
		err = LoadCheckpoint(f, m)
	}
	if err != nil {
		return fmt.Errorf("error loading weights %s: %w", path, err)
	}
	return nil
}

// LoadDump fills m from a weight dump, matching declarations by layer name.
// Declarations for layers the model does not have are ignored with a warning.
func LoadDump(r io.Reader, m *nn.Sequential) error {
	dump, err := ParseDump(r)
	if err != nil {
		return err
	}
	layers, err := CollectWeights(m)
	if err != nil {
		return err
	}

	byLayer := make(map[string]map[string]Declaration)
	for _, decl := range dump.Declarations {
		if byLayer[decl.Layer()] == nil {
			byLayer[decl.Layer()] = make(map[string]Declaration, 2)
		}
		byLayer[decl.Layer()][decl.Kind()] = decl
	}

	for _, l := range layers {
		decls := byLayer[l.Name]
		for _, target := range []struct {
			kind  string
			value []float32
			dims  []int
		}{
			{"weights", l.Kernel.DataPtr(), l.Kernel.Shape().Dims()},
			{"biases", l.Bias.DataPtr(), l.Bias.Shape().Dims()},
		} {
			decl, ok := decls[target.kind]
			if !ok {
				return fmt.Errorf("dump has no declaration %s_%s", target.kind, l.Name)
			}
			if !slices.Equal(decl.Shape, target.dims) {
				return fmt.Errorf("%s has shape %v, model expects %v", decl.Name, decl.Shape, target.dims)
			}
			copy(target.value, decl.Values)
		}
		delete(byLayer, l.Name)
	}

	for layer := range byLayer {
		slog.Warn("weight dump has a layer the model does not", "layer", layer)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}
	return nil
}
