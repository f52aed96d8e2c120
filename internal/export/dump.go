// Package export writes the trained network's artifacts: the architecture,
// a binary checkpoint, the C++ weight dump and the label metadata.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Brownie44l1/flower-cnn/internal/nn"
	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

const dumpHeader = "#include \"weights.hpp\"\n#include <vector>\nusing std::vector;\n\n"

// LayerWeights is the kernel and bias of one parameterised layer.
type LayerWeights struct {
	Name   string
	Kernel *tensor.Tensor
	Bias   *tensor.Tensor
}

// CollectWeights returns the weights of every layer that has parameters, in
// layer order.
func CollectWeights(m *nn.Sequential) ([]LayerWeights, error) {
	var out []LayerWeights
	for _, l := range m.Layers() {
		params := l.Params()
		if len(params) == 0 {
			continue
		}
		if len(params) != 2 {
			return nil, fmt.Errorf("layer %s has %d parameters, expected kernel and bias", l.Name(), len(params))
		}
		out = append(out, LayerWeights{Name: l.Name(), Kernel: params[0].Value, Bias: params[1].Value})
	}
	return out, nil
}

// DeclType is the C++ type of a rank-n float array, e.g. vector<vector<float>>.
func DeclType(rank int) string {
	return strings.Repeat("vector<", rank) + "float" + strings.Repeat(">", rank)
}

// WriteDump writes the weights as C++ vector initialisers.
func WriteDump(w io.Writer, layers []LayerWeights) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(dumpHeader)

	for _, l := range layers {
		for _, decl := range []struct {
			prefix string
			value  *tensor.Tensor
		}{{"weights", l.Kernel}, {"biases", l.Bias}} {
			dims := decl.value.Shape().Dims()
			if len(dims) == 0 {
				return fmt.Errorf("%s_%s: cannot write a scalar", decl.prefix, l.Name)
			}
			fmt.Fprintf(bw, "%s %s_%s\n", DeclType(len(dims)), decl.prefix, l.Name)
			writeLiteral(bw, decl.value.DataPtr(), dims)
			bw.WriteString(";\n\n")
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error writing weight dump: %w", err)
	}
	return nil
}

// WriteModelDump collects and writes the weights of m.
func WriteModelDump(w io.Writer, m *nn.Sequential) error {
	layers, err := CollectWeights(m)
	if err != nil {
		return err
	}
	return WriteDump(w, layers)
}

func writeLiteral(bw *bufio.Writer, data []float32, dims []int) {
	bw.WriteString("{\n")
	stride := len(data)
	if dims[0] > 0 {
		stride /= dims[0]
	}
	for i := 0; i < dims[0]; i++ {
		if len(dims) == 1 {
			bw.WriteString(FormatScalar(data[i]))
		} else {
			writeLiteral(bw, data[i*stride:(i+1)*stride], dims[1:])
		}
		if i+1 < dims[0] {
			bw.WriteString(", ")
		}
	}
	bw.WriteString("\n}")
}
