package export

import (
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// VerifyDump parses a dump and checks that it declares exactly the given
// weights, bit for bit.
func VerifyDump(r io.Reader, layers []LayerWeights) error {
	dump, err := ParseDump(r)
	if err != nil {
		return err
	}
	if len(dump.Declarations) != 2*len(layers) {
		return fmt.Errorf("dump has %d declarations, expected %d", len(dump.Declarations), 2*len(layers))
	}

	for i, l := range layers {
		for j, expected := range []struct {
			name  string
			value *tensor.Tensor
		}{{"weights_" + l.Name, l.Kernel}, {"biases_" + l.Name, l.Bias}} {
			decl := dump.Declarations[2*i+j]
			if decl.Name != expected.name {
				return fmt.Errorf("declaration %d is %s, expected %s", 2*i+j, decl.Name, expected.name)
			}
			if !slices.Equal(decl.Shape, expected.value.Shape().Dims()) {
				return fmt.Errorf("%s has shape %v, expected %v", decl.Name, decl.Shape, expected.value.Shape().Dims())
			}
			for k, v := range expected.value.DataPtr() {
				if !sameFloat(decl.Values[k], v) {
					return fmt.Errorf("%s[%d] = %v, expected %v", decl.Name, k, decl.Values[k], v)
				}
			}
		}
	}
	return nil
}

func sameFloat(a, b float32) bool {
	if math.IsNaN(float64(a)) && math.IsNaN(float64(b)) {
		return true
	}
	return math.Float32bits(a) == math.Float32bits(b)
}
