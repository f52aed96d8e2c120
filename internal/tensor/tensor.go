// Package tensor provides a small row-major float32 tensor used by the
// network, the exporters and the image pipeline.
package tensor

import (
	"fmt"
)

// Tensor represents a multi-dimensional array.
type Tensor struct {
	data  []float32
	shape Shape
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) *Tensor {
	return &Tensor{
		data:  make([]float32, shape.Numel()),
		shape: shape,
	}
}

// Zeros creates a zero-filled tensor.
func Zeros(dims ...int) *Tensor {
	return New(NewShape(dims...))
}

// FromSlice creates a tensor holding a copy of data.
func FromSlice(data []float32, shape Shape) *Tensor {
	if len(data) != shape.Numel() {
		panic(fmt.Sprintf("data length %d != shape numel %d", len(data), shape.Numel()))
	}
	d := make([]float32, len(data))
	copy(d, data)
	return &Tensor{data: d, shape: shape}
}

// Wrap creates a tensor that shares data.
func Wrap(data []float32, shape Shape) *Tensor {
	if len(data) != shape.Numel() {
		panic(fmt.Sprintf("data length %d != shape numel %d", len(data), shape.Numel()))
	}
	return &Tensor{data: data, shape: shape}
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data returns a copy of the underlying data.
func (t *Tensor) Data() []float32 {
	d := make([]float32, len(t.data))
	copy(d, t.data)
	return d
}

// DataPtr returns the underlying data (use with caution).
func (t *Tensor) DataPtr() []float32 {
	return t.data
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != t.shape.NDim() {
		panic(fmt.Sprintf("expected %d indices, got %d", t.shape.NDim(), len(indices)))
	}
	idx := 0
	strides := t.shape.Strides()
	for i, index := range indices {
		if index < 0 || index >= t.shape.At(i) {
			panic(fmt.Sprintf("index %d out of bounds for dim %d with size %d", index, i, t.shape.At(i)))
		}
		idx += index * strides[i]
	}
	return idx
}

// At returns the value at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offset(indices)]
}

// Set sets the value at the given indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.offset(indices)] = value
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float32) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return FromSlice(t.data, t.shape)
}

// CopyFrom copies other's values into t. Shapes must match.
func (t *Tensor) CopyFrom(other *Tensor) {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", t.shape, other.shape))
	}
	copy(t.data, other.data)
}

// Reshape returns a view with a new shape (must have same numel).
func (t *Tensor) Reshape(newShape Shape) *Tensor {
	if t.shape.Numel() != newShape.Numel() {
		panic(fmt.Sprintf("cannot reshape %v to %v: different numel", t.shape, newShape))
	}
	return &Tensor{data: t.data, shape: newShape}
}

// Slice returns a view of the i-th entry along the leading dimension.
func (t *Tensor) Slice(i int) *Tensor {
	if t.shape.NDim() == 0 {
		panic("slice of rank-0 tensor")
	}
	n := t.shape.At(0)
	if i < 0 || i >= n {
		panic(fmt.Sprintf("index %d out of bounds for leading dim %d", i, n))
	}
	inner := t.shape.Tail()
	size := inner.Numel()
	if inner.NDim() == 0 {
		size = 1
		inner = NewShape(1)
	}
	return &Tensor{data: t.data[i*size : (i+1)*size], shape: inner}
}

// Stack joins same-shaped tensors along a new leading dimension.
func Stack(ts []*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("stack of zero tensors")
	}
	inner := ts[0].shape
	out := New(inner.Prepend(len(ts)))
	size := inner.Numel()
	for i, t := range ts {
		if !t.shape.Equal(inner) {
			panic(fmt.Sprintf("shape mismatch in stack: %v vs %v", t.shape, inner))
		}
		copy(out.data[i*size:], t.data)
	}
	return out
}

// Argmax returns the index of the largest value in each row of a rank-2 tensor.
func (t *Tensor) Argmax() []int {
	if t.shape.NDim() != 2 {
		panic(fmt.Sprintf("argmax requires rank 2, got %v", t.shape))
	}
	rows, cols := t.shape.At(0), t.shape.At(1)
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := t.data[r*cols : (r+1)*cols]
		best := 0
		for c := 1; c < cols; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		out[r] = best
	}
	return out
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v)", t.shape)
}
