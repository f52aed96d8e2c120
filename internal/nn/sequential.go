package nn

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Metrics are the batch-mean loss and accuracy of one step.
type Metrics struct {
	Loss     float64
	Accuracy float64
}

// Sequential is an ordered stack of layers. Forward and backward passes keep
// per-layer caches, so a model serves one pass at a time.
type Sequential struct {
	name   string
	layers []Layer
	input  tensor.Shape
	output tensor.Shape
	built  bool
	counts map[string]int
	rng    *rand.Rand

	optimizer Optimizer
	loss      Loss

	mu sync.Mutex
}

// Option configures a Sequential.
type Option func(*Sequential)

// WithSeed makes weight initialisation and dropout deterministic.
func WithSeed(seed int64) Option {
	return func(m *Sequential) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

// NewSequential creates an empty model.
func NewSequential(name string, opts ...Option) *Sequential {
	m := &Sequential{
		name:   name,
		counts: make(map[string]int),
		rng:    rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the model name.
func (m *Sequential) Name() string { return m.name }

// Add appends a layer. Unnamed layers get a Keras-style name such as
// activation_2; named layers do not advance the counter.
func (m *Sequential) Add(l Layer) {
	if l.Name() == "" {
		prefix := defaultPrefixes[l.ClassName()]
		m.counts[prefix]++
		l.setName(fmt.Sprintf("%s_%d", prefix, m.counts[prefix]))
	}
	m.layers = append(m.layers, l)
	m.built = false
}

// Layers returns the layers in order.
func (m *Sequential) Layers() []Layer { return m.layers }

// InputShape returns the per-sample input shape.
func (m *Sequential) InputShape() tensor.Shape { return m.input }

// OutputShape returns the per-sample output shape.
func (m *Sequential) OutputShape() tensor.Shape { return m.output }

// Build propagates a per-sample input shape through every layer.
func (m *Sequential) Build(input tensor.Shape) error {
	if len(m.layers) == 0 {
		return errors.New("model has no layers")
	}
	seen := make(map[string]bool, len(m.layers))
	shape := input
	for _, l := range m.layers {
		if seen[l.Name()] {
			return fmt.Errorf("duplicate layer name %q", l.Name())
		}
		seen[l.Name()] = true

		out, err := l.Build(shape, m.rng)
		if err != nil {
			return fmt.Errorf("error building layer %s: %w", l.Name(), err)
		}
		shape = out
	}
	m.input = input
	m.output = shape
	m.built = true
	return nil
}

// Compile attaches the optimizer and loss used by TrainOnBatch.
func (m *Sequential) Compile(opt Optimizer, loss Loss) error {
	if !m.built {
		return errors.New("model must be built before compile")
	}
	if opt == nil || loss == nil {
		return errors.New("optimizer and loss are required")
	}
	m.optimizer = opt
	m.loss = loss
	return nil
}

// Params returns every trainable parameter in layer order.
func (m *Sequential) Params() []*Param {
	var params []*Param
	for _, l := range m.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// CountParams returns the number of trainable scalars.
func (m *Sequential) CountParams() int {
	total := 0
	for _, p := range m.Params() {
		total += p.Value.Shape().Numel()
	}
	return total
}

func (m *Sequential) checkInput(x *tensor.Tensor) error {
	if !m.built {
		return errors.New("model is not built")
	}
	if !x.Shape().Tail().Equal(m.input) {
		return fmt.Errorf("input shape %v does not match model input %v", x.Shape().Tail(), m.input)
	}
	return nil
}

func (m *Sequential) forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	for _, l := range m.layers {
		x = l.Forward(x, training)
	}
	return x
}

// Predict runs an inference pass over a batch.
func (m *Sequential) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	return m.forward(x, false), nil
}

// TrainOnBatch runs one forward/backward pass and one optimizer step.
func (m *Sequential) TrainOnBatch(x, y *tensor.Tensor) (Metrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkInput(x); err != nil {
		return Metrics{}, err
	}
	if m.optimizer == nil {
		return Metrics{}, errors.New("model must be compiled before training")
	}
	if !y.Shape().Tail().Equal(m.output) || y.Shape().At(0) != x.Shape().At(0) {
		return Metrics{}, fmt.Errorf("target shape %v does not match model output %v", y.Shape(), m.output)
	}

	params := m.Params()
	for _, p := range params {
		p.Grad.Fill(0)
	}

	pred := m.forward(x, true)
	loss, grad := m.loss.Compute(pred, y)
	for i := len(m.layers) - 1; i >= 0; i-- {
		grad = m.layers[i].Backward(grad)
	}
	m.optimizer.Step(params)

	return Metrics{Loss: loss, Accuracy: CategoricalAccuracy(pred, y)}, nil
}

// TestOnBatch scores a batch without updating parameters.
func (m *Sequential) TestOnBatch(x, y *tensor.Tensor) (Metrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkInput(x); err != nil {
		return Metrics{}, err
	}
	if m.loss == nil {
		return Metrics{}, errors.New("model must be compiled before evaluation")
	}
	pred := m.forward(x, false)
	loss, _ := m.loss.Compute(pred, y)
	return Metrics{Loss: loss, Accuracy: CategoricalAccuracy(pred, y)}, nil
}

func shapeWithBatch(s tensor.Shape) string {
	parts := []string{"None"}
	for _, d := range s.Dims() {
		parts = append(parts, fmt.Sprint(d))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Summary writes a layer table with output shapes and parameter counts.
func (m *Sequential) Summary(w io.Writer) error {
	if !m.built {
		return errors.New("model is not built")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Layer (type)\tOutput Shape\tParam #")
	for _, l := range m.layers {
		count := 0
		for _, p := range l.Params() {
			count += p.Value.Shape().Numel()
		}
		fmt.Fprintf(tw, "%s (%s)\t%s\t%d\n", l.Name(), l.ClassName(), shapeWithBatch(l.outputShape()), count)
	}
	total := m.CountParams()
	fmt.Fprintf(tw, "Total params: %d\nTrainable params: %d\nNon-trainable params: 0\n", total, total)
	return tw.Flush()
}
