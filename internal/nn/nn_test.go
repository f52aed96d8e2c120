package nn

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLayer(t *testing.T, l Layer, input ...int) {
	t.Helper()
	l.setName("test")
	_, err := l.Build(tensor.NewShape(input...), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func TestConvForwardKnownValues(t *testing.T) {
	conv := NewConv2D(1, 2, "conv")
	buildLayer(t, conv, 3, 3, 1)
	conv.Params()[0].Value.Fill(1)
	conv.Params()[1].Value.Fill(0.5)

	x := tensor.FromSlice(seq(9), tensor.NewShape(1, 3, 3, 1))
	out := conv.Forward(x, false)

	require.True(t, out.Shape().Equal(tensor.NewShape(1, 2, 2, 1)))
	assert.Equal(t, []float32{12.5, 16.5, 24.5, 28.5}, out.Data())
}

func TestConvKernelLayoutIsHWCK(t *testing.T) {
	conv := NewConv2D(2, 1, "conv")
	buildLayer(t, conv, 1, 1, 3)
	assert.Equal(t, []int{1, 1, 3, 2}, conv.Params()[0].Value.Shape().Dims())

	// kernel[0][0][c][k] = c*10 + k
	k := conv.Params()[0].Value
	for c := 0; c < 3; c++ {
		for f := 0; f < 2; f++ {
			k.Set(float32(c*10+f), 0, 0, c, f)
		}
	}
	out := conv.Forward(tensor.FromSlice([]float32{1, 2, 3}, tensor.NewShape(1, 1, 1, 3)), false)
	assert.Equal(t, []float32{0*1 + 10*2 + 20*3, 1*1 + 11*2 + 21*3}, out.Data())
}

func TestZeroPadding(t *testing.T) {
	pad := NewZeroPadding2D(1, 1)
	buildLayer(t, pad, 1, 1, 2)
	out := pad.Forward(tensor.FromSlice([]float32{3, 4}, tensor.NewShape(1, 1, 1, 2)), false)

	require.True(t, out.Shape().Equal(tensor.NewShape(1, 3, 3, 2)))
	assert.Equal(t, float32(3), out.At(0, 1, 1, 0))
	assert.Equal(t, float32(4), out.At(0, 1, 1, 1))
	assert.Equal(t, float32(0), out.At(0, 0, 0, 0))

	back := pad.Backward(out)
	assert.Equal(t, []float32{3, 4}, back.Data())
}

func TestMaxPoolForwardBackward(t *testing.T) {
	pool := NewMaxPooling2D(2)
	buildLayer(t, pool, 2, 4, 1)
	x := tensor.FromSlice([]float32{1, 5, 2, 0, 3, 4, 8, 7}, tensor.NewShape(1, 2, 4, 1))

	out := pool.Forward(x, false)
	assert.Equal(t, []float32{5, 8}, out.Data())

	dx := pool.Backward(tensor.FromSlice([]float32{1, 2}, tensor.NewShape(1, 1, 2, 1)))
	assert.Equal(t, []float32{0, 1, 0, 0, 0, 0, 2, 0}, dx.Data())
}

func TestMaxPoolDropsPartialWindows(t *testing.T) {
	pool := NewMaxPooling2D(2)
	pool.setName("pool")
	out, err := pool.Build(tensor.NewShape(3, 3, 4), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 4}, out.Dims())

	_, err = pool.Build(tensor.NewShape(1, 3, 4), nil)
	assert.Error(t, err)
}

func TestDenseForward(t *testing.T) {
	dense := NewDense(2, "dense")
	buildLayer(t, dense, 3)
	copy(dense.Params()[0].Value.DataPtr(), []float32{1, 2, 3, 4, 5, 6})
	copy(dense.Params()[1].Value.DataPtr(), []float32{0.5, -1})

	out := dense.Forward(tensor.FromSlice([]float32{1, 1, 2}, tensor.NewShape(1, 3)), false)
	assert.Equal(t, []float32{1 + 3 + 10 + 0.5, 2 + 4 + 12 - 1}, out.Data())
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	act := NewActivation("softmax")
	buildLayer(t, act, 3)
	out := act.Forward(tensor.FromSlice([]float32{1, 2, 3, 1000, 0, -1000}, tensor.NewShape(2, 3)), false)
	data := out.Data()
	assert.InDelta(t, 1.0, data[0]+data[1]+data[2], 1e-6)
	assert.InDelta(t, 1.0, data[3], 1e-6)
	assert.True(t, data[2] > data[1] && data[1] > data[0])
}

func TestReluBackwardMasksNegatives(t *testing.T) {
	act := NewActivation("relu")
	buildLayer(t, act, 3)
	act.Forward(tensor.FromSlice([]float32{-1, 0, 2}, tensor.NewShape(1, 3)), true)
	dx := act.Backward(tensor.FromSlice([]float32{5, 5, 5}, tensor.NewShape(1, 3)))
	assert.Equal(t, []float32{0, 0, 5}, dx.Data())
}

func TestUnknownActivation(t *testing.T) {
	act := NewActivation("tanh")
	act.setName("act")
	_, err := act.Build(tensor.NewShape(3), nil)
	assert.ErrorContains(t, err, "unknown activation function")
}

func TestDropout(t *testing.T) {
	drop := NewDropout(0.5)
	buildLayer(t, drop, 1000)
	x := tensor.New(tensor.NewShape(1, 1000))
	x.Fill(1)

	assert.Same(t, x, drop.Forward(x, false))

	out := drop.Forward(x, true).Data()
	zeros := 0
	for _, v := range out {
		if v == 0 {
			zeros++
		} else {
			assert.Equal(t, float32(2), v)
		}
	}
	assert.InDelta(t, 500, zeros, 80)
}

func TestAutoNaming(t *testing.T) {
	m := NewSequential("sequential_1")
	m.Add(NewZeroPadding2D(1, 1))
	m.Add(NewActivation("relu"))
	m.Add(NewConv2D(2, 3, "firstConv"))
	m.Add(NewActivation("relu"))

	var names []string
	for _, l := range m.Layers() {
		names = append(names, l.Name())
	}
	assert.Equal(t, []string{"zero_padding2d_1", "activation_1", "firstConv", "activation_2"}, names)
}

func TestAutoNamingSkipsNamedLayers(t *testing.T) {
	m := NewSequential("sequential_1")
	m.Add(NewDense(4, "x"))
	m.Add(NewDense(2, ""))
	m.Add(NewConv2D(2, 3, "firstConv"))
	m.Add(NewConv2D(2, 3, ""))

	assert.Equal(t, "dense_1", m.Layers()[1].Name())
	assert.Equal(t, "conv2d_1", m.Layers()[3].Name())
}

func TestBuildErrors(t *testing.T) {
	m := NewSequential("m")
	m.Add(NewConv2D(2, 3, "conv"))
	m.Add(NewDense(2, "dense"))
	assert.ErrorContains(t, m.Build(tensor.NewShape(5, 5, 1)), "expected a flat input")

	m = NewSequential("m")
	m.Add(NewConv2D(2, 3, "conv"))
	assert.ErrorContains(t, m.Build(tensor.NewShape(2, 2, 1)), "smaller than kernel")

	m = NewSequential("m")
	m.Add(NewDense(2, "same"))
	m.Add(NewDense(2, "same"))
	assert.ErrorContains(t, m.Build(tensor.NewShape(2)), "duplicate layer name")

	assert.Error(t, NewSequential("empty").Build(tensor.NewShape(2)))
}

func smallConvNet(t *testing.T) *Sequential {
	t.Helper()
	m := NewSequential("small", WithSeed(7))
	m.Add(NewZeroPadding2D(1, 1))
	m.Add(NewConv2D(2, 2, "conv"))
	m.Add(NewFlatten())
	m.Add(NewDense(3, "labeller"))
	m.Add(NewActivation("softmax"))
	require.NoError(t, m.Build(tensor.NewShape(3, 3, 2)))
	require.NoError(t, m.Compile(&SGD{LearningRate: 0.1}, CategoricalCrossentropy{}))
	return m
}

func lossOf(m *Sequential, x, y *tensor.Tensor) float64 {
	loss, _ := m.loss.Compute(m.forward(x, false), y)
	return loss
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	m := smallConvNet(t)
	rng := rand.New(rand.NewSource(3))

	x := tensor.New(tensor.NewShape(2, 3, 3, 2))
	for i := range x.DataPtr() {
		x.DataPtr()[i] = float32(rng.Float64()*2 - 1)
	}
	y := tensor.FromSlice([]float32{1, 0, 0, 0, 0, 1}, tensor.NewShape(2, 3))

	params := m.Params()
	for _, p := range params {
		p.Grad.Fill(0)
	}
	pred := m.forward(x, true)
	_, grad := m.loss.Compute(pred, y)
	for i := len(m.layers) - 1; i >= 0; i-- {
		grad = m.layers[i].Backward(grad)
	}

	const eps = 1e-2
	for _, p := range params {
		values := p.Value.DataPtr()
		for i := range values {
			orig := values[i]
			values[i] = orig + eps
			plus := lossOf(m, x, y)
			values[i] = orig - eps
			minus := lossOf(m, x, y)
			values[i] = orig

			numeric := (plus - minus) / (2 * eps)
			analytic := float64(p.Grad.DataPtr()[i])
			assert.InDelta(t, numeric, analytic, 2e-3+0.02*math.Abs(numeric), "param %s index %d", p.Name, i)
		}
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	m := NewSequential("toy", WithSeed(11))
	m.Add(NewDense(8, "hidden"))
	m.Add(NewActivation("relu"))
	m.Add(NewDense(2, "out"))
	m.Add(NewActivation("softmax"))
	require.NoError(t, m.Build(tensor.NewShape(2)))

	cfg := DefaultNadamConfig()
	cfg.LearningRate = 0.01
	require.NoError(t, m.Compile(NewNadam(cfg), CategoricalCrossentropy{}))

	rng := rand.New(rand.NewSource(5))
	x := tensor.New(tensor.NewShape(32, 2))
	y := tensor.New(tensor.NewShape(32, 2))
	for i := 0; i < 32; i++ {
		class := i % 2
		x.Set(float32(1-class)+float32(rng.Float64()*0.2), i, 0)
		x.Set(float32(class)+float32(rng.Float64()*0.2), i, 1)
		y.Set(1, i, class)
	}

	first, err := m.TestOnBatch(x, y)
	require.NoError(t, err)
	for step := 0; step < 300; step++ {
		_, err := m.TrainOnBatch(x, y)
		require.NoError(t, err)
	}
	last, err := m.TestOnBatch(x, y)
	require.NoError(t, err)

	assert.Less(t, last.Loss, first.Loss*0.5)
	assert.Equal(t, 1.0, last.Accuracy)
}

func TestNadamFirstStep(t *testing.T) {
	p := newParam("w", tensor.NewShape(1))
	p.Value.Fill(1)
	p.Grad.Fill(1)

	opt := NewNadam(DefaultNadamConfig())
	opt.Step([]*Param{p})

	assert.InDelta(t, 0.9978871, p.Value.At(0), 1e-5)
	assert.Equal(t, 1, opt.iterations)
}

func TestCrossentropy(t *testing.T) {
	pred := tensor.FromSlice([]float32{0.5, 0.5, 0, 1}, tensor.NewShape(2, 2))
	target := tensor.FromSlice([]float32{1, 0, 1, 0}, tensor.NewShape(2, 2))
	loss, grad := CategoricalCrossentropy{}.Compute(pred, target)

	assert.InDelta(t, (math.Log(2)-math.Log(1e-7))/2, loss, 1e-6)
	assert.InDelta(t, -1.0, grad.At(0, 0), 1e-6)
	assert.Equal(t, float32(0), grad.At(0, 1))
	assert.Equal(t, 0.0, CategoricalAccuracy(tensor.FromSlice([]float32{0.4, 0.6}, tensor.NewShape(1, 2)), tensor.FromSlice([]float32{1, 0}, tensor.NewShape(1, 2))))
}

func TestPredictChecksInputShape(t *testing.T) {
	m := smallConvNet(t)
	_, err := m.Predict(tensor.New(tensor.NewShape(1, 4, 4, 2)))
	assert.Error(t, err)

	out, err := m.Predict(tensor.New(tensor.NewShape(1, 3, 3, 2)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, out.Shape().Dims())
}

func TestSummary(t *testing.T) {
	m := smallConvNet(t)
	var buf bytes.Buffer
	require.NoError(t, m.Summary(&buf))

	assert.Contains(t, buf.String(), "conv (Conv2D)")
	assert.Contains(t, buf.String(), "(None, 4, 4, 2)")
	assert.Contains(t, buf.String(), "Total params: 117")
}
