package nn

import (
	"math"
)

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	Name() string
	Step(params []*Param)
}

// SGD is plain gradient descent.
type SGD struct {
	LearningRate float32
}

func (o *SGD) Name() string { return "sgd" }

func (o *SGD) Step(params []*Param) {
	for _, p := range params {
		v, g := p.Value.DataPtr(), p.Grad.DataPtr()
		for i := range v {
			v[i] -= o.LearningRate * g[i]
		}
	}
}

// NadamConfig holds Nadam hyperparameters.
type NadamConfig struct {
	LearningRate  float64
	Beta1         float64
	Beta2         float64
	Epsilon       float64
	ScheduleDecay float64
}

// DefaultNadamConfig returns the Keras defaults.
func DefaultNadamConfig() NadamConfig {
	return NadamConfig{
		LearningRate:  0.002,
		Beta1:         0.9,
		Beta2:         0.999,
		Epsilon:       1e-7,
		ScheduleDecay: 0.004,
	}
}

type moments struct {
	m, v []float64
}

// Nadam is Adam with Nesterov momentum and a warming momentum schedule.
type Nadam struct {
	cfg        NadamConfig
	iterations int
	mSchedule  float64
	states     map[*Param]*moments
}

// NewNadam creates a Nadam optimizer.
func NewNadam(cfg NadamConfig) *Nadam {
	return &Nadam{cfg: cfg, mSchedule: 1, states: make(map[*Param]*moments)}
}

func (o *Nadam) Name() string { return "nadam" }

func (o *Nadam) Step(params []*Param) {
	c := o.cfg
	t := float64(o.iterations + 1)

	cacheT := c.Beta1 * (1 - 0.5*math.Pow(0.96, t*c.ScheduleDecay))
	cacheT1 := c.Beta1 * (1 - 0.5*math.Pow(0.96, (t+1)*c.ScheduleDecay))
	scheduleNew := o.mSchedule * cacheT
	scheduleNext := o.mSchedule * cacheT * cacheT1
	beta2Pow := math.Pow(c.Beta2, t)

	for _, p := range params {
		st, ok := o.states[p]
		if !ok {
			n := len(p.Value.DataPtr())
			st = &moments{m: make([]float64, n), v: make([]float64, n)}
			o.states[p] = st
		}
		v, g := p.Value.DataPtr(), p.Grad.DataPtr()
		for i := range v {
			gi := float64(g[i])
			gPrime := gi / (1 - scheduleNew)
			st.m[i] = c.Beta1*st.m[i] + (1-c.Beta1)*gi
			mPrime := st.m[i] / (1 - scheduleNext)
			st.v[i] = c.Beta2*st.v[i] + (1-c.Beta2)*gi*gi
			vPrime := st.v[i] / (1 - beta2Pow)
			mBar := (1-cacheT)*gPrime + cacheT1*mPrime
			v[i] -= float32(c.LearningRate * mBar / (math.Sqrt(vPrime) + c.Epsilon))
		}
	}

	o.mSchedule = scheduleNew
	o.iterations++
}
