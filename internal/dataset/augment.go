package dataset

import (
	"math"
	"math/rand"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

// Generator describes the per-image preprocessing of a stream: random affine
// augmentation followed by rescaling. A zero Rescale leaves values unchanged.
type Generator struct {
	Rescale        float32
	RotationRange  float64 // degrees, sampled in [-r, r]
	ShearRange     float64 // degrees, sampled in [-r, r]
	ZoomRange      float64 // zoom factors sampled independently in [1-r, 1+r]
	HorizontalFlip bool
}

// Transform is one sampled set of augmentation parameters.
type Transform struct {
	Theta float64
	Shear float64
	Zx    float64
	Zy    float64
	Flip  bool
}

// Identity is the transform that leaves an image untouched.
var Identity = Transform{Zx: 1, Zy: 1}

// Augments reports whether the generator samples any random transform.
func (g Generator) Augments() bool {
	return g.RotationRange != 0 || g.ShearRange != 0 || g.ZoomRange != 0 || g.HorizontalFlip
}

func (g Generator) RandomTransform(rng *rand.Rand) Transform {
	tr := Identity
	if g.RotationRange != 0 {
		tr.Theta = uniform(rng, -g.RotationRange, g.RotationRange)
	}
	if g.ShearRange != 0 {
		tr.Shear = uniform(rng, -g.ShearRange, g.ShearRange)
	}
	if g.ZoomRange != 0 {
		tr.Zx = uniform(rng, 1-g.ZoomRange, 1+g.ZoomRange)
		tr.Zy = uniform(rng, 1-g.ZoomRange, 1+g.ZoomRange)
	}
	if g.HorizontalFlip {
		tr.Flip = rng.Float64() < 0.5
	}
	return tr
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

type affine [3][3]float64

func (a affine) mul(b affine) affine {
	var out affine
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

var eye = affine{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// matrix maps output (row, col) coordinates to input coordinates, centred on
// the image.
func (tr Transform) matrix(h, w int) (affine, bool) {
	m := eye
	changed := false
	if tr.Theta != 0 {
		t := tr.Theta * math.Pi / 180
		m = m.mul(affine{{math.Cos(t), -math.Sin(t), 0}, {math.Sin(t), math.Cos(t), 0}, {0, 0, 1}})
		changed = true
	}
	if tr.Shear != 0 {
		s := tr.Shear * math.Pi / 180
		m = m.mul(affine{{1, -math.Sin(s), 0}, {0, math.Cos(s), 0}, {0, 0, 1}})
		changed = true
	}
	if tr.Zx != 1 || tr.Zy != 1 {
		m = m.mul(affine{{tr.Zx, 0, 0}, {0, tr.Zy, 0}, {0, 0, 1}})
		changed = true
	}
	if !changed {
		return eye, false
	}
	ox, oy := float64(h-1)/2, float64(w-1)/2
	offset := affine{{1, 0, ox}, {0, 1, oy}, {0, 0, 1}}
	reset := affine{{1, 0, -ox}, {0, 1, -oy}, {0, 0, 1}}
	return offset.mul(m).mul(reset), true
}

// Apply returns a transformed copy of the HWC image x. Sampling is bilinear
// and coordinates outside the image take the nearest edge pixel.
func (g Generator) Apply(x *tensor.Tensor, tr Transform) *tensor.Tensor {
	shape := x.Shape()
	h, w, c := shape.At(0), shape.At(1), shape.At(2)
	src := x.DataPtr()

	out := x.Clone()
	if m, ok := tr.matrix(h, w); ok {
		dst := out.DataPtr()
		clamp := func(v, n int) int {
			if v < 0 {
				return 0
			}
			if v >= n {
				return n - 1
			}
			return v
		}
		for r := 0; r < h; r++ {
			for col := 0; col < w; col++ {
				ir := m[0][0]*float64(r) + m[0][1]*float64(col) + m[0][2]
				ic := m[1][0]*float64(r) + m[1][1]*float64(col) + m[1][2]
				ir = math.Max(0, math.Min(float64(h-1), ir))
				ic = math.Max(0, math.Min(float64(w-1), ic))

				r0, c0 := int(math.Floor(ir)), int(math.Floor(ic))
				fr, fc := ir-float64(r0), ic-float64(c0)
				r1, c1 := clamp(r0+1, h), clamp(c0+1, w)

				for ch := 0; ch < c; ch++ {
					v00 := float64(src[(r0*w+c0)*c+ch])
					v01 := float64(src[(r0*w+c1)*c+ch])
					v10 := float64(src[(r1*w+c0)*c+ch])
					v11 := float64(src[(r1*w+c1)*c+ch])
					v := v00*(1-fr)*(1-fc) + v01*(1-fr)*fc + v10*fr*(1-fc) + v11*fr*fc
					dst[(r*w+col)*c+ch] = float32(v)
				}
			}
		}
	}

	if tr.Flip {
		flipColumns(out)
	}
	return out
}

func flipColumns(x *tensor.Tensor) {
	shape := x.Shape()
	h, w, c := shape.At(0), shape.At(1), shape.At(2)
	data := x.DataPtr()
	for r := 0; r < h; r++ {
		for left, right := 0, w-1; left < right; left, right = left+1, right-1 {
			for ch := 0; ch < c; ch++ {
				a, b := (r*w+left)*c+ch, (r*w+right)*c+ch
				data[a], data[b] = data[b], data[a]
			}
		}
	}
}

// Standardize rescales x in place.
func (g Generator) Standardize(x *tensor.Tensor) {
	if g.Rescale == 0 {
		return
	}
	data := x.DataPtr()
	for i := range data {
		data[i] *= g.Rescale
	}
}
