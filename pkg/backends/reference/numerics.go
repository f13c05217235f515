package reference

import (
	"context"
	"math"
	"math/cmplx"

	"github.com/leapstack-labs/pawseed/pkg/core"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
)

func gvectorIndex(gs [][3]int) map[[3]int]int {
	m := make(map[[3]int]int, len(gs))
	for i, g := range gs {
		m[g] = i
	}
	return m
}

// planeWaveOverlap returns Σ_G conj(a(G))·b(G) over the G-vectors present
// in both sets.
func planeWaveOverlap(aG [][3]int, a []float64, bIndex map[[3]int]int, b []float64) complex128 {
	var sum complex128
	for i, g := range aG {
		j, ok := bIndex[g]
		if !ok {
			continue
		}
		sum += complex(a[2*i], -a[2*i+1]) * complex(b[2*j], b[2*j+1])
	}
	return sum
}

// onsiteMatrix returns the overlap differences ⟨φ_i|φ_j⟩ - ⟨φ̃_i|φ̃_j⟩
// between the projector functions of pp, indexed channel-major then by m.
// Functions of different l or m do not overlap.
func onsiteMatrix(pp *core.Pseudopotential) *mat.SymDense {
	n := pp.ProjectorCount()
	if n == 0 {
		return nil
	}
	offsets := make([]int, pp.Channels())
	for c := 1; c < len(offsets); c++ {
		offsets[c] = offsets[c-1] + 2*pp.Ls[c-1] + 1
	}

	o := mat.NewSymDense(n, nil)
	for i := 0; i < pp.Channels(); i++ {
		for j := i; j < pp.Channels(); j++ {
			if pp.Ls[i] != pp.Ls[j] {
				continue
			}
			v := radialOverlap(pp, i, j)
			for m := 0; m < 2*pp.Ls[i]+1; m++ {
				o.SetSym(offsets[i]+m, offsets[j]+m, v)
			}
		}
	}
	return o
}

func radialOverlap(pp *core.Pseudopotential, i, j int) float64 {
	n := min(len(pp.Grid), len(pp.AEWaves[i]), len(pp.AEWaves[j]), len(pp.PSWaves[i]), len(pp.PSWaves[j]))
	if n < 2 {
		return 0
	}
	f := make([]float64, n)
	for r := 0; r < n; r++ {
		f[r] = pp.AEWaves[i][r]*pp.AEWaves[j][r] - pp.PSWaves[i][r]*pp.PSWaves[j][r]
	}
	return integrate.Trapezoidal(pp.Grid[:n], f)
}

// sandwich returns conj(a)ᵀ·O·b for interleaved complex vectors a and b.
func sandwich(a []float64, o *mat.SymDense, b []float64) complex128 {
	if o == nil {
		return 0
	}
	aRe, aIm := split(a)
	bRe, bIm := split(b)

	var yRe, yIm mat.VecDense
	yRe.MulVec(o, bRe)
	yIm.MulVec(o, bIm)

	re := mat.Dot(aRe, &yRe) + mat.Dot(aIm, &yIm)
	im := mat.Dot(aRe, &yIm) - mat.Dot(aIm, &yRe)
	return complex(re, im)
}

func split(v []float64) (re, im *mat.VecDense) {
	n := len(v) / 2
	re, im = mat.NewVecDense(n, nil), mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		re.SetVec(i, v[2*i])
		im.SetVec(i, v[2*i+1])
	}
	return re, im
}

func cmplxExp(phi float64) complex128 {
	return cmplx.Exp(complex(0, phi))
}

// evaluate sums the plane waves of one state on a dims grid of
// fractional positions, x varying fastest.
func evaluate(ctx context.Context, kp *Kpoint, coeffs []float64, dims [3]int) ([]complex128, error) {
	out := make([]complex128, dims[0]*dims[1]*dims[2])
	for g, gv := range kp.GVectors {
		if g%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		c := complex(coeffs[2*g], coeffs[2*g+1])
		if c == 0 {
			continue
		}
		q := core.Vec3{kp.K[0] + float64(gv[0]), kp.K[1] + float64(gv[1]), kp.K[2] + float64(gv[2])}
		i := 0
		for z := 0; z < dims[2]; z++ {
			for y := 0; y < dims[1]; y++ {
				for x := 0; x < dims[0]; x++ {
					r := q[0]*float64(x)/float64(dims[0]) + q[1]*float64(y)/float64(dims[1]) + q[2]*float64(z)/float64(dims[2])
					out[i] += c * cmplxExp(2*math.Pi*r)
					i++
				}
			}
		}
	}
	return out, nil
}
