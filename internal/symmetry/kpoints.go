package symmetry

import (
	"math"

	"github.com/leapstack-labs/pawseed/pkg/core"
	"gonum.org/v1/gonum/floats"
)

// KpointTolerance is the Euclidean distance below which two folded
// k-points are the same point.
const KpointTolerance = 1e-10

// Options control k-point expansion.
type Options struct {
	// Symprec is the Cartesian tolerance of the operation search.
	Symprec float64
	// TimeReversal also tries -k' right after every rotated image k'.
	TimeReversal bool
}

func (o Options) symprec() float64 {
	if o.Symprec <= 0 {
		return DefaultSymprec
	}
	return o.Symprec
}

// Expansion relates an output k-point list to a source list: output point
// i is the image of source point SourceIndex[i] under
// Operations[OpIndex[i]], negated when TimeReversal[i] is set.
type Expansion struct {
	Kpoints      []core.Kpoint
	SourceIndex  []int
	OpIndex      []int
	TimeReversal []bool
	Operations   []Operation
}

// Len returns the number of output k-points.
func (e *Expansion) Len() int {
	return len(e.Kpoints)
}

// Uniform returns the output points with uniform weights 1/N.
func (e *Expansion) Uniform() core.KpointSet {
	return core.Uniform(e.Kpoints)
}

// Flatten returns every operation as 9 row-major rotation components and 3
// translation components. The rotations are the real-space W; consumers
// rotating k-points or G-vectors use (W⁻¹)ᵀ.
func (e *Expansion) Flatten() (rotations, translations []float64) {
	rotations = make([]float64, 0, 9*len(e.Operations))
	translations = make([]float64, 0, 3*len(e.Operations))
	for _, op := range e.Operations {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				rotations = append(rotations, float64(op.Rotation[i][j]))
			}
		}
		translations = append(translations, op.Translation[0], op.Translation[1], op.Translation[2])
	}
	return rotations, translations
}

// Fold maps every component into (-1, 1) by truncated remainder. Points
// differing by a reciprocal lattice vector do not always fold together.
func Fold(k core.Kpoint) core.Kpoint {
	for i := range k {
		k[i] = math.Mod(k[i], 1)
	}
	return k
}

func same(a, b core.Kpoint) bool {
	return floats.Distance(a[:], b[:], 2) < KpointTolerance
}

// images returns the candidate images of k under op in trial order.
func images(op Operation, k core.Kpoint, timeReversal bool) []image {
	rk := Fold(op.RotateReciprocal(k))
	out := []image{{k: rk}}
	if timeReversal {
		out = append(out, image{k: Fold(core.Kpoint{-rk[0], -rk[1], -rk[2]}), reversed: true})
	}
	return out
}

type image struct {
	k        core.Kpoint
	reversed bool
}

// Desymmetrize expands an irreducible k-point list to the full set of
// distinct images under the space group of s. The outer loop runs over
// the input k-points and the inner loop over the operations in order, so
// the output order is deterministic. k-points are rotated as reciprocal
// vectors, so hexagonal and monoclinic cells expand to images of the same
// length as their source.
func Desymmetrize(s core.Structure, kpts []core.Kpoint, opts Options) (*Expansion, error) {
	ops, err := FindOperations(s, opts.symprec())
	if err != nil {
		return nil, err
	}

	exp := &Expansion{Operations: ops}
	for ki, k := range kpts {
		for oi, op := range ops {
			for _, img := range images(op, k, opts.TimeReversal) {
				if exp.contains(img.k) {
					continue
				}
				exp.Kpoints = append(exp.Kpoints, img.k)
				exp.SourceIndex = append(exp.SourceIndex, ki)
				exp.OpIndex = append(exp.OpIndex, oi)
				exp.TimeReversal = append(exp.TimeReversal, img.reversed)
			}
		}
	}
	return exp, nil
}

func (e *Expansion) contains(k core.Kpoint) bool {
	for _, kept := range e.Kpoints {
		if same(kept, k) {
			return true
		}
	}
	return false
}

// MapOnto finds, for every target k-point, the first source k-point and
// operation whose image equals the target after folding. Output point i
// is targets[i]. A target with no preimage yields
// *core.UnmappableKpointError.
func MapOnto(s core.Structure, source, targets []core.Kpoint, opts Options) (*Expansion, error) {
	ops, err := FindOperations(s, opts.symprec())
	if err != nil {
		return nil, err
	}

	exp := &Expansion{Operations: ops}
	for ti, target := range targets {
		folded := Fold(target)
		src, opIdx, reversed, ok := findPreimage(ops, source, folded, opts.TimeReversal)
		if !ok {
			return nil, &core.UnmappableKpointError{Index: ti, Kpoint: target}
		}
		exp.Kpoints = append(exp.Kpoints, target)
		exp.SourceIndex = append(exp.SourceIndex, src)
		exp.OpIndex = append(exp.OpIndex, opIdx)
		exp.TimeReversal = append(exp.TimeReversal, reversed)
	}
	return exp, nil
}

func findPreimage(ops []Operation, source []core.Kpoint, target core.Kpoint, timeReversal bool) (int, int, bool, bool) {
	for si, k := range source {
		for oi, op := range ops {
			for _, img := range images(op, k, timeReversal) {
				if same(img.k, target) {
					return si, oi, img.reversed, true
				}
			}
		}
	}
	return 0, 0, false, false
}
