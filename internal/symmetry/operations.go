// Package symmetry finds the space-group operations of a crystal and uses
// them to expand symmetry-reduced k-point sets.
package symmetry

import (
	"fmt"
	"math"

	"github.com/leapstack-labs/pawseed/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// DefaultSymprec is the default Cartesian tolerance in Å.
const DefaultSymprec = 1e-3

// Operation is a space-group operation in fractional coordinates:
// x' = Rotation·x + Translation.
type Operation struct {
	Rotation    [3][3]int
	Translation core.Vec3
}

// Identity is the identity operation.
var Identity = Operation{Rotation: [3][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}

// Apply maps a fractional position through the operation.
func (o Operation) Apply(x core.Vec3) core.Vec3 {
	out := o.Rotate(x)
	for i := range out {
		out[i] += o.Translation[i]
	}
	return out
}

// Rotate applies only the rotational part.
func (o Operation) Rotate(x core.Vec3) core.Vec3 {
	var out core.Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i] += float64(o.Rotation[i][j]) * x[j]
		}
	}
	return out
}

// RotateReciprocal applies the rotational part to a fractional
// reciprocal-space vector, which transforms with (W⁻¹)ᵀ. Only for the
// orthogonal rotations of cubic, tetragonal and orthorhombic cells is this
// the same as Rotate.
func (o Operation) RotateReciprocal(k core.Kpoint) core.Kpoint {
	inv := o.inverseRotation()
	var out core.Kpoint
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i] += float64(inv[j][i]) * k[j]
		}
	}
	return out
}

// inverseRotation returns W⁻¹ from the adjugate. Lattice rotations have
// determinant ±1, so the inverse is integral.
func (o Operation) inverseRotation() [3][3]int {
	w := o.Rotation
	adj := [3][3]int{
		{w[1][1]*w[2][2] - w[1][2]*w[2][1], w[0][2]*w[2][1] - w[0][1]*w[2][2], w[0][1]*w[1][2] - w[0][2]*w[1][1]},
		{w[1][2]*w[2][0] - w[1][0]*w[2][2], w[0][0]*w[2][2] - w[0][2]*w[2][0], w[0][2]*w[1][0] - w[0][0]*w[1][2]},
		{w[1][0]*w[2][1] - w[1][1]*w[2][0], w[0][1]*w[2][0] - w[0][0]*w[2][1], w[0][0]*w[1][1] - w[0][1]*w[1][0]},
	}
	det := w[0][0]*adj[0][0] + w[0][1]*adj[1][0] + w[0][2]*adj[2][0]
	for i := range adj {
		for j := range adj[i] {
			adj[i][j] *= det
		}
	}
	return adj
}

// IsIdentity reports whether o is the identity with zero translation.
func (o Operation) IsIdentity() bool {
	return o.Rotation == Identity.Rotation && o.Translation == core.Vec3{}
}

// FindOperations returns the space-group operations of s within symprec.
//
// Rotations are searched among integer matrices with entries in {-1,0,1}
// and determinant ±1 that preserve the lattice metric. The identity comes
// first; the rest follow the enumeration order of the rotation search and,
// per rotation, the order of the candidate translations. Cells far from a
// reduced basis can have symmetry rotations with larger entries, which
// this search does not find.
func FindOperations(s core.Structure, symprec float64) ([]Operation, error) {
	if s.Len() == 0 {
		return nil, fmt.Errorf("cannot find symmetry of an empty structure")
	}
	if symprec <= 0 {
		return nil, fmt.Errorf("symprec must be positive, got %g", symprec)
	}

	metric := metricTensor(s.Lattice)
	ref := anchorSites(s)

	var ops []Operation
	for _, rot := range latticeRotations(metric, symprec) {
		ops = append(ops, siteOperations(s, rot, ref, symprec)...)
	}
	if len(ops) == 0 || !ops[0].IsIdentity() {
		return nil, fmt.Errorf("symmetry search did not recover the identity (symprec %g too small?)", symprec)
	}
	return ops, nil
}

func metricTensor(l core.Lattice) *mat.Dense {
	lm := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			lm.Set(i, j, l[i][j])
		}
	}
	var g mat.Dense
	g.Mul(lm, lm.T())
	return &g
}

// latticeRotations enumerates the point-group rotations of the lattice,
// identity first.
func latticeRotations(g *mat.Dense, symprec float64) [][3][3]int {
	lengths := make([]float64, 3)
	for i := range lengths {
		lengths[i] = math.Sqrt(g.At(i, i))
	}

	preserves := func(rot [3][3]int) bool {
		w := mat.NewDense(3, 3, nil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				w.Set(i, j, float64(rot[i][j]))
			}
		}
		if d := mat.Det(w); math.Abs(math.Abs(d)-1) > 1e-9 {
			return false
		}
		var tmp, gp mat.Dense
		tmp.Mul(w.T(), g)
		gp.Mul(&tmp, w)
		for i := 0; i < 3; i++ {
			if math.Abs(math.Sqrt(gp.At(i, i))-lengths[i]) > symprec {
				return false
			}
			for j := i + 1; j < 3; j++ {
				if math.Abs(gp.At(i, j)-g.At(i, j)) > symprec*(lengths[i]+lengths[j]) {
					return false
				}
			}
		}
		return true
	}

	rots := [][3][3]int{Identity.Rotation}
	var entries [9]int
	for n := 0; n < 19683; n++ {
		v := n
		for i := range entries {
			entries[i] = v%3 - 1
			v /= 3
		}
		var rot [3][3]int
		for i := 0; i < 9; i++ {
			rot[i/3][i%3] = entries[i]
		}
		if rot == Identity.Rotation {
			continue
		}
		if preserves(rot) {
			rots = append(rots, rot)
		}
	}
	return rots
}

// anchorSites returns the indices of the least populated species; the
// first of them anchors candidate translations.
func anchorSites(s core.Structure) []int {
	bySpecies := make(map[string][]int)
	for i, site := range s.Sites {
		bySpecies[site.Element] = append(bySpecies[site.Element], i)
	}
	var best []int
	for _, el := range s.Species() {
		if best == nil || len(bySpecies[el]) < len(best) {
			best = bySpecies[el]
		}
	}
	return best
}

func siteOperations(s core.Structure, rot [3][3]int, anchors []int, symprec float64) []Operation {
	var out []Operation
	p := Operation{Rotation: rot}.Rotate(s.Sites[anchors[0]].Frac)
	for _, q := range anchors {
		var t core.Vec3
		for i := range t {
			t[i] = s.Sites[q].Frac[i] - p[i]
		}
		op := Operation{Rotation: rot, Translation: core.Wrap(t)}
		if duplicateTranslation(s.Lattice, out, op.Translation, symprec) {
			continue
		}
		if mapsStructure(s, op, symprec) {
			out = append(out, op)
		}
	}
	return out
}

func duplicateTranslation(l core.Lattice, ops []Operation, t core.Vec3, symprec float64) bool {
	for _, o := range ops {
		if l.Distance(o.Translation, t) < symprec {
			return true
		}
	}
	return false
}

// mapsStructure reports whether every site maps onto a site of the same
// element within symprec.
func mapsStructure(s core.Structure, op Operation, symprec float64) bool {
	for _, site := range s.Sites {
		image := op.Apply(site.Frac)
		found := false
		for _, other := range s.Sites {
			if other.Element == site.Element && s.Lattice.Distance(image, other.Frac) < symprec {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
