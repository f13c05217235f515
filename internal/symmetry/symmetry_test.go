package symmetry

import (
	"math"
	"testing"

	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func cubic(a float64, sites ...core.Site) core.Structure {
	return core.NewStructure(core.Lattice{{a, 0, 0}, {0, a, 0}, {0, 0, a}}, sites)
}

func triclinic() core.Structure {
	return core.NewStructure(core.Lattice{{4, 0, 0}, {0.5, 4.3, 0}, {0.3, 0.2, 4.7}}, []core.Site{
		{Element: "Ga", Frac: core.Vec3{0, 0, 0}},
		{Element: "As", Frac: core.Vec3{0.13, 0.27, 0.41}},
		{Element: "N", Frac: core.Vec3{0.61, 0.12, 0.33}},
	})
}

func TestFindOperations(t *testing.T) {
	tests := []struct {
		name      string
		structure core.Structure
		want      int
	}{
		{name: "simple cubic", structure: cubic(3, core.Site{Element: "Po"}), want: 48},
		{name: "CsCl", structure: cubic(4, core.Site{Element: "Cs"}, core.Site{Element: "Cl", Frac: core.Vec3{0.5, 0.5, 0.5}}), want: 48},
		{name: "bcc conventional", structure: cubic(3, core.Site{Element: "Fe"}, core.Site{Element: "Fe", Frac: core.Vec3{0.5, 0.5, 0.5}}), want: 96},
		{name: "tetragonal", structure: core.NewStructure(core.Lattice{{3, 0, 0}, {0, 3, 0}, {0, 0, 5}}, []core.Site{{Element: "Sn"}}), want: 16},
		{name: "orthorhombic", structure: core.NewStructure(core.Lattice{{3, 0, 0}, {0, 4, 0}, {0, 0, 5}}, []core.Site{{Element: "S"}}), want: 8},
		{name: "triclinic generic", structure: triclinic(), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := FindOperations(tt.structure, DefaultSymprec)
			require.NoError(t, err)
			assert.Len(t, ops, tt.want)
			assert.True(t, ops[0].IsIdentity(), "identity must come first")
		})
	}
}

func TestFindOperations_Errors(t *testing.T) {
	_, err := FindOperations(core.Structure{}, DefaultSymprec)
	assert.Error(t, err)

	_, err = FindOperations(cubic(3, core.Site{Element: "Po"}), 0)
	assert.Error(t, err)
}

func TestDesymmetrize(t *testing.T) {
	s := cubic(3, core.Site{Element: "Po"})

	tests := []struct {
		name string
		kpts []core.Kpoint
		want int
	}{
		{name: "gamma only", kpts: []core.Kpoint{{0, 0, 0}}, want: 1},
		{name: "axis point", kpts: []core.Kpoint{{0.25, 0, 0}}, want: 6},
		{name: "body diagonal", kpts: []core.Kpoint{{0.25, 0.25, 0.25}}, want: 8},
		{name: "general point", kpts: []core.Kpoint{{0.1, 0.2, 0.3}}, want: 48},
		{name: "gamma plus axis", kpts: []core.Kpoint{{0, 0, 0}, {0.25, 0, 0}}, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := Desymmetrize(s, tt.kpts, Options{})
			require.NoError(t, err)
			require.Equal(t, tt.want, exp.Len())
			assert.GreaterOrEqual(t, exp.Len(), len(tt.kpts))
			assert.Len(t, exp.SourceIndex, exp.Len())
			assert.Len(t, exp.OpIndex, exp.Len())
			assert.Len(t, exp.TimeReversal, exp.Len())
			assert.Equal(t, 0, exp.OpIndex[0], "first point comes from the identity")

			for i, k := range exp.Kpoints {
				for c := range k {
					assert.Greater(t, k[c], -1.0)
					assert.Less(t, k[c], 1.0)
				}
				for j := i + 1; j < exp.Len(); j++ {
					assert.False(t, same(k, exp.Kpoints[j]), "points %d and %d coincide", i, j)
				}
				want := Fold(exp.Operations[exp.OpIndex[i]].RotateReciprocal(tt.kpts[exp.SourceIndex[i]]))
				assert.True(t, same(want, k), "point %d is the image of its source", i)
				assert.False(t, exp.TimeReversal[i])
			}

			weights := exp.Uniform().Weights
			assert.InDelta(t, 1.0/float64(tt.want), weights[0], 1e-15)
		})
	}
}

func TestDesymmetrize_SourceOrdering(t *testing.T) {
	exp, err := Desymmetrize(cubic(3, core.Site{Element: "Po"}), []core.Kpoint{{0, 0, 0}, {0.25, 0, 0}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 1, 1, 1, 1}, exp.SourceIndex, "outer loop runs over the input k-points")
}

func TestDesymmetrize_TimeReversal(t *testing.T) {
	kpts := []core.Kpoint{{0.1, 0.2, 0.3}}

	exp, err := Desymmetrize(triclinic(), kpts, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, exp.Len())

	exp, err = Desymmetrize(triclinic(), kpts, Options{TimeReversal: true})
	require.NoError(t, err)
	require.Equal(t, 2, exp.Len())
	assert.Equal(t, []bool{false, true}, exp.TimeReversal)
	assert.InDelta(t, -0.1, exp.Kpoints[1][0], 1e-15)
}

func TestMapOnto_RoundTrip(t *testing.T) {
	s := cubic(3, core.Site{Element: "Po"})
	irreducible := []core.Kpoint{{0, 0, 0}, {0.25, 0, 0}, {0.25, 0.25, 0}, {0.25, 0.25, 0.25}}

	full, err := Desymmetrize(s, irreducible, Options{})
	require.NoError(t, err)

	mapped, err := MapOnto(s, irreducible, full.Kpoints, Options{})
	require.NoError(t, err)
	require.Equal(t, full.Len(), mapped.Len())

	for i, target := range mapped.Kpoints {
		src := irreducible[mapped.SourceIndex[i]]
		image := Fold(mapped.Operations[mapped.OpIndex[i]].RotateReciprocal(src))
		assert.True(t, same(image, Fold(target)), "target %d reproduced", i)
	}
}

func TestMapOnto_FirstMatchWins(t *testing.T) {
	s := cubic(3, core.Site{Element: "Po"})
	mapped, err := MapOnto(s, []core.Kpoint{{0, 0, 0}, {0, 0, 0}}, []core.Kpoint{{0, 0, 0}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, mapped.SourceIndex[0])
	assert.Equal(t, 0, mapped.OpIndex[0])
}

func TestMapOnto_Unmappable(t *testing.T) {
	s := cubic(3, core.Site{Element: "Po"})
	_, err := MapOnto(s, []core.Kpoint{{0.25, 0, 0}}, []core.Kpoint{{0.25, 0, 0}, {0.3, 0, 0}}, Options{})

	var ue *core.UnmappableKpointError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 1, ue.Index)
	assert.Equal(t, core.Kpoint{0.3, 0, 0}, ue.Kpoint)
}

func TestExpansion_Flatten(t *testing.T) {
	exp, err := Desymmetrize(cubic(3, core.Site{Element: "Po"}), []core.Kpoint{{0, 0, 0}}, Options{})
	require.NoError(t, err)

	rot, trans := exp.Flatten()
	assert.Len(t, rot, 9*48)
	assert.Len(t, trans, 3*48)
	assert.Equal(t, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, rot[:9])
}

func hexagonal() core.Structure {
	return core.NewStructure(core.Lattice{{3, 0, 0}, {-1.5, 1.5 * math.Sqrt(3), 0}, {0, 0, 5}},
		[]core.Site{{Element: "Mg"}})
}

// reciprocalNorm is |k|² in the reciprocal metric (A·Aᵀ)⁻¹, up to (2π)².
func reciprocalNorm(t *testing.T, l core.Lattice, k core.Kpoint) float64 {
	t.Helper()
	var g, inv mat.Dense
	a := mat.NewDense(3, 3, []float64{l[0][0], l[0][1], l[0][2], l[1][0], l[1][1], l[1][2], l[2][0], l[2][1], l[2][2]})
	g.Mul(a, a.T())
	require.NoError(t, inv.Inverse(&g))
	v := mat.NewVecDense(3, k[:])
	return mat.Inner(v, &inv, v)
}

func TestRotateReciprocal(t *testing.T) {
	threeFold := Operation{Rotation: [3][3]int{{0, -1, 0}, {1, -1, 0}, {0, 0, 1}}}
	assert.Equal(t, core.Kpoint{-1, 1, 0}, threeFold.RotateReciprocal(core.Kpoint{1, 0, 0}))
	assert.Equal(t, core.Vec3{0, 1, 0}, threeFold.Rotate(core.Vec3{1, 0, 0}))

	// k·x is invariant when x rotates with W and k with (W⁻¹)ᵀ
	ops, err := FindOperations(hexagonal(), DefaultSymprec)
	require.NoError(t, err)
	k, x := core.Kpoint{0.2, 0.1, 0.3}, core.Vec3{0.7, -0.4, 0.1}
	for i, op := range ops {
		rk, rx := op.RotateReciprocal(k), op.Rotate(x)
		assert.InDelta(t, floats.Dot(k[:], x[:]), floats.Dot(rk[:], rx[:]), 1e-12, "operation %d", i)
	}

	cube := Operation{Rotation: [3][3]int{{0, 1, 0}, {-1, 0, 0}, {0, 0, 1}}}
	assert.Equal(t, cube.Rotate(k), cube.RotateReciprocal(k), "orthogonal rotations act alike")
}

func TestDesymmetrize_Hexagonal(t *testing.T) {
	s := hexagonal()
	ops, err := FindOperations(s, DefaultSymprec)
	require.NoError(t, err)
	require.Len(t, ops, 24)

	k := core.Kpoint{0.2, 0.1, 0}
	exp, err := Desymmetrize(s, []core.Kpoint{k}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 12, exp.Len(), "in-plane star of 6/mmm")

	want := reciprocalNorm(t, s.Lattice, k)
	for i, img := range exp.Kpoints {
		assert.InDelta(t, want, reciprocalNorm(t, s.Lattice, img), 1e-12, "image %d keeps its length", i)
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, core.Kpoint{0.5, -0.5, 0}, Fold(core.Kpoint{1.5, -1.5, 2}))
}
