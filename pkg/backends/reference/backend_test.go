package reference

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/pawseed/internal/testutil"
	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBandDump is a Γ-only dump with two plane waves: band 0 is the
// constant wave, band 1 the G=(1,0,0) wave.
func twoBandDump() *File {
	return &File{
		NumBands: 2,
		NumSpins: 1,
		Volume:   4,
		Kpoints: []Kpoint{{
			GVectors: [][3]int{{0, 0, 0}, {1, 0, 0}},
			States: []State{
				{Occupation: 1, Energy: -3, Coefficients: []float64{1, 0, 0, 0}, Projections: [][]float64{{1, 0}}},
				{Occupation: 0, Energy: 2, Coefficients: []float64{0, 0, 1, 0}, Projections: [][]float64{{0, 1}}},
			},
		}},
	}
}

func writeDump(t *testing.T, f *File) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "WAVECAR.yaml")
	require.NoError(t, WriteFile(path, f))
	return path
}

func read(t *testing.T, b *Backend, f *File) backend.Handle {
	t.Helper()
	h, err := b.ReadWavefunction(context.Background(), writeDump(t, f), nil)
	require.NoError(t, err)
	return h
}

// sPseudo has one s channel whose AE and PS waves differ by 1 on [0, 2].
func sPseudo() *core.Pseudopotential {
	return &core.Pseudopotential{
		Element: "Si",
		Rmax:    1,
		Ls:      []int{0},
		Grid:    []float64{0, 1, 2},
		AEWaves: [][]float64{{1, 1, 1}},
		PSWaves: [][]float64{{0, 0, 0}},
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams(map[string]string{"normalize": "true", "strict": "false"})
	require.NoError(t, err)
	assert.True(t, p.Normalize)
	assert.False(t, p.Strict)

	_, err = ParseParams(map[string]string{"fft": "yes"})
	require.Error(t, err)

	p, err = ParseParams(nil)
	require.NoError(t, err)
	assert.Equal(t, Params{}, p)
}

func TestRegistered(t *testing.T) {
	b, err := backend.New(core.BackendConfig{Type: Name}, nil)
	require.NoError(t, err)
	assert.Equal(t, Name, b.Name())
	r, ok := backend.Lookup(Name)
	require.True(t, ok)
	assert.NotEmpty(t, r.Summary)
}

func TestReadWavefunction(t *testing.T) {
	b := New(Params{}, testutil.NewTestLogger(t))
	h := read(t, b, twoBandDump())

	dims, err := b.Dimensions(h)
	require.NoError(t, err)
	assert.Equal(t, backend.Dimensions{NumBands: 2, NumKpoints: 1, NumSpins: 1}, dims)

	occs, err := b.Occupations(h)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, occs)

	e, err := b.Energy(h, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, e)
	_, err = b.Energy(h, 2, 0, 0)
	require.Error(t, err)

	require.NoError(t, b.FreeWavefunction(h))
	require.Error(t, b.FreeWavefunction(h))
}

func TestReadWavefunction_Invalid(t *testing.T) {
	b := New(Params{}, nil)
	path := writeDump(t, twoBandDump())

	_, err := b.ReadWavefunction(context.Background(), path, []float64{0.5, 0.5})
	require.Error(t, err)

	bad := twoBandDump()
	bad.Kpoints[0].States[1].Coefficients = []float64{1, 0}
	require.Error(t, bad.Validate())

	_, err = b.ReadWavefunction(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
}

func TestPseudoprojection(t *testing.T) {
	b := New(Params{}, nil)
	basis := read(t, b, twoBandDump())
	target := read(t, b, twoBandDump())

	out, err := b.Pseudoprojection(context.Background(), basis, target, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 0}, out)

	_, err = b.Pseudoprojection(context.Background(), basis, target, 2)
	require.Error(t, err)
}

func setupPair(t *testing.T, b *Backend, basis, target backend.Handle) backend.Pair {
	t.Helper()
	ctx := context.Background()
	list, err := b.BuildProjectorList(ctx, backend.ProjectorTable{Pseudos: []*core.Pseudopotential{sPseudo()}})
	require.NoError(t, err)
	for _, h := range []backend.Handle{basis, target} {
		require.NoError(t, b.SetupProjections(ctx, backend.ProjectionSetup{
			Wavefunction: h,
			Projectors:   list,
			NumElements:  1,
			Labels:       []int{0},
			Coords:       []float64{0, 0, 0},
		}))
	}
	return backend.Pair{
		Basis:        basis,
		Target:       target,
		Projectors:   list,
		NumElements:  1,
		BasisLabels:  []int{0},
		TargetLabels: []int{0},
		Categories:   core.SiteCategories{MR: []int{0}, MS: []int{0}},
	}
}

func TestCompensationTerms(t *testing.T) {
	b := New(Params{}, nil)
	basis := read(t, b, twoBandDump())
	target := read(t, b, twoBandDump())
	pair := setupPair(t, b, basis, target)
	ctx := context.Background()

	_, err := b.CompensationTerms(ctx, pair, 1)
	require.Error(t, err, "overlap setup has not run")

	require.NoError(t, b.OverlapSetup(ctx, pair))

	// onsite overlap is ∫(1 - 0) dr on [0, 2] = 2; target band 1 has P = i
	out, err := b.CompensationTerms(ctx, pair, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 2, 2, 0}, out, 1e-12)

	require.NoError(t, b.FreeProjectorList(pair.Projectors, 1))
}

func TestSetupProjections_Validation(t *testing.T) {
	b := New(Params{}, nil)
	h := read(t, b, twoBandDump())
	ctx := context.Background()
	list, err := b.BuildProjectorList(ctx, backend.ProjectorTable{Pseudos: []*core.Pseudopotential{sPseudo()}})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  backend.ProjectionSetup
	}{
		{name: "label out of range", req: backend.ProjectionSetup{Labels: []int{1}, Coords: []float64{0, 0, 0}}},
		{name: "coords", req: backend.ProjectionSetup{Labels: []int{0}, Coords: []float64{0}}},
		{name: "site count", req: backend.ProjectionSetup{Labels: []int{0, 0}, Coords: make([]float64, 6)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Wavefunction, req.Projectors, req.NumElements = h, list, 1
			require.Error(t, b.SetupProjections(ctx, req))
		})
	}

	require.Error(t, b.FreeProjectorList(list, 2))
	require.NoError(t, b.FreeProjectorList(list, 1))
}

func TestOverlapSetup_Strict(t *testing.T) {
	b := New(Params{Strict: true}, nil)
	bare := twoBandDump()
	for i := range bare.Kpoints[0].States {
		bare.Kpoints[0].States[i].Projections = nil
	}
	basis := read(t, b, bare)
	target := read(t, b, twoBandDump())
	pair := setupPair(t, b, basis, target)

	require.Error(t, b.OverlapSetup(context.Background(), pair))
}

func TestOverlapSetup_WarnsWithoutProjections(t *testing.T) {
	logger, logs := testutil.NewRecordingLogger(t)
	b := New(Params{}, logger)
	bare := twoBandDump()
	for i := range bare.Kpoints[0].States {
		bare.Kpoints[0].States[i].Projections = nil
	}
	pair := setupPair(t, b, read(t, b, bare), read(t, b, twoBandDump()))

	require.NoError(t, b.OverlapSetup(context.Background(), pair))
	assert.Equal(t, []string{"wavefunction dump carries no projector coefficients, compensation terms will be zero"},
		logs.Messages(slog.LevelWarn))
}

func TestExpandSymmetrized(t *testing.T) {
	identity := []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	swapXY := []float64{0, 1, 0, 1, 0, 0, 0, 0, 1}
	// G-vectors move with (W⁻¹)ᵀ, not W
	threeFold := []float64{0, -1, 0, 1, -1, 0, 0, 0, 1}

	tests := []struct {
		name         string
		rotation     []float64
		translation  []float64
		timeReversal bool
		gvectors     [][3]int
		band1        []float64
	}{
		{name: "identity", rotation: identity, translation: []float64{0, 0, 0}, gvectors: [][3]int{{0, 0, 0}, {1, 0, 0}}, band1: []float64{0, 0, 1, 0}},
		{name: "rotation", rotation: swapXY, translation: []float64{0, 0, 0}, gvectors: [][3]int{{0, 0, 0}, {0, 1, 0}}, band1: []float64{0, 0, 1, 0}},
		{name: "hexagonal three-fold", rotation: threeFold, translation: []float64{0, 0, 0}, gvectors: [][3]int{{0, 0, 0}, {-1, 1, 0}}, band1: []float64{0, 0, 1, 0}},
		{name: "translation phase", rotation: identity, translation: []float64{0.5, 0, 0}, gvectors: [][3]int{{0, 0, 0}, {1, 0, 0}}, band1: []float64{0, 0, -1, 0}},
		{name: "time reversal", rotation: identity, translation: []float64{0.25, 0, 0}, timeReversal: true, gvectors: [][3]int{{0, 0, 0}, {-1, 0, 0}}, band1: []float64{0, 0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Params{}, nil)
			src := read(t, b, twoBandDump())

			h, err := b.ExpandSymmetrized(context.Background(), backend.SymmetryExpansion{
				Wavefunction: src,
				Kpoints:      core.Uniform([]core.Kpoint{{0, 0, 0}}),
				SourceIndex:  []int{0},
				OpIndex:      []int{0},
				Rotations:    tt.rotation,
				Translations: tt.translation,
				TimeReversal: []bool{tt.timeReversal},
			})
			require.NoError(t, err)

			w, err := b.wavefunction(h)
			require.NoError(t, err)
			kp := w.file.Kpoints[0]
			assert.Equal(t, tt.gvectors, kp.GVectors)
			assert.InDeltaSlice(t, tt.band1, kp.States[1].Coefficients, 1e-12)
			assert.Nil(t, kp.States[1].Projections)

			occs, err := b.Occupations(h)
			require.NoError(t, err)
			assert.Equal(t, []float64{1, 0}, occs)
		})
	}
}

func TestExpandSymmetrized_BadOperation(t *testing.T) {
	b := New(Params{}, nil)
	src := read(t, b, twoBandDump())

	_, err := b.ExpandSymmetrized(context.Background(), backend.SymmetryExpansion{
		Wavefunction: src,
		Kpoints:      core.Uniform([]core.Kpoint{{0, 0, 0}}),
		SourceIndex:  []int{0},
		OpIndex:      []int{1},
		Rotations:    make([]float64, 9),
		Translations: make([]float64, 3),
		TimeReversal: []bool{false},
	})
	require.Error(t, err)
}

func TestExpandSymmetrized_FullyAugmentedFails(t *testing.T) {
	b := New(Params{}, nil)
	ctx := context.Background()
	src := read(t, b, twoBandDump())

	expanded, err := b.ExpandSymmetrized(ctx, backend.SymmetryExpansion{
		Wavefunction: src,
		Kpoints:      core.Uniform([]core.Kpoint{{0, 0, 0}}),
		SourceIndex:  []int{0},
		OpIndex:      []int{0},
		Rotations:    []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Translations: []float64{0, 0, 0},
		TimeReversal: []bool{false},
	})
	require.NoError(t, err)
	basis := read(t, b, twoBandDump())

	pair := setupPair(t, b, basis, expanded)
	require.NoError(t, b.OverlapSetup(ctx, pair))

	pseudo, err := b.Pseudoprojection(ctx, basis, expanded, 1)
	require.NoError(t, err, "pseudo projections survive the expansion")
	assert.InDeltaSlice(t, []float64{0, 0, 1, 0}, pseudo, 1e-12)

	_, err = b.CompensationTerms(ctx, pair, 1)
	assert.ErrorIs(t, err, ErrExpandedProjections)

	// the expanded wavefunction as basis fails the same way
	swapped := setupPair(t, b, expanded, basis)
	require.NoError(t, b.OverlapSetup(ctx, swapped))
	_, err = b.CompensationTerms(ctx, swapped, 0)
	assert.ErrorIs(t, err, ErrExpandedProjections)
}

func TestRealspaceStateAndDensity(t *testing.T) {
	b := New(Params{}, nil)
	h := read(t, b, twoBandDump())
	ctx := context.Background()
	list, err := b.BuildProjectorList(ctx, backend.ProjectorTable{Pseudos: []*core.Pseudopotential{sPseudo()}})
	require.NoError(t, err)

	out, err := b.RealspaceState(ctx, backend.RealspaceRequest{Wavefunction: h, Projectors: list, Band: 1, GridDims: [3]int{2, 1, 1}})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.InDeltaSlice(t, []float64{1, -1, 0, 0}, out, 1e-12)

	density, err := b.Density(ctx, h, list, [3]int{2, 2, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1, 1, 1}, density, 1e-12)

	normalized := New(Params{Normalize: true}, nil)
	nh := read(t, normalized, twoBandDump())
	nlist, err := normalized.BuildProjectorList(ctx, backend.ProjectorTable{Pseudos: []*core.Pseudopotential{sPseudo()}})
	require.NoError(t, err)
	out, err = normalized.RealspaceState(ctx, backend.RealspaceRequest{Wavefunction: nh, Projectors: nlist, Band: 0, GridDims: [3]int{1, 1, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt(4), out[0], 1e-12)
}
