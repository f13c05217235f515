// Package backend defines the numerical backend contract used by the
// projection engine.
//
// A backend owns all wavefunction coefficient data and projector tables.
// The engine only ever sees opaque Handles and flat float64 vectors.
// Concrete backends live in pkg/backends/ subdirectories and register
// themselves in their init functions.
package backend

import (
	"context"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

// Handle is an opaque reference to backend-resident memory. The zero
// Handle never refers to live memory.
type Handle uint64

// Dimensions describes the band, k-point and spin counts of a wavefunction.
type Dimensions struct {
	NumBands   int
	NumKpoints int
	NumSpins   int
}

// States returns NumBands*NumKpoints*NumSpins, the length of every
// per-state vector.
func (d Dimensions) States() int {
	return d.NumBands * d.NumKpoints * d.NumSpins
}

// ProjectorTable is the input of BuildProjectorList. Pseudos[label] is the
// dataset for dense element label.
type ProjectorTable struct {
	Pseudos   []*core.Pseudopotential
	GridEncut float64
}

// ProjectionSetup describes the sites of one wavefunction whose projector
// coefficients should be evaluated.
type ProjectionSetup struct {
	Wavefunction Handle
	Projectors   Handle
	NumElements  int
	GridDims     [3]int
	// Labels[i] is the element label of site i.
	Labels []int
	// Coords holds 3 fractional coordinates per site.
	Coords []float64
}

// Pair describes a basis/target pair of wavefunctions sharing one
// projector list, together with their site classification (R = basis,
// S = target).
type Pair struct {
	Basis        Handle
	Target       Handle
	Projectors   Handle
	NumElements  int
	GridDims     [3]int
	BasisLabels  []int
	BasisCoords  []float64
	TargetLabels []int
	TargetCoords []float64
	Categories   core.SiteCategories
}

// SymmetryExpansion is the input of ExpandSymmetrized. Every slice has
// one entry per output k-point except the flattened operations, which
// hold 9 rotation and 3 translation components per operation.
type SymmetryExpansion struct {
	Wavefunction Handle
	Lattice      core.Lattice
	Kpoints      core.KpointSet
	SourceIndex  []int
	OpIndex      []int
	Rotations    []float64
	Translations []float64
	TimeReversal []bool
	GridDims     [3]int
}

// RealspaceRequest selects one state to evaluate on a real-space grid.
type RealspaceRequest struct {
	Wavefunction Handle
	Projectors   Handle
	Band         int
	Kpoint       int
	Spin         int
	GridDims     [3]int
}

// Backend defines the interface every numerical backend implements.
// Output vectors of Pseudoprojection and CompensationTerms have length
// 2*NumBands*NumKpoints*NumSpins of the basis, real and imaginary parts
// interleaved, ordered band-major, then spin, then k-point.
type Backend interface {
	// Name returns the registry name of the backend.
	Name() string

	// ReadWavefunction loads wavefunction coefficients from path.
	ReadWavefunction(ctx context.Context, path string, kWeights []float64) (Handle, error)

	// FreeWavefunction releases a wavefunction handle.
	FreeWavefunction(h Handle) error

	// Dimensions returns the band, k-point and spin counts of h.
	Dimensions(h Handle) (Dimensions, error)

	// Occupations returns one occupation per state, band-major, then spin,
	// then k-point.
	Occupations(h Handle) ([]float64, error)

	// Energy returns the eigenvalue in eV of one state.
	Energy(h Handle, band, kpoint, spin int) (float64, error)

	// BuildProjectorList builds the projector tables for every element.
	BuildProjectorList(ctx context.Context, table ProjectorTable) (Handle, error)

	// FreeProjectorList releases a projector list built for numElements elements.
	FreeProjectorList(h Handle, numElements int) error

	// SetupProjections evaluates projector coefficients <p_i|psi> for every
	// site of a wavefunction without the Rayleigh expansion.
	SetupProjections(ctx context.Context, req ProjectionSetup) error

	// OverlapSetup precomputes the cross-structure overlap terms of a pair.
	OverlapSetup(ctx context.Context, pair Pair) error

	// Pseudoprojection returns the plane-wave overlaps of target band with
	// every basis state.
	Pseudoprojection(ctx context.Context, basis, target Handle, band int) ([]float64, error)

	// CompensationTerms returns the augmentation corrections for target band.
	CompensationTerms(ctx context.Context, pair Pair, band int) ([]float64, error)

	// ExpandSymmetrized returns a new wavefunction over the expanded k-point set.
	ExpandSymmetrized(ctx context.Context, req SymmetryExpansion) (Handle, error)

	// RealspaceState evaluates one state on a grid, returning the real parts
	// followed by the imaginary parts, x fastest.
	RealspaceState(ctx context.Context, req RealspaceRequest) ([]float64, error)

	// Density evaluates the electron density on a grid, x fastest.
	Density(ctx context.Context, wf, projectors Handle, dims [3]int) ([]float64, error)
}
