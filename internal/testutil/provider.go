package testutil

import (
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

// CubicLattice returns a cubic lattice with edge a in Å.
func CubicLattice(a float64) core.Lattice {
	return core.Lattice{{a, 0, 0}, {0, a, 0}, {0, 0, a}}
}

// Pseudo returns a minimal dataset for element with one s and one p
// channel and the given cut-off radius in Å.
func Pseudo(element string, rmax float64) *core.Pseudopotential {
	grid := []float64{0.01, 0.1, 0.5, 1, 1.5, 2}
	wave := []float64{0.01, 0.1, 0.4, 0.5, 0.3, 0.1}
	return &core.Pseudopotential{
		Element:        element,
		Title:          "PAW_PBE " + element,
		Rmax:           rmax,
		Ls:             []int{0, 1},
		Grid:           grid,
		PSWaves:        [][]float64{wave, wave},
		AEWaves:        [][]float64{wave, wave},
		RealProjectors: [][]float64{wave, wave},
	}
}

// FakeProvider serves calculations from memory, keyed by directory.
type FakeProvider map[string]*core.Calculation

// Load returns the calculation registered for dir.
func (p FakeProvider) Load(dir string) (*core.Calculation, error) {
	c, ok := p[dir]
	if !ok {
		return nil, fmt.Errorf("no calculation in %s", dir)
	}
	return c, nil
}

// Add registers a calculation for dir whose wavefunction path is
// dir/WAVECAR and returns that path.
func (p FakeProvider) Add(dir string, s core.Structure, region *core.CoreRegion, kpts core.KpointSet) string {
	path := filepath.Join(dir, "WAVECAR")
	p[dir] = &core.Calculation{
		Dir:              dir,
		Structure:        s,
		CoreRegion:       region,
		Kpoints:          kpts,
		GridDims:         [3]int{4, 4, 4},
		WavefunctionPath: path,
	}
	return path
}
