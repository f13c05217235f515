package projector

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/pawseed/internal/projlist"
	"github.com/leapstack-labs/pawseed/internal/vasp"
	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/leapstack-labs/pawseed/pkg/core"
)

// DefaultDensityFile is the file name WriteDensity uses when none is given.
const DefaultDensityFile = "PYAECCAR"

// EnsureProjectors sets up projector coefficients of w against a list
// built from its own core region, unless w is already attached to a list.
func (w *Wavefunction) EnsureProjectors(ctx context.Context) error {
	if err := w.checkOpen("set up projectors"); err != nil {
		return err
	}
	if w.list != nil {
		return nil
	}
	list, err := projlist.Build(ctx, w.backend, projlist.GridEncut(w.Structure().Lattice, w.GridDims()), w.logger, w.CoreRegion())
	if err != nil {
		return err
	}
	// attach takes its own reference
	err = w.attach(ctx, list)
	return errors.Join(err, list.Release())
}

func (w *Wavefunction) gridOrDefault(dims [3]int) [3]int {
	if dims == [3]int{} {
		return w.GridDims()
	}
	return dims
}

// StateRealspace evaluates state (band, kpoint, spin) on a real-space grid
// (the calculation grid when dims is zero) and returns its real and
// imaginary parts, x varying fastest.
func (w *Wavefunction) StateRealspace(ctx context.Context, band, kpoint, spin int, dims [3]int) (re, im []float64, err error) {
	if err := w.checkState(band, kpoint, spin); err != nil {
		return nil, nil, err
	}
	if err := w.EnsureProjectors(ctx); err != nil {
		return nil, nil, err
	}
	dims = w.gridOrDefault(dims)
	out, err := w.backend.RealspaceState(ctx, backend.RealspaceRequest{
		Wavefunction: w.handle,
		Projectors:   w.list.Handle(),
		Band:         band,
		Kpoint:       kpoint,
		Spin:         spin,
		GridDims:     dims,
	})
	if err != nil {
		return nil, nil, &core.BackendError{Op: "RealspaceState", Dir: w.Dir(), Err: err}
	}
	n := dims[0] * dims[1] * dims[2]
	if len(out) != 2*n {
		return nil, nil, &core.BackendError{Op: "RealspaceState", Dir: w.Dir(), Err: fmt.Errorf("returned %d values, want %d", len(out), 2*n)}
	}
	return out[:n], out[n:], nil
}

// WriteStateRealspace writes the real and imaginary parts of a state to
// <prefix>B<band>K<kpoint>S<spin>_REAL and _IMAG in the VASP volumetric
// format and returns the two paths.
func (w *Wavefunction) WriteStateRealspace(ctx context.Context, band, kpoint, spin int, prefix string, dims [3]int) (string, string, error) {
	re, im, err := w.StateRealspace(ctx, band, kpoint, spin, dims)
	if err != nil {
		return "", "", err
	}
	dims = w.gridOrDefault(dims)
	base := fmt.Sprintf("%sB%dK%dS%d", prefix, band, kpoint, spin)
	realPath, imagPath := base+"_REAL", base+"_IMAG"
	if err := vasp.WriteVolumetricFile(realPath, w.Structure(), dims, re); err != nil {
		return "", "", err
	}
	if err := vasp.WriteVolumetricFile(imagPath, w.Structure(), dims, im); err != nil {
		return "", "", err
	}
	return realPath, imagPath, nil
}

// Density evaluates the electron density on a real-space grid, x varying
// fastest.
func (w *Wavefunction) Density(ctx context.Context, dims [3]int) ([]float64, error) {
	if err := w.EnsureProjectors(ctx); err != nil {
		return nil, err
	}
	dims = w.gridOrDefault(dims)
	out, err := w.backend.Density(ctx, w.handle, w.list.Handle(), dims)
	if err != nil {
		return nil, &core.BackendError{Op: "Density", Dir: w.Dir(), Err: err}
	}
	if n := dims[0] * dims[1] * dims[2]; len(out) != n {
		return nil, &core.BackendError{Op: "Density", Dir: w.Dir(), Err: fmt.Errorf("returned %d values, want %d", len(out), n)}
	}
	return out, nil
}

// WriteDensity writes the density to filename (DefaultDensityFile when
// empty) in the VASP volumetric format and returns the density.
func (w *Wavefunction) WriteDensity(ctx context.Context, filename string, dims [3]int) ([]float64, error) {
	if filename == "" {
		filename = DefaultDensityFile
	}
	data, err := w.Density(ctx, dims)
	if err != nil {
		return nil, err
	}
	if err := vasp.WriteVolumetricFile(filename, w.Structure(), w.gridOrDefault(dims), data); err != nil {
		return nil, err
	}
	return data, nil
}

func (w *Wavefunction) checkState(band, kpoint, spin int) error {
	d := w.dims
	if band < 0 || band >= d.NumBands {
		return &core.WindowOutOfRangeError{Min: band, Max: band, NumBands: d.NumBands}
	}
	if kpoint < 0 || kpoint >= d.NumKpoints {
		return fmt.Errorf("k-point %d out of range for %d k-points", kpoint, d.NumKpoints)
	}
	if spin < 0 || spin >= d.NumSpins {
		return fmt.Errorf("spin %d out of range for %d spins", spin, d.NumSpins)
	}
	return nil
}
