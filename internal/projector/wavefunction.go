// Package projector computes overlaps between the Kohn-Sham states of two
// PAW calculations sharing a lattice: a basis calculation and a target
// calculation whose bands are projected onto the basis bands.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/pawseed/internal/projlist"
	"github.com/leapstack-labs/pawseed/internal/symmetry"
	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/leapstack-labs/pawseed/pkg/core"
)

// Provider loads calculation inputs from a directory.
type Provider interface {
	Load(dir string) (*core.Calculation, error)
}

// Wavefunction is one calculation whose coefficients live in the backend.
// It is created per calculation directory and must be closed to release
// the backend memory.
type Wavefunction struct {
	calc    core.Calculation
	backend backend.Backend
	handle  backend.Handle
	dims    backend.Dimensions
	logger  *slog.Logger

	// set once projections were evaluated against list
	list   *projlist.List
	labels []int
	coords []float64

	closed bool
}

// OpenWavefunction reads the wavefunction of calc through b.
func OpenWavefunction(ctx context.Context, b backend.Backend, calc *core.Calculation, logger *slog.Logger) (*Wavefunction, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h, err := b.ReadWavefunction(ctx, calc.WavefunctionPath, calc.Kpoints.Weights)
	if err != nil {
		return nil, &core.BackendError{Op: "ReadWavefunction", Dir: calc.Dir, Err: err}
	}
	w, err := newWavefunction(b, h, *calc, logger)
	if err != nil {
		_ = b.FreeWavefunction(h)
		return nil, err
	}
	logger.Debug("opened wavefunction",
		slog.String("dir", calc.Dir),
		slog.Int("bands", w.dims.NumBands),
		slog.Int("kpoints", w.dims.NumKpoints),
		slog.Int("spins", w.dims.NumSpins))
	return w, nil
}

// LoadWavefunction loads dir through provider and opens its wavefunction.
func LoadWavefunction(ctx context.Context, b backend.Backend, provider Provider, dir string, logger *slog.Logger) (*Wavefunction, error) {
	calc, err := provider.Load(dir)
	if err != nil {
		return nil, err
	}
	return OpenWavefunction(ctx, b, calc, logger)
}

func newWavefunction(b backend.Backend, h backend.Handle, calc core.Calculation, logger *slog.Logger) (*Wavefunction, error) {
	dims, err := b.Dimensions(h)
	if err != nil {
		return nil, &core.BackendError{Op: "Dimensions", Dir: calc.Dir, Err: err}
	}
	if dims.NumKpoints != calc.Kpoints.Len() {
		return nil, &core.DimensionMismatchError{
			Quantity: fmt.Sprintf("k-point counts of %s (wavefunction %d, inputs %d)", calc.Dir, dims.NumKpoints, calc.Kpoints.Len()),
			Norm:     float64(dims.NumKpoints - calc.Kpoints.Len()),
		}
	}
	return &Wavefunction{calc: calc, backend: b, handle: h, dims: dims, logger: logger}, nil
}

// Dir returns the calculation directory.
func (w *Wavefunction) Dir() string { return w.calc.Dir }

// Structure returns the crystal structure.
func (w *Wavefunction) Structure() core.Structure { return w.calc.Structure }

// CoreRegion returns the pseudopotentials of the calculation.
func (w *Wavefunction) CoreRegion() *core.CoreRegion { return w.calc.CoreRegion }

// Kpoints returns the k-points and weights.
func (w *Wavefunction) Kpoints() core.KpointSet { return w.calc.Kpoints }

// GridDims returns the real-space grid dimensions.
func (w *Wavefunction) GridDims() [3]int { return w.calc.GridDims }

// Dims returns the band, k-point and spin counts.
func (w *Wavefunction) Dims() backend.Dimensions { return w.dims }

// Handle returns the backend handle.
func (w *Wavefunction) Handle() backend.Handle { return w.handle }

// Occupations returns the occupation of every state.
func (w *Wavefunction) Occupations() ([]float64, error) {
	if err := w.checkOpen("read occupations"); err != nil {
		return nil, err
	}
	occs, err := w.backend.Occupations(w.handle)
	if err != nil {
		return nil, &core.BackendError{Op: "Occupations", Dir: w.Dir(), Err: err}
	}
	if len(occs) != w.dims.States() {
		return nil, &core.BackendError{Op: "Occupations", Dir: w.Dir(), Err: fmt.Errorf("got %d occupations, want %d", len(occs), w.dims.States())}
	}
	return occs, nil
}

// Energy returns the eigenvalue of state (band, kpoint, spin).
func (w *Wavefunction) Energy(band, kpoint, spin int) (float64, error) {
	if err := w.checkOpen("read energy"); err != nil {
		return 0, err
	}
	e, err := w.backend.Energy(w.handle, band, kpoint, spin)
	if err != nil {
		return 0, &core.BackendError{Op: "Energy", Dir: w.Dir(), Err: err}
	}
	return e, nil
}

// Desymmetrize replaces w with a wavefunction over the full k-point set
// generated by the structure's space group, with uniform weights. w is
// closed on success.
func (w *Wavefunction) Desymmetrize(ctx context.Context, opts symmetry.Options) (*Wavefunction, error) {
	exp, err := symmetry.Desymmetrize(w.Structure(), w.Kpoints().Points, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to desymmetrize %s: %w", w.Dir(), err)
	}
	return w.expand(ctx, exp, exp.Uniform())
}

// MapOnto replaces w with a wavefunction over the k-points of target,
// each obtained from one of w's k-points by a symmetry operation. w is
// closed on success.
func (w *Wavefunction) MapOnto(ctx context.Context, target core.KpointSet, opts symmetry.Options) (*Wavefunction, error) {
	exp, err := symmetry.MapOnto(w.Structure(), w.Kpoints().Points, target.Points, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s onto k-points: %w", w.Dir(), err)
	}
	return w.expand(ctx, exp, target)
}

func (w *Wavefunction) expand(ctx context.Context, exp *symmetry.Expansion, kpts core.KpointSet) (*Wavefunction, error) {
	if err := w.checkOpen("expand symmetry"); err != nil {
		return nil, err
	}
	rot, trans := exp.Flatten()
	h, err := w.backend.ExpandSymmetrized(ctx, backend.SymmetryExpansion{
		Wavefunction: w.handle,
		Lattice:      w.Structure().Lattice,
		Kpoints:      kpts,
		SourceIndex:  exp.SourceIndex,
		OpIndex:      exp.OpIndex,
		Rotations:    rot,
		Translations: trans,
		TimeReversal: exp.TimeReversal,
		GridDims:     w.GridDims(),
	})
	if err != nil {
		return nil, &core.BackendError{Op: "ExpandSymmetrized", Dir: w.Dir(), Err: err}
	}

	calc := w.calc
	calc.Kpoints = kpts
	out, err := newWavefunction(w.backend, h, calc, w.logger)
	if err != nil {
		_ = w.backend.FreeWavefunction(h)
		return nil, err
	}
	w.logger.Debug("expanded k-points",
		slog.String("dir", w.Dir()),
		slog.Int("from", w.dims.NumKpoints),
		slog.Int("to", out.dims.NumKpoints))
	if err := w.Close(); err != nil {
		_ = out.Close()
		return nil, err
	}
	return out, nil
}

// attach evaluates projector coefficients of w against list. A
// wavefunction already attached to list is left alone.
func (w *Wavefunction) attach(ctx context.Context, list *projlist.List) error {
	if err := w.checkOpen("set up projections"); err != nil {
		return err
	}
	if w.list == list {
		return nil
	}
	labels, err := list.Labels().SiteLabels(w.Structure())
	if err != nil {
		return err
	}
	coords := projlist.Coords(w.Structure())
	err = w.backend.SetupProjections(ctx, backend.ProjectionSetup{
		Wavefunction: w.handle,
		Projectors:   list.Handle(),
		NumElements:  list.NumElements(),
		GridDims:     w.GridDims(),
		Labels:       labels,
		Coords:       coords,
	})
	if err != nil {
		return &core.BackendError{Op: "SetupProjections", Dir: w.Dir(), Err: err}
	}
	if err := w.detach(); err != nil {
		return err
	}
	w.list = list.Retain()
	w.labels = labels
	w.coords = coords
	return nil
}

func (w *Wavefunction) detachFrom(list *projlist.List) error {
	if w.list != list {
		return nil
	}
	return w.detach()
}

func (w *Wavefunction) detach() error {
	if w.list == nil {
		return nil
	}
	err := w.list.Release()
	w.list, w.labels, w.coords = nil, nil, nil
	return err
}

func (w *Wavefunction) checkOpen(op string) error {
	if w.closed {
		return &core.SessionStateError{Op: op, State: "closed", Required: "open wavefunction"}
	}
	return nil
}

// Close releases the backend wavefunction and any projector list
// reference. Closing twice is a no-op.
func (w *Wavefunction) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	if err := w.detach(); err != nil {
		errs = append(errs, err)
	}
	if err := w.backend.FreeWavefunction(w.handle); err != nil {
		errs = append(errs, &core.BackendError{Op: "FreeWavefunction", Dir: w.Dir(), Err: err})
	}
	return errors.Join(errs...)
}
