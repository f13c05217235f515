package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/pawseed/internal/metrics"
	"github.com/leapstack-labs/pawseed/internal/projlist"
	"github.com/leapstack-labs/pawseed/internal/sites"
	"github.com/leapstack-labs/pawseed/internal/symmetry"
	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
)

// MatchTolerance bounds the norm of the k-point and weight differences
// between basis and target.
const MatchTolerance = 1e-10

// State is the setup progress of a Projector.
type State int

// Projector states, in the order a session passes through them.
const (
	StateUninitialized State = iota
	StateProjectorListReady
	StateSiteCategoriesReady
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProjectorListReady:
		return "projector-list-ready"
	case StateSiteCategoriesReady:
		return "site-categories-ready"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configure a projection session.
type Options struct {
	// Mode selects pseudo-only or fully augmented projections.
	Mode core.ProjectionMode

	// ProjectorList is a shared list covering the elements of both
	// wavefunctions. When nil the session builds and owns its own list.
	ProjectorList *projlist.List

	// DesymmetrizeBasis and DesymmetrizeTarget expand symmetry-reduced
	// k-point sets before the k-point check. With both set the basis is
	// desymmetrized and the target mapped onto the result; with one set
	// that wavefunction is mapped onto the other's k-points.
	DesymmetrizeBasis  bool
	DesymmetrizeTarget bool
	Symmetry           symmetry.Options

	Metrics metrics.Sink
	Logger  *slog.Logger
}

// Projector projects target bands onto the bands of a basis.
type Projector struct {
	target *Wavefunction
	basis  *Wavefunction
	mode   core.ProjectionMode

	list       *projlist.List
	ownsList   bool
	owned      []*Wavefunction
	categories core.SiteCategories
	ties       []sites.Tie
	state      State

	metrics metrics.Sink
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates a projection session of target onto basis.
//
// Symmetry expansion replaces (and closes) the wavefunctions it expands;
// use Target and Basis to reach the replacements, which the session
// closes in Close. Fully augmented sessions are set up before New
// returns; pseudo sessions need no setup and start Ready.
func New(ctx context.Context, target, basis *Wavefunction, opts Options) (*Projector, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sink := opts.Metrics
	if sink == nil {
		sink = metrics.Discard
	}

	origTarget, origBasis := target, basis
	target, basis, err := desymmetrize(ctx, target, basis, opts)
	if err != nil {
		return nil, err
	}
	var owned []*Wavefunction
	if target != origTarget {
		owned = append(owned, target)
	}
	if basis != origBasis {
		owned = append(owned, basis)
	}
	if err := checkKpoints(basis.Kpoints(), target.Kpoints()); err != nil {
		return nil, errors.Join(err, closeAll(owned))
	}

	p := &Projector{
		owned:   owned,
		target:  target,
		basis:   basis,
		mode:    opts.Mode,
		metrics: sink,
		tracer:  metrics.Tracer(),
		logger:  logger.With(slog.String("basis_dir", basis.Dir()), slog.String("target_dir", target.Dir())),
	}
	if opts.ProjectorList != nil {
		p.list = opts.ProjectorList.Retain()
	}

	if p.mode == core.ModePseudo {
		p.state = StateReady
		return p, nil
	}
	if err := p.SetupProjection(ctx); err != nil {
		return nil, errors.Join(err, p.Close())
	}
	return p, nil
}

func closeAll(wfs []*Wavefunction) error {
	var errs []error
	for _, w := range wfs {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

func desymmetrize(ctx context.Context, target, basis *Wavefunction, opts Options) (*Wavefunction, *Wavefunction, error) {
	var err error
	switch {
	case opts.DesymmetrizeBasis && opts.DesymmetrizeTarget:
		if basis, err = basis.Desymmetrize(ctx, opts.Symmetry); err != nil {
			return nil, nil, err
		}
		if target, err = target.MapOnto(ctx, basis.Kpoints(), opts.Symmetry); err != nil {
			return nil, nil, errors.Join(err, basis.Close())
		}
	case opts.DesymmetrizeTarget:
		if target, err = target.MapOnto(ctx, basis.Kpoints(), opts.Symmetry); err != nil {
			return nil, nil, err
		}
	case opts.DesymmetrizeBasis:
		if basis, err = basis.MapOnto(ctx, target.Kpoints(), opts.Symmetry); err != nil {
			return nil, nil, err
		}
	}
	return target, basis, nil
}

func checkKpoints(basis, target core.KpointSet) error {
	if norm := differenceNorm(basis.Flatten(), target.Flatten()); norm > MatchTolerance {
		return &core.DimensionMismatchError{Quantity: "k-point grids", Norm: norm, Tolerance: MatchTolerance}
	}
	if norm := differenceNorm(basis.Weights, target.Weights); norm > MatchTolerance {
		return &core.DimensionMismatchError{Quantity: "k-point weights", Norm: norm, Tolerance: MatchTolerance}
	}
	return nil
}

func differenceNorm(a, b []float64) float64 {
	if len(a) != len(b) {
		return float64(abs(len(a) - len(b)))
	}
	return floats.Distance(a, b, 2)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Target returns the target wavefunction.
func (p *Projector) Target() *Wavefunction { return p.target }

// Basis returns the basis wavefunction.
func (p *Projector) Basis() *Wavefunction { return p.basis }

// Mode returns the projection mode.
func (p *Projector) Mode() core.ProjectionMode { return p.mode }

// State returns the setup state.
func (p *Projector) State() State { return p.state }

// Categories returns the site classification of the pair.
func (p *Projector) Categories() core.SiteCategories { return p.categories }

// Ties returns the ambiguous site pairings found during classification.
func (p *Projector) Ties() []sites.Tie { return p.ties }

// SetupProjection builds or reuses the projector list, evaluates projector
// coefficients of both wavefunctions, classifies sites and precomputes the
// overlap terms. Calling it again on a session that owns its list rebuilds
// the list and releases the old one.
func (p *Projector) SetupProjection(ctx context.Context) error {
	if p.state == StateClosed {
		return &core.SessionStateError{Op: "set up projection", State: p.state.String(), Required: "open session"}
	}
	ctx, span := p.tracer.Start(ctx, "projector.SetupProjection")
	defer span.End()

	start := time.Now()
	if err := p.ensureList(ctx); err != nil {
		return err
	}
	p.state = StateProjectorListReady

	err := p.phase(ctx, metrics.PhaseSetupProjections, func(ctx context.Context) error {
		if err := p.basis.attach(ctx, p.list); err != nil {
			return err
		}
		return p.target.attach(ctx, p.list)
	})
	if err != nil {
		return err
	}

	res, err := sites.Classify(p.basis.Structure(), p.target.Structure(),
		sites.Union{p.target.CoreRegion(), p.basis.CoreRegion()}, p.logger)
	if err != nil {
		return err
	}
	p.categories = res.Categories
	p.ties = res.Ties
	p.state = StateSiteCategoriesReady

	err = p.phase(ctx, metrics.PhaseOverlapSetup, func(ctx context.Context) error {
		if err := p.backend().OverlapSetup(ctx, p.pair()); err != nil {
			return &core.BackendError{Op: "OverlapSetup", Dir: p.target.Dir(), Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.state = StateReady

	p.logger.Info("projection setup complete",
		slog.Int("matched_sites", len(p.categories.MR)),
		slog.Int("overlapping_pairs", len(p.categories.NRS)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return nil
}

// ensureList makes p.list a live list covering both wavefunctions. A
// shared list is kept; an owned list is rebuilt on every setup.
func (p *Projector) ensureList(ctx context.Context) error {
	if p.list != nil && !p.ownsList {
		return nil
	}
	if err := p.releaseList(); err != nil {
		return err
	}
	list, err := projlist.Build(ctx, p.backend(),
		projlist.GridEncut(p.target.Structure().Lattice, p.target.GridDims()),
		p.logger, p.target.CoreRegion(), p.basis.CoreRegion())
	if err != nil {
		return err
	}
	p.list = list
	p.ownsList = true
	return nil
}

func (p *Projector) releaseList() error {
	if p.list == nil {
		return nil
	}
	var errs []error
	if p.ownsList {
		// wavefunctions attached to an owned list hold references to it
		errs = append(errs, p.basis.detachFrom(p.list), p.target.detachFrom(p.list))
	}
	errs = append(errs, p.list.Release())
	p.list = nil
	p.ownsList = false
	return errors.Join(errs...)
}

func (p *Projector) phase(ctx context.Context, phase metrics.Phase, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, string(phase))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	p.metrics.Observe(phase, d)
	span.SetAttributes(attribute.Int64("elapsed_ms", d.Milliseconds()))
	if err != nil {
		span.RecordError(err)
	}
	p.logger.Debug("phase finished", slog.String("phase", string(phase)), slog.Int64("elapsed_ms", d.Milliseconds()))
	return err
}

func (p *Projector) backend() backend.Backend {
	return p.target.backend
}

func (p *Projector) pair() backend.Pair {
	return backend.Pair{
		Basis:        p.basis.handle,
		Target:       p.target.handle,
		Projectors:   p.list.Handle(),
		NumElements:  p.list.NumElements(),
		GridDims:     p.target.GridDims(),
		BasisLabels:  p.basis.labels,
		BasisCoords:  p.basis.coords,
		TargetLabels: p.target.labels,
		TargetCoords: p.target.coords,
		Categories:   p.categories,
	}
}

func (p *Projector) requireReady(op string) error {
	if p.state != StateReady {
		return &core.SessionStateError{Op: op, State: p.state.String(), Required: StateReady.String()}
	}
	return nil
}

// SingleBandProjection returns the overlaps of target band with every
// basis state, ordered band-major, then spin, then k-point: entry
// b*nspin*nwk + s*nwk + k belongs to basis band b, spin s, k-point k.
func (p *Projector) SingleBandProjection(ctx context.Context, band int) ([]complex128, error) {
	if err := p.requireReady("project band"); err != nil {
		return nil, err
	}
	if band < 0 || band >= p.target.dims.NumBands {
		return nil, &core.WindowOutOfRangeError{Min: band, Max: band, NumBands: p.target.dims.NumBands}
	}

	want := 2 * p.basis.dims.States()
	res, err := p.backend().Pseudoprojection(ctx, p.basis.handle, p.target.handle, band)
	if err != nil {
		return nil, &core.BackendError{Op: "Pseudoprojection", Dir: p.target.Dir(), Err: err}
	}
	if len(res) != want {
		return nil, &core.BackendError{Op: "Pseudoprojection", Dir: p.target.Dir(), Err: fmt.Errorf("returned %d values, want %d", len(res), want)}
	}

	if p.mode == core.ModeFullyAugmented {
		var ct []float64
		err := p.phase(ctx, metrics.PhaseCompensationTerms, func(ctx context.Context) error {
			var err error
			ct, err = p.backend().CompensationTerms(ctx, p.pair(), band)
			return err
		})
		if err != nil {
			return nil, &core.BackendError{Op: "CompensationTerms", Dir: p.target.Dir(), Err: err}
		}
		if len(ct) != want {
			return nil, &core.BackendError{Op: "CompensationTerms", Dir: p.target.Dir(), Err: fmt.Errorf("returned %d values, want %d", len(ct), want)}
		}
		floats.Add(res, ct)
	}
	return Combine(res), nil
}

// Combine turns interleaved (re, im) pairs into complex numbers.
func Combine(v []float64) []complex128 {
	out := make([]complex128, len(v)/2)
	for i := range out {
		out[i] = complex(v[2*i], v[2*i+1])
	}
	return out
}

// Close releases the session's projector list reference and the
// wavefunctions it created by symmetry expansion. Wavefunctions passed to
// New and not replaced stay open.
func (p *Projector) Close() error {
	if p.state == StateClosed {
		return nil
	}
	err := errors.Join(p.releaseList(), closeAll(p.owned))
	p.owned = nil
	p.state = StateClosed
	return err
}
