package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/pawseed/internal/metrics"
	"github.com/leapstack-labs/pawseed/internal/projlist"
	"github.com/leapstack-labs/pawseed/internal/symmetry"
	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/leapstack-labs/pawseed/pkg/core"
)

// ErrNoProjectorSetups is reported by a Batch that reached the end of its
// targets without setting up a single session.
var ErrNoProjectorSetups = errors.New("could not generate any projector setups")

// BasesOptions configure SetupBases.
type BasesOptions struct {
	Desymmetrize bool
	Symmetry     symmetry.Options

	// SkipFailedTargets leaves targets whose inputs cannot be read out of
	// the projector list instead of failing. Whoever opens such a target
	// later gets the load error.
	SkipFailedTargets bool

	Logger *slog.Logger
}

// SetupBases opens every basis directory, desymmetrizes the bases if asked
// to, and builds one projector list covering the elements of all bases and
// targets. Every basis is set up against the list before it is returned.
//
// The caller owns one reference to the list and every returned basis.
// Sessions created with the list as Options.ProjectorList share it.
func SetupBases(ctx context.Context, b backend.Backend, provider Provider, basisDirs, targetDirs []string, opts BasesOptions) (*projlist.List, []*Wavefunction, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(basisDirs) == 0 {
		return nil, nil, fmt.Errorf("no basis directories given")
	}

	var bases []*Wavefunction
	fail := func(err error) (*projlist.List, []*Wavefunction, error) {
		return nil, nil, errors.Join(err, closeAll(bases))
	}

	regions := make([]*core.CoreRegion, 0, len(basisDirs)+len(targetDirs))
	for _, dir := range basisDirs {
		w, err := LoadWavefunction(ctx, b, provider, dir, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to load basis %s: %w", dir, err))
		}
		if opts.Desymmetrize {
			d, err := w.Desymmetrize(ctx, opts.Symmetry)
			if err != nil {
				return fail(errors.Join(err, w.Close()))
			}
			w = d
		}
		bases = append(bases, w)
		regions = append(regions, w.CoreRegion())
	}
	skipped := 0
	for _, dir := range targetDirs {
		calc, err := provider.Load(dir)
		if err != nil {
			if !opts.SkipFailedTargets {
				return fail(fmt.Errorf("failed to load target %s: %w", dir, err))
			}
			skipped++
			logger.Debug("target left out of projector list", slog.String("target_dir", dir), slog.Any("error", err))
			continue
		}
		regions = append(regions, calc.CoreRegion)
	}

	first := bases[0]
	list, err := projlist.Build(ctx, b, projlist.GridEncut(first.Structure().Lattice, first.GridDims()), logger, regions...)
	if err != nil {
		return fail(err)
	}
	for _, w := range bases {
		if err := w.attach(ctx, list); err != nil {
			return fail(errors.Join(err, list.Release()))
		}
	}

	logger.Info("bases ready",
		slog.Int("bases", len(bases)),
		slog.Int("targets", len(targetDirs)-skipped),
		slog.Int("elements", list.NumElements()))
	return list, bases, nil
}

// BatchOptions configure a Batch.
type BatchOptions struct {
	Mode core.ProjectionMode

	// IgnoreErrors skips targets that fail to load or set up and counts
	// them instead of stopping the batch. Basis failures always abort.
	IgnoreErrors bool

	// Desymmetrize expands the basis k-points and maps every target onto
	// the expanded set.
	Desymmetrize bool
	Symmetry     symmetry.Options

	Metrics metrics.Sink
	Logger  *slog.Logger
}

// Batch iterates over projection sessions of many targets onto one basis,
// all sharing one projector list.
//
//	batch, err := projector.NewBatch(ctx, b, provider, basisDir, targetDirs, opts)
//	if err != nil {
//		return err
//	}
//	defer batch.Close()
//	for batch.Next(ctx) {
//		dir, p := batch.Item()
//		...
//	}
//	return batch.Err()
//
// The session returned by Item and its target wavefunction are released
// by the following Next or Close. The basis and the shared list are
// released when Next returns false or on Close.
type Batch struct {
	backend  backend.Backend
	provider Provider
	targets  []string
	opts     BatchOptions
	logger   *slog.Logger

	list  *projlist.List
	basis *Wavefunction

	pos     int
	dir     string
	current *Projector
	target  *Wavefunction

	succeeded int
	errCount  int
	err       error
	done      bool
}

// NewBatch sets up basisDir for projections of targetDirs. Only basis
// failures are returned here; a target that cannot be loaded fails on its
// turn in Next, so the targets before it still run.
func NewBatch(ctx context.Context, b backend.Backend, provider Provider, basisDir string, targetDirs []string, opts BatchOptions) (*Batch, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	list, bases, err := SetupBases(ctx, b, provider, []string{basisDir}, targetDirs, BasesOptions{
		Desymmetrize:      opts.Desymmetrize,
		Symmetry:          opts.Symmetry,
		SkipFailedTargets: true,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("basis setup failed", slog.String("basis_dir", basisDir), slog.Any("error", err))
		return nil, err
	}
	return &Batch{
		backend:  b,
		provider: provider,
		targets:  targetDirs,
		opts:     opts,
		logger:   logger.With(slog.String("basis_dir", basisDir)),
		list:     list,
		basis:    bases[0],
	}, nil
}

// Basis returns the shared basis wavefunction.
func (bt *Batch) Basis() *Wavefunction { return bt.basis }

// Next releases the previous session and sets up the next target. It
// returns false when the targets are exhausted or a target failed
// without IgnoreErrors.
func (bt *Batch) Next(ctx context.Context) bool {
	if err := bt.releaseCurrent(); err != nil {
		bt.fail(err)
		return false
	}
	if bt.done {
		return false
	}
	for bt.pos < len(bt.targets) {
		dir := bt.targets[bt.pos]
		bt.pos++

		p, target, err := bt.open(ctx, dir)
		if err != nil {
			if !bt.opts.IgnoreErrors {
				bt.fail(fmt.Errorf("failed to set up target %s: %w", dir, err))
				return false
			}
			bt.errCount++
			bt.logger.Warn("skipping target", slog.String("target_dir", dir), slog.Any("error", err))
			continue
		}
		bt.dir, bt.current, bt.target = dir, p, target
		bt.succeeded++
		return true
	}

	if bt.succeeded == 0 {
		bt.fail(ErrNoProjectorSetups)
		return false
	}
	bt.logger.Info("batch finished",
		slog.Int("targets", bt.succeeded),
		slog.Int("errors", bt.errCount))
	bt.fail(nil)
	return false
}

func (bt *Batch) open(ctx context.Context, dir string) (*Projector, *Wavefunction, error) {
	target, err := LoadWavefunction(ctx, bt.backend, bt.provider, dir, bt.logger)
	if err != nil {
		return nil, nil, err
	}
	p, err := New(ctx, target, bt.basis, Options{
		Mode:               bt.opts.Mode,
		ProjectorList:      bt.list,
		DesymmetrizeTarget: bt.opts.Desymmetrize,
		Symmetry:           bt.opts.Symmetry,
		Metrics:            bt.opts.Metrics,
		Logger:             bt.logger,
	})
	if err != nil {
		// a target replaced by symmetry expansion is already closed
		return nil, nil, errors.Join(err, target.Close())
	}
	return p, target, nil
}

// Item returns the current target directory and its session.
func (bt *Batch) Item() (string, *Projector) {
	return bt.dir, bt.current
}

// Err returns the error that stopped the batch, if any.
func (bt *Batch) Err() error { return bt.err }

// ErrorCount returns the number of targets skipped under IgnoreErrors.
func (bt *Batch) ErrorCount() int { return bt.errCount }

// Close releases the current session, the basis and the shared list.
// Closing an exhausted batch is a no-op.
func (bt *Batch) Close() error {
	err := bt.releaseCurrent()
	if bt.done {
		return err
	}
	bt.done = true
	return errors.Join(err, bt.releaseShared())
}

func (bt *Batch) fail(err error) {
	if bt.err == nil {
		bt.err = err
	}
	if !bt.done {
		bt.done = true
		if rerr := bt.releaseShared(); rerr != nil && bt.err == nil {
			bt.err = rerr
		}
	}
	if bt.err != nil {
		bt.logger.Error("batch aborted", slog.Any("error", bt.err))
	}
}

func (bt *Batch) releaseCurrent() error {
	if bt.current == nil {
		return nil
	}
	err := errors.Join(bt.current.Close(), bt.target.Close())
	bt.dir, bt.current, bt.target = "", nil, nil
	return err
}

func (bt *Batch) releaseShared() error {
	return errors.Join(bt.basis.Close(), bt.list.Release())
}
