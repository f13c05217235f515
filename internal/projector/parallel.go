package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/pawseed/pkg/backend"
	"golang.org/x/sync/errgroup"
)

// Job is one independent basis/target pair.
type Job struct {
	BasisDir  string
	TargetDir string
}

// ParallelOptions configure RunParallel. Session.ProjectorList must be
// nil: every job builds and owns its own list.
type ParallelOptions struct {
	Session Options

	// Workers bounds the number of jobs in flight. Values below 1 mean 1.
	Workers int

	// IgnoreErrors counts failed jobs instead of cancelling the rest.
	IgnoreErrors bool
}

// RunParallel opens a session for every job on a bounded worker pool and
// calls fn with it. Each job owns its wavefunctions and projector list,
// which are released when fn returns. It returns the number of failed
// jobs under IgnoreErrors, or the first error otherwise.
//
// The backend must be safe for concurrent use.
func RunParallel(ctx context.Context, b backend.Backend, provider Provider, jobs []Job, opts ParallelOptions, fn func(ctx context.Context, job Job, p *Projector) error) (int, error) {
	if opts.Session.ProjectorList != nil {
		return 0, fmt.Errorf("parallel jobs cannot share a projector list")
	}
	logger := opts.Session.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := max(opts.Workers, 1)

	var (
		mu     sync.Mutex
		failed int
	)
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, job := range jobs {
		eg.Go(func() error {
			err := runJob(egctx, b, provider, job, opts.Session, fn)
			if err == nil {
				return nil
			}
			err = fmt.Errorf("job %s onto %s: %w", job.TargetDir, job.BasisDir, err)
			if !opts.IgnoreErrors {
				return err
			}
			logger.Warn("job failed",
				slog.String("basis_dir", job.BasisDir),
				slog.String("target_dir", job.TargetDir),
				slog.Any("error", err))
			mu.Lock()
			failed++
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	logger.Info("parallel run finished",
		slog.Int("jobs", len(jobs)),
		slog.Int("workers", workers),
		slog.Int("errors", failed))
	return failed, nil
}

func runJob(ctx context.Context, b backend.Backend, provider Provider, job Job, opts Options, fn func(context.Context, Job, *Projector) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	basis, err := LoadWavefunction(ctx, b, provider, job.BasisDir, opts.Logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, basis.Close()) }()

	target, err := LoadWavefunction(ctx, b, provider, job.TargetDir, opts.Logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, target.Close()) }()

	p, err := New(ctx, target, basis, opts)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, p.Close()) }()

	return fn(ctx, job, p)
}
