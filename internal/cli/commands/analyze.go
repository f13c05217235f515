package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/pawseed/internal/cli/output"
	"github.com/leapstack-labs/pawseed/internal/metrics"
	"github.com/leapstack-labs/pawseed/internal/projector"
	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/spf13/cobra"
)

// TargetAnalysis is the defect band analysis of one target.
type TargetAnalysis struct {
	Dir     string              `json:"dir"`
	Bands   []core.BandAnalysis `json:"bands"`
	Skipped bool                `json:"skipped,omitempty"`
}

// AnalyzeOutput is the JSON form of an analyze run.
type AnalyzeOutput struct {
	RunID      string           `json:"run_id"`
	Basis      string           `json:"basis"`
	Mode       string           `json:"mode"`
	ErrorCount int              `json:"error_count"`
	Targets    []TargetAnalysis `json:"targets"`
}

type analyzeOptions struct {
	below        int
	above        int
	spin         bool
	energies     bool
	pseudo       bool
	ignoreErrors bool
	desymmetrize bool
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <basis-dir> <target-dir>...",
		Short: "Analyze the defect bands of one or more targets",
		Long: `Project the bands around the highest occupied band of every target onto a
shared basis and report their valence and conduction character.

The window covers --below bands under and --above bands over the highest
occupied target band. Results are stored in the state database; list them
later with 'pawseed runs'. With --workers above 1 the targets are processed
concurrently, each with its own projector list.`,
		Example: `  # Five bands either side of the VBM for two charge states
  pawseed analyze bulk q0 q+1 --below 5 --above 5

  # Spin resolved with band energies, skipping broken targets
  pawseed analyze bulk q0 q+1 q-1 --below 2 --above 8 --spin --energies --ignore-errors`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], args[1:], opts)
		},
	}

	cmd.Flags().IntVar(&opts.below, "below", 5, "Bands below the highest occupied band")
	cmd.Flags().IntVar(&opts.above, "above", 5, "Bands above the highest occupied band")
	cmd.Flags().BoolVar(&opts.spin, "spin", false, "Resolve the proportions per spin channel")
	cmd.Flags().BoolVar(&opts.energies, "energies", false, "Report the weighted mean band energies")
	cmd.Flags().BoolVar(&opts.pseudo, "pseudo", false, "Skip the augmentation compensation terms")
	cmd.Flags().BoolVar(&opts.ignoreErrors, "ignore-errors", false, "Skip targets that fail instead of stopping")
	cmd.Flags().BoolVar(&opts.desymmetrize, "desymmetrize", false, "Expand the basis k-points and map targets onto them")
	return cmd
}

func runAnalyze(cmd *cobra.Command, basisDir string, targetDirs []string, opts analyzeOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	b, err := cmdCtx.NewBackend()
	if err != nil {
		return err
	}
	store, cleanup, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	a := &analyzer{
		cmdCtx:   cmdCtx,
		backend:  b,
		provider: cmdCtx.Provider,
		store:    store,
		opts:     opts,
		mode:     projectionMode(opts.pseudo),
	}
	out, runErr := a.run(cmd.Context(), basisDir, targetDirs)
	if out == nil {
		return runErr
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}

	renderAnalysis(r, out, opts)
	return runErr
}

func renderAnalysis(r *output.Renderer, out *AnalyzeOutput, opts analyzeOptions) {
	r.Header(1, fmt.Sprintf("Defect bands against %s", out.Basis))
	r.KeyValue("Run", out.RunID)
	r.KeyValue("Mode", out.Mode)
	if out.ErrorCount > 0 {
		r.KeyValue("Skipped targets", out.ErrorCount)
	}
	r.Println()
	for _, t := range out.Targets {
		r.Header(2, t.Dir)
		if t.Skipped {
			r.Muted("skipped")
			continue
		}
		r.Table(bandHeader(opts.spin, opts.energies), bandRows(t.Bands, opts.spin, opts.energies))
	}
}

// analyzer runs one analyze invocation and records it as a run.
type analyzer struct {
	cmdCtx   *CommandContext
	backend  backend.Backend
	provider projector.Provider
	store    core.Store
	opts     analyzeOptions
	mode     core.ProjectionMode

	mu      sync.Mutex
	results map[string][]core.BandAnalysis
}

// run returns nil output only when the run could not be recorded.
func (a *analyzer) run(ctx context.Context, basisDir string, targetDirs []string) (*AnalyzeOutput, error) {
	logger := a.cmdCtx.Logger
	sink, acc, flush, err := a.cmdCtx.Metrics()
	if err != nil {
		return nil, err
	}

	run, err := a.store.CreateRun(basisDir, a.mode)
	if err != nil {
		return nil, err
	}
	logger.Info("analysis started",
		slog.String("run_id", run.ID),
		slog.String("basis_dir", basisDir),
		slog.Int("targets", len(targetDirs)),
		slog.Int("workers", a.cmdCtx.Cfg.Workers))

	a.results = make(map[string][]core.BandAnalysis, len(targetDirs))
	var errCount int
	if a.cmdCtx.Cfg.Workers > 1 {
		errCount, err = a.runParallel(ctx, run.ID, basisDir, targetDirs, sink)
	} else {
		errCount, err = a.runBatch(ctx, run.ID, basisDir, targetDirs, sink)
	}
	renderPhaseTotals(logger, acc)
	err = errors.Join(err, flush())

	status, msg := core.RunStatusCompleted, ""
	if err != nil {
		status, msg = core.RunStatusFailed, err.Error()
	}
	if cerr := a.store.CompleteRun(run.ID, status, msg, errCount); cerr != nil {
		err = errors.Join(err, cerr)
	}

	out := &AnalyzeOutput{
		RunID:      run.ID,
		Basis:      basisDir,
		Mode:       a.mode.String(),
		ErrorCount: errCount,
	}
	for _, dir := range targetDirs {
		bands, ok := a.results[dir]
		out.Targets = append(out.Targets, TargetAnalysis{Dir: dir, Bands: bands, Skipped: !ok})
	}
	return out, err
}

func (a *analyzer) defectOptions() projector.DefectOptions {
	return projector.DefectOptions{
		Below:        a.opts.below,
		Above:        a.opts.above,
		SpinResolved: a.opts.spin,
		Energies:     a.opts.energies,
	}
}

// analyzeTarget runs the defect analysis of one session and stores it.
func (a *analyzer) analyzeTarget(ctx context.Context, runID, dir string, p *projector.Projector) error {
	bands, err := p.DefectBandAnalysis(ctx, a.defectOptions())
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.SaveBandResults(runID, dir, a.opts.spin, bands); err != nil {
		return err
	}
	a.results[dir] = bands
	return nil
}

func (a *analyzer) runBatch(ctx context.Context, runID, basisDir string, targetDirs []string, sink metrics.Sink) (int, error) {
	batch, err := projector.NewBatch(ctx, a.backend, a.provider, basisDir, targetDirs, projector.BatchOptions{
		Mode:         a.mode,
		IgnoreErrors: a.opts.ignoreErrors,
		Desymmetrize: a.opts.desymmetrize,
		Symmetry:     a.cmdCtx.SymmetryOptions(),
		Metrics:      sink,
		Logger:       a.cmdCtx.Logger,
	})
	if err != nil {
		return 0, err
	}

	errCount := 0
	for batch.Next(ctx) {
		dir, p := batch.Item()
		if err := a.analyzeTarget(ctx, runID, dir, p); err != nil {
			if !a.opts.ignoreErrors {
				return errCount, errors.Join(fmt.Errorf("failed to analyze %s: %w", dir, err), batch.Close())
			}
			errCount++
			a.cmdCtx.Logger.Warn("skipping target", slog.String("target_dir", dir), slog.Any("error", err))
		}
	}
	errCount += batch.ErrorCount()
	return errCount, errors.Join(batch.Err(), batch.Close())
}

func (a *analyzer) runParallel(ctx context.Context, runID, basisDir string, targetDirs []string, sink metrics.Sink) (int, error) {
	jobs := make([]projector.Job, len(targetDirs))
	for i, dir := range targetDirs {
		jobs[i] = projector.Job{BasisDir: basisDir, TargetDir: dir}
	}
	return projector.RunParallel(ctx, a.backend, a.provider, jobs, projector.ParallelOptions{
		Session: projector.Options{
			Mode:               a.mode,
			DesymmetrizeBasis:  a.opts.desymmetrize,
			DesymmetrizeTarget: a.opts.desymmetrize,
			Symmetry:           a.cmdCtx.SymmetryOptions(),
			Metrics:            sink,
			Logger:             a.cmdCtx.Logger,
		},
		Workers:      a.cmdCtx.Cfg.Workers,
		IgnoreErrors: a.opts.ignoreErrors,
	}, func(ctx context.Context, job projector.Job, p *projector.Projector) error {
		return a.analyzeTarget(ctx, runID, job.TargetDir, p)
	})
}

func bandHeader(spin, energies bool) []string {
	h := []string{"band"}
	if spin {
		h = append(h, "spin")
	}
	h = append(h, "valence", "conduction")
	if energies {
		h = append(h, "energy (eV)")
	}
	return h
}

// bandRows lays out one row per band and spin channel. The columns follow
// bandHeader for the same flags, so a spin resolved analysis of a
// calculation without spin polarisation still gets its channel 0 column.
func bandRows(bands []core.BandAnalysis, spin, energies bool) [][]any {
	var rows [][]any
	for _, ba := range bands {
		for s := range ba.Proportion.Valence {
			row := []any{ba.Band}
			if spin {
				row = append(row, s)
			}
			row = append(row,
				fmt.Sprintf("%.6f", ba.Proportion.Valence[s]),
				fmt.Sprintf("%.6f", ba.Proportion.Conduction[s]))
			if energies {
				e := "-"
				if ba.Energy != nil {
					e = fmt.Sprintf("%.4f", *ba.Energy)
				}
				row = append(row, e)
			}
			rows = append(rows, row)
		}
	}
	return rows
}
