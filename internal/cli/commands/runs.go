package commands

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/pawseed/internal/cli/output"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/spf13/cobra"
)

// RunDetail is the JSON form of one stored run with its results.
type RunDetail struct {
	*core.Run
	Results []*core.BandRecord `json:"results"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored analysis runs",
		Long: `List the analysis runs recorded in the state database, newest first, or
show the stored band results of one run.`,
		Example: `  pawseed runs
  pawseed runs 0b9c4f2e-7d1a-4c55-9d7e-1f0f5cbb2a10 --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0])
			}
			return runListRuns(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}

func runListRuns(cmd *cobra.Command, limit int) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, cleanup, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []*core.Run{}
		}
		return r.JSON(runs)
	}

	renderRuns(r, runs)
	return nil
}

func renderRuns(r *output.Renderer, runs []*core.Run) {
	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	rows := make([][]any, len(runs))
	for i, run := range runs {
		rows[i] = []any{run.ID, run.BasisDir, run.Mode, run.Status, formatTime(run.StartedAt), run.ErrorCount}
	}
	r.Table([]string{"id", "basis", "mode", "status", "started", "errors"}, rows)
}

func runShowRun(cmd *cobra.Command, id string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, cleanup, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	records, err := store.GetBandResults(id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if records == nil {
			records = []*core.BandRecord{}
		}
		return r.JSON(RunDetail{Run: run, Results: records})
	}

	renderRunDetail(r, run, records)
	return nil
}

func renderRunDetail(r *output.Renderer, run *core.Run, records []*core.BandRecord) {
	r.Header(1, "Run "+run.ID)
	r.KeyValue("Basis", run.BasisDir)
	r.KeyValue("Mode", run.Mode)
	r.KeyValue("Status", run.Status)
	r.KeyValue("Started", formatTime(run.StartedAt))
	if run.CompletedAt != nil {
		r.KeyValue("Duration", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.ErrorCount > 0 {
		r.KeyValue("Skipped targets", run.ErrorCount)
	}
	if run.Error != "" {
		r.KeyValue("Error", run.Error)
	}
	r.Println()

	rows := make([][]any, len(records))
	for i, rec := range records {
		spin, energy := "-", "-"
		if rec.Spin >= 0 {
			spin = fmt.Sprint(rec.Spin)
		}
		if rec.Energy != nil {
			energy = fmt.Sprintf("%.4f", *rec.Energy)
		}
		rows[i] = []any{rec.TargetDir, rec.Band, spin,
			fmt.Sprintf("%.6f", rec.Valence), fmt.Sprintf("%.6f", rec.Conduction), energy}
	}
	r.Table([]string{"target", "band", "spin", "valence", "conduction", "energy (eV)"}, rows)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
