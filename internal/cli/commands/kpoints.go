package commands

import (
	"fmt"

	"github.com/leapstack-labs/pawseed/internal/cli/output"
	"github.com/leapstack-labs/pawseed/internal/symmetry"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/spf13/cobra"
)

// KpointInfo is the JSON form of one expanded k-point.
type KpointInfo struct {
	Kpoint       core.Kpoint `json:"kpoint"`
	Weight       float64     `json:"weight"`
	Source       int         `json:"source"`
	Operation    int         `json:"operation"`
	TimeReversal bool        `json:"time_reversal"`
}

// KpointsOutput is the JSON form of a k-point expansion.
type KpointsOutput struct {
	Dir         string       `json:"dir"`
	MapOnto     string       `json:"map_onto,omitempty"`
	Irreducible int          `json:"irreducible"`
	Operations  int          `json:"operations"`
	Kpoints     []KpointInfo `json:"kpoints"`
}

// NewKpointsCommand creates the kpoints command.
func NewKpointsCommand() *cobra.Command {
	var mapOnto string

	cmd := &cobra.Command{
		Use:   "kpoints <dir>",
		Short: "Expand the irreducible k-points of a calculation",
		Long: `Expand the symmetry-reduced k-points of a calculation with the space group
of its structure.

Without --map-onto the full set of distinct images is listed with uniform
weights. With --map-onto each k-point of the other calculation is traced back
to a k-point of this one, which fails if some point has no preimage.`,
		Example: `  # Full k-point set of the bulk calculation
  pawseed kpoints bulk

  # Express the defect k-points in terms of the bulk ones
  pawseed kpoints bulk --map-onto defect --time-reversal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKpoints(cmd, args[0], mapOnto)
		},
	}

	cmd.Flags().StringVar(&mapOnto, "map-onto", "", "Calculation whose k-points to map onto")
	return cmd
}

func runKpoints(cmd *cobra.Command, dir, mapOnto string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	opts := cmdCtx.SymmetryOptions()

	calc, err := cmdCtx.Provider.Load(dir)
	if err != nil {
		return err
	}

	var (
		exp     *symmetry.Expansion
		weights []float64
	)
	if mapOnto != "" {
		other, err := cmdCtx.Provider.Load(mapOnto)
		if err != nil {
			return err
		}
		exp, err = symmetry.MapOnto(calc.Structure, calc.Kpoints.Points, other.Kpoints.Points, opts)
		if err != nil {
			return err
		}
		weights = other.Kpoints.Weights
	} else {
		exp, err = symmetry.Desymmetrize(calc.Structure, calc.Kpoints.Points, opts)
		if err != nil {
			return err
		}
		weights = exp.Uniform().Weights
	}

	out := KpointsOutput{
		Dir:         dir,
		MapOnto:     mapOnto,
		Irreducible: calc.Kpoints.Len(),
		Operations:  len(exp.Operations),
		Kpoints:     make([]KpointInfo, exp.Len()),
	}
	for i, k := range exp.Kpoints {
		out.Kpoints[i] = KpointInfo{
			Kpoint:       k,
			Weight:       weights[i],
			Source:       exp.SourceIndex[i],
			Operation:    exp.OpIndex[i],
			TimeReversal: exp.TimeReversal[i],
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("K-points of %s", dir))
	r.KeyValue("Irreducible", out.Irreducible)
	r.KeyValue("Operations", out.Operations)
	r.KeyValue("Expanded", len(out.Kpoints))
	r.Println()

	rows := make([][]any, len(out.Kpoints))
	for i, k := range out.Kpoints {
		rows[i] = []any{
			i,
			fmt.Sprintf("%9.5f %9.5f %9.5f", k.Kpoint[0], k.Kpoint[1], k.Kpoint[2]),
			fmt.Sprintf("%.6f", k.Weight),
			k.Source,
			k.Operation,
			k.TimeReversal,
		}
	}
	r.Table([]string{"#", "k (fractional)", "weight", "source", "op", "time reversal"}, rows)
	return nil
}
