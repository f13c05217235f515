package commands

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/pawseed/internal/cli/output"
	"github.com/leapstack-labs/pawseed/internal/projector"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/spf13/cobra"
)

// BasisWeight is the weight of a target band on one basis band and spin,
// summed over k-points.
type BasisWeight struct {
	Band       int     `json:"band"`
	Spin       int     `json:"spin"`
	Occupation float64 `json:"occupation"`
	Weight     float64 `json:"weight"`
}

// ProjectOutput is the JSON form of a single band projection.
type ProjectOutput struct {
	Basis      string          `json:"basis"`
	Target     string          `json:"target"`
	Band       int             `json:"band"`
	Mode       string          `json:"mode"`
	Proportion core.Proportion `json:"proportion"`
	Weights    []BasisWeight   `json:"weights"`
}

type projectOptions struct {
	band         int
	pseudo       bool
	spin         bool
	desymmetrize bool
	threshold    float64
}

// NewProjectCommand creates the project command.
func NewProjectCommand() *cobra.Command {
	var opts projectOptions

	cmd := &cobra.Command{
		Use:   "project <basis-dir> <target-dir>",
		Short: "Project one target band onto the basis bands",
		Long: `Project a single band of the target calculation onto every band of the
basis calculation and report how its weight splits over occupied (valence) and
empty (conduction) basis states.

Both calculations must share their k-points and weights unless --desymmetrize
expands them onto a common set first.`,
		Example: `  # Band 255 of a defect cell, fully augmented
  pawseed project bulk defect --band 255

  # Pseudo-only overlaps, spin resolved
  pawseed project bulk defect --band 255 --pseudo --spin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().IntVar(&opts.band, "band", -1, "Target band index (0-based)")
	cmd.Flags().BoolVar(&opts.pseudo, "pseudo", false, "Skip the augmentation compensation terms")
	cmd.Flags().BoolVar(&opts.spin, "spin", false, "Resolve the proportions per spin channel")
	cmd.Flags().BoolVar(&opts.desymmetrize, "desymmetrize", false, "Expand both k-point sets before projecting")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 1e-4, "Hide basis bands with a smaller weight")
	_ = cmd.MarkFlagRequired("band")
	return cmd
}

func projectionMode(pseudo bool) core.ProjectionMode {
	if pseudo {
		return core.ModePseudo
	}
	return core.ModeFullyAugmented
}

func runProject(cmd *cobra.Command, basisDir, targetDir string, opts projectOptions) (err error) {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	ctx := cmd.Context()

	b, err := cmdCtx.NewBackend()
	if err != nil {
		return err
	}
	sink, acc, flush, err := cmdCtx.Metrics()
	if err != nil {
		return err
	}

	basis, err := projector.LoadWavefunction(ctx, b, cmdCtx.Provider, basisDir, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, basis.Close()) }()

	target, err := projector.LoadWavefunction(ctx, b, cmdCtx.Provider, targetDir, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, target.Close()) }()

	p, err := projector.New(ctx, target, basis, projector.Options{
		Mode:               projectionMode(opts.pseudo),
		DesymmetrizeBasis:  opts.desymmetrize,
		DesymmetrizeTarget: opts.desymmetrize,
		Symmetry:           cmdCtx.SymmetryOptions(),
		Metrics:            sink,
		Logger:             cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, p.Close()) }()

	res, err := p.SingleBandProjection(ctx, opts.band)
	if err != nil {
		return err
	}
	prop, err := p.ProportionConduction(ctx, opts.band, opts.spin)
	if err != nil {
		return err
	}
	weights, err := basisWeights(p, res)
	if err != nil {
		return err
	}
	renderPhaseTotals(cmdCtx.Logger, acc)
	if err := flush(); err != nil {
		return err
	}

	out := ProjectOutput{
		Basis:      basisDir,
		Target:     targetDir,
		Band:       opts.band,
		Mode:       p.Mode().String(),
		Proportion: prop,
		Weights:    weights,
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Band %d of %s on %s", opts.band, targetDir, basisDir))
	r.KeyValue("Mode", out.Mode)
	renderProportion(r, prop)
	r.Println()

	var rows [][]any
	for _, w := range weights {
		if w.Weight < opts.threshold {
			continue
		}
		rows = append(rows, []any{w.Band, w.Spin, fmt.Sprintf("%.3f", w.Occupation), fmt.Sprintf("%.6f", w.Weight)})
	}
	r.Table([]string{"basis band", "spin", "occupation", "weight"}, rows)
	return nil
}

// basisWeights sums w_k·|overlap|² over k-points for every basis band and
// spin. The occupation is that of the first k-point.
func basisWeights(p *projector.Projector, res []complex128) ([]BasisWeight, error) {
	occs, err := p.Basis().Occupations()
	if err != nil {
		return nil, err
	}
	d := p.Basis().Dims()
	kws := p.Target().Kpoints().Weights

	out := make([]BasisWeight, 0, d.NumBands*d.NumSpins)
	for b := 0; b < d.NumBands; b++ {
		for s := 0; s < d.NumSpins; s++ {
			base := b*d.NumSpins*d.NumKpoints + s*d.NumKpoints
			w := 0.0
			for k := 0; k < d.NumKpoints; k++ {
				c := res[base+k]
				w += kws[k] * (real(c)*real(c) + imag(c)*imag(c))
			}
			out = append(out, BasisWeight{Band: b, Spin: s, Occupation: occs[base], Weight: w})
		}
	}
	return out, nil
}

func renderProportion(r *output.Renderer, prop core.Proportion) {
	if len(prop.Valence) == 1 {
		r.KeyValue("Valence", fmt.Sprintf("%.6f", prop.Valence[0]))
		r.KeyValue("Conduction", fmt.Sprintf("%.6f", prop.Conduction[0]))
		return
	}
	for s := range prop.Valence {
		r.KeyValue(fmt.Sprintf("Valence (spin %d)", s), fmt.Sprintf("%.6f", prop.Valence[s]))
		r.KeyValue(fmt.Sprintf("Conduction (spin %d)", s), fmt.Sprintf("%.6f", prop.Conduction[s]))
	}
}
