package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/pawseed/internal/cli/output"
	"github.com/leapstack-labs/pawseed/internal/potcar"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/spf13/cobra"
)

// PseudoInfo is the JSON form of one dataset summary.
type PseudoInfo struct {
	Element     string  `json:"element"`
	Title       string  `json:"title"`
	Rmax        float64 `json:"rmax"`
	Ls          []int   `json:"ls"`
	Projectors  int     `json:"projectors"`
	GridPoints  int     `json:"grid_points"`
	NData       int     `json:"ndata"`
	PartialCore bool    `json:"partial_core"`
}

// NewPotcarCommand creates the potcar command.
func NewPotcarCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "potcar <file>",
		Short: "Summarize the PAW datasets of a POTCAR",
		Long: `Parse every dataset in a POTCAR file and list its element, projector
channels and augmentation sphere radius.`,
		Example: `  pawseed potcar bulk/POTCAR
  pawseed potcar bulk/POTCAR --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPotcar(cmd, args[0])
		},
	}
}

func runPotcar(cmd *cobra.Command, path string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	region, err := potcar.ReadFile(path)
	if err != nil {
		return err
	}

	infos := make([]PseudoInfo, 0, len(region.Elements))
	for _, el := range region.Elements {
		infos = append(infos, pseudoInfo(region.Pseudos[el]))
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	r.Header(1, fmt.Sprintf("%s (%d datasets)", path, len(infos)))
	rows := make([][]any, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []any{
			info.Element,
			info.Title,
			fmt.Sprintf("%.4f", info.Rmax),
			joinInts(info.Ls),
			info.Projectors,
			info.GridPoints,
		})
	}
	r.Table([]string{"element", "title", "rmax (Å)", "l", "projectors", "grid"}, rows)
	return nil
}

func pseudoInfo(pp *core.Pseudopotential) PseudoInfo {
	return PseudoInfo{
		Element:     pp.Element,
		Title:       pp.Title,
		Rmax:        pp.Rmax,
		Ls:          pp.Ls,
		Projectors:  pp.ProjectorCount(),
		GridPoints:  len(pp.Grid),
		NData:       len(pp.ProjectorGrid),
		PartialCore: len(pp.PartialCoreCharge) > 0,
	}
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}
