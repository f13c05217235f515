package commands

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/pawseed/internal/cli/output"
	"github.com/leapstack-labs/pawseed/internal/projector"
	"github.com/spf13/cobra"
)

// NewRealspaceCommand creates the realspace command.
func NewRealspaceCommand() *cobra.Command {
	var (
		band, kpoint, spin int
		prefix             string
		grid               []int
	)

	cmd := &cobra.Command{
		Use:   "realspace <dir>",
		Short: "Write one state on a real-space grid",
		Long: `Evaluate one Kohn-Sham state of a calculation on a real-space grid and
write its real and imaginary parts as VASP volumetric files named
<prefix>B<band>K<kpoint>S<spin>_REAL and _IMAG.

The grid defaults to the calculation's FFT grid.`,
		Example: `  pawseed realspace defect --band 255 --kpoint 0 --spin 0
  pawseed realspace defect --band 255 --grid 48,48,48 --prefix defect/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dims, err := gridDims(grid)
			if err != nil {
				return err
			}
			return runRealspace(cmd, args[0], band, kpoint, spin, prefix, dims)
		},
	}

	cmd.Flags().IntVar(&band, "band", 0, "Band index (0-based)")
	cmd.Flags().IntVar(&kpoint, "kpoint", 0, "K-point index (0-based)")
	cmd.Flags().IntVar(&spin, "spin", 0, "Spin index (0-based)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Prefix of the output file names")
	cmd.Flags().IntSliceVar(&grid, "grid", nil, "Grid dimensions nx,ny,nz")
	_ = cmd.MarkFlagRequired("band")
	return cmd
}

func runRealspace(cmd *cobra.Command, dir string, band, kpoint, spin int, prefix string, dims [3]int) (err error) {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	b, err := cmdCtx.NewBackend()
	if err != nil {
		return err
	}
	w, err := projector.LoadWavefunction(cmd.Context(), b, cmdCtx.Provider, dir, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, w.Close()) }()

	realPath, imagPath, err := w.WriteStateRealspace(cmd.Context(), band, kpoint, spin, prefix, dims)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]string{"real": realPath, "imag": imagPath})
	}
	r.Success(fmt.Sprintf("Wrote %s and %s", realPath, imagPath))
	return nil
}

// NewDensityCommand creates the density command.
func NewDensityCommand() *cobra.Command {
	var (
		file string
		grid []int
	)

	cmd := &cobra.Command{
		Use:   "density <dir>",
		Short: "Write the pseudo charge density of a calculation",
		Long: `Evaluate the occupation and k-point weighted density of a calculation on a
real-space grid and write it as a VASP volumetric file.`,
		Example: `  pawseed density bulk
  pawseed density bulk --file bulk/PYAECCAR --grid 32,32,32`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dims, err := gridDims(grid)
			if err != nil {
				return err
			}
			return runDensity(cmd, args[0], file, dims)
		},
	}

	cmd.Flags().StringVar(&file, "file", projector.DefaultDensityFile, "Output file")
	cmd.Flags().IntSliceVar(&grid, "grid", nil, "Grid dimensions nx,ny,nz")
	return cmd
}

func runDensity(cmd *cobra.Command, dir, file string, dims [3]int) (err error) {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	b, err := cmdCtx.NewBackend()
	if err != nil {
		return err
	}
	w, err := projector.LoadWavefunction(cmd.Context(), b, cmdCtx.Provider, dir, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, w.Close()) }()

	data, err := w.WriteDensity(cmd.Context(), file, dims)
	if err != nil {
		return err
	}
	total := 0.0
	for _, v := range data {
		total += v
	}
	if file == "" {
		file = projector.DefaultDensityFile
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{"file": file, "points": len(data), "sum": total})
	}
	r.Success(fmt.Sprintf("Wrote %s (%d points)", file, len(data)))
	return nil
}

// gridDims converts a --grid value. An empty value selects the
// calculation grid.
func gridDims(grid []int) ([3]int, error) {
	var dims [3]int
	if len(grid) == 0 {
		return dims, nil
	}
	if len(grid) != 3 {
		return dims, fmt.Errorf("--grid needs three dimensions, got %d", len(grid))
	}
	for i, n := range grid {
		if n <= 0 {
			return dims, fmt.Errorf("--grid dimensions must be positive, got %v", grid)
		}
		dims[i] = n
	}
	return dims, nil
}
