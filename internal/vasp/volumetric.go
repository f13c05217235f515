package vasp

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

const valuesPerLine = 5

// WriteVolumetric writes a scalar field in the VASP volumetric format: a
// POSCAR-style header, the grid dimensions, then the values with x
// varying fastest.
func WriteVolumetric(w io.Writer, title string, s core.Structure, dims [3]int, data []float64) error {
	if n := dims[0] * dims[1] * dims[2]; n != len(data) {
		return &core.DimensionMismatchError{Quantity: "volumetric grid points", Norm: float64(len(data) - n)}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n", title)
	fmt.Fprintf(bw, "   1.00000000000000\n")
	for _, v := range s.Lattice {
		fmt.Fprintf(bw, " %12.6f%12.6f%12.6f\n", v[0], v[1], v[2])
	}
	species, counts := s.Counts()
	for _, sp := range species {
		fmt.Fprintf(bw, "%5s", sp)
	}
	fmt.Fprintln(bw)
	for _, c := range counts {
		fmt.Fprintf(bw, "%6d", c)
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Direct")
	for _, site := range s.Sites {
		fmt.Fprintf(bw, "%10.6f%10.6f%10.6f\n", site.Frac[0], site.Frac[1], site.Frac[2])
	}
	fmt.Fprintln(bw, " ")
	fmt.Fprintf(bw, "%d %d %d\n", dims[0], dims[1], dims[2])

	for i, v := range data {
		fmt.Fprintf(bw, " %.11E", v)
		if (i+1)%valuesPerLine == 0 || i == len(data)-1 {
			fmt.Fprintln(bw)
		}
	}
	return bw.Flush()
}

// WriteVolumetricFile writes the volumetric data to path, using path as
// the title line.
func WriteVolumetricFile(path string, s core.Structure, dims [3]int, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteVolumetric(f, path, s, dims, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
