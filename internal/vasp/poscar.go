// Package vasp reads the VASP calculation files the projection engine
// needs and writes VASP volumetric data.
package vasp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/leapstack-labs/pawseed/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// ReadPoscarFile reads a POSCAR or CONTCAR file.
func ReadPoscarFile(path string) (core.Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Structure{}, fmt.Errorf("failed to open structure file: %w", err)
	}
	defer f.Close()

	s, err := ReadPoscar(f)
	if err != nil {
		return core.Structure{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadPoscar parses VASP 5 POSCAR text. The species line is required.
// A negative scale factor is interpreted as the target cell volume.
func ReadPoscar(r io.Reader) (core.Structure, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return core.Structure{}, fmt.Errorf("failed to read POSCAR: %w", err)
	}
	if len(lines) < 8 {
		return core.Structure{}, fmt.Errorf("POSCAR too short: %d lines", len(lines))
	}

	scale, err := parseFloats(lines[1], 1)
	if err != nil {
		return core.Structure{}, fmt.Errorf("POSCAR line 2 (scale): %w", err)
	}

	var lattice core.Lattice
	for i := 0; i < 3; i++ {
		v, err := parseFloats(lines[2+i], 3)
		if err != nil {
			return core.Structure{}, fmt.Errorf("POSCAR line %d (lattice): %w", 3+i, err)
		}
		lattice[i] = core.Vec3{v[0], v[1], v[2]}
	}
	factor := scale[0]
	if factor < 0 {
		factor = math.Cbrt(-factor / lattice.Volume())
	}
	for i := range lattice {
		for j := range lattice[i] {
			lattice[i][j] *= factor
		}
	}

	species := strings.Fields(lines[5])
	countFields := strings.Fields(lines[6])
	if len(species) != len(countFields) {
		return core.Structure{}, fmt.Errorf("POSCAR species line has %d entries but counts line has %d", len(species), len(countFields))
	}
	var elements []string
	for i, c := range countFields {
		n, err := strconv.Atoi(c)
		if err != nil {
			return core.Structure{}, fmt.Errorf("POSCAR counts line: %w", err)
		}
		for j := 0; j < n; j++ {
			elements = append(elements, species[i])
		}
	}

	idx := 7
	if mode := strings.TrimSpace(lines[idx]); mode != "" && (mode[0] == 'S' || mode[0] == 's') {
		idx++
	}
	if idx >= len(lines) {
		return core.Structure{}, fmt.Errorf("POSCAR missing coordinate mode line")
	}
	mode := strings.TrimSpace(lines[idx])
	cartesian := mode != "" && strings.ContainsRune("CcKk", rune(mode[0]))
	idx++

	if len(lines)-idx < len(elements) {
		return core.Structure{}, fmt.Errorf("POSCAR lists %d atoms but has %d coordinate lines", len(elements), len(lines)-idx)
	}
	inv, err := inverse(lattice)
	if err != nil && cartesian {
		return core.Structure{}, err
	}
	sites := make([]core.Site, len(elements))
	for i, el := range elements {
		v, err := parseFloats(lines[idx+i], 3)
		if err != nil {
			return core.Structure{}, fmt.Errorf("POSCAR coordinate line %d: %w", idx+i+1, err)
		}
		frac := core.Vec3{v[0], v[1], v[2]}
		if cartesian {
			frac = toFractional(inv, core.Vec3{v[0] * factor, v[1] * factor, v[2] * factor})
		}
		sites[i] = core.Site{Element: el, Frac: frac}
	}
	return core.NewStructure(lattice, sites), nil
}

func parseFloats(line string, n int) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d numbers, got %q", n, line)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// inverse returns the inverse of the lattice matrix (rows are vectors).
func inverse(l core.Lattice) (core.Lattice, error) {
	m := mat.NewDense(3, 3, []float64{
		l[0][0], l[0][1], l[0][2],
		l[1][0], l[1][1], l[1][2],
		l[2][0], l[2][1], l[2][2],
	})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return core.Lattice{}, fmt.Errorf("singular lattice: %w", err)
	}
	var out core.Lattice
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

// toFractional solves cart = frac·L for frac.
func toFractional(inv core.Lattice, cart core.Vec3) core.Vec3 {
	var out core.Vec3
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			out[j] += cart[i] * inv[i][j]
		}
	}
	return out
}
