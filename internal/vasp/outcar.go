package vasp

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
)

var ngfRe = regexp.MustCompile(`NGXF=\s*(\d+)\s+NGYF=\s*(\d+)\s+NGZF=\s*(\d+)`)

// ReadGridDimsFile reads the working FFT grid from an OUTCAR file.
func ReadGridDimsFile(path string) ([3]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return [3]int{}, fmt.Errorf("failed to open OUTCAR: %w", err)
	}
	defer f.Close()

	dims, err := ReadGridDims(f)
	if err != nil {
		return [3]int{}, fmt.Errorf("%s: %w", path, err)
	}
	return dims, nil
}

// ReadGridDims returns half of the fine FFT grid (NGXF, NGYF, NGZF)
// reported in OUTCAR.
func ReadGridDims(r io.Reader) ([3]int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return [3]int{}, fmt.Errorf("failed to read OUTCAR: %w", err)
	}
	m := ngfRe.FindSubmatch(data)
	if m == nil {
		return [3]int{}, fmt.Errorf("OUTCAR has no NGXF/NGYF/NGZF line")
	}
	var dims [3]int
	for i := range dims {
		n, err := strconv.Atoi(string(m[i+1]))
		if err != nil {
			return [3]int{}, err
		}
		dims[i] = n / 2
	}
	return dims, nil
}
