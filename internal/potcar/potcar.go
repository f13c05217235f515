package potcar

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

const datasetTerminator = "End of Dataset"

// ReadFile reads a POTCAR file into a core region.
func ReadFile(path string) (*core.CoreRegion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open POTCAR: %w", err)
	}
	defer f.Close()

	cr, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cr, nil
}

// Read parses every dataset of a POTCAR stream, keeping file order.
func Read(r io.Reader) (*core.CoreRegion, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read POTCAR: %w", err)
	}

	var pps []*core.Pseudopotential
	for _, block := range strings.Split(string(raw), datasetTerminator) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		element := Element(datasetTitle(block))
		if element == "" {
			return nil, &core.MalformedDatasetError{Section: "TITEL", Reason: "cannot determine element"}
		}
		pp, err := Parse(element, block)
		if err != nil {
			return nil, err
		}
		pps = append(pps, pp)
	}
	if len(pps) == 0 {
		return nil, &core.MalformedDatasetError{Reason: "no datasets found"}
	}
	return core.NewCoreRegion(pps...), nil
}

// Element extracts the element symbol from a dataset title such as
// "PAW_PBE Ga_d 06Jul2010".
func Element(title string) string {
	fields := strings.Fields(title)
	if len(fields) < 2 {
		return ""
	}
	symbol, _, _ := strings.Cut(fields[1], "_")
	symbol, _, _ = strings.Cut(symbol, ".")
	return symbol
}
