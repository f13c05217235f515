package vasp

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/pawseed/internal/potcar"
	"github.com/leapstack-labs/pawseed/pkg/core"
)

// Standard file names inside a calculation directory.
const (
	StructureFile    = "CONTCAR"
	WavefunctionFile = "WAVECAR"
	PotcarFile       = "POTCAR"
	VasprunFile      = "vasprun.xml"
	OutcarFile       = "OUTCAR"
)

// DirectoryProvider loads calculations from VASP output directories.
type DirectoryProvider struct {
	Logger *slog.Logger
}

// Load reads CONTCAR, POTCAR, vasprun.xml and OUTCAR from dir. The
// WAVECAR is only checked for existence; the backend reads it.
func (p DirectoryProvider) Load(dir string) (*core.Calculation, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for _, name := range []string{StructureFile, WavefunctionFile, PotcarFile, VasprunFile, OutcarFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("calculation directory %s is missing %s: %w", dir, name, err)
		}
	}

	structure, err := ReadPoscarFile(filepath.Join(dir, StructureFile))
	if err != nil {
		return nil, err
	}
	cr, err := potcar.ReadFile(filepath.Join(dir, PotcarFile))
	if err != nil {
		return nil, err
	}
	kpts, err := ReadKpointsFile(filepath.Join(dir, VasprunFile))
	if err != nil {
		return nil, err
	}
	dims, err := ReadGridDimsFile(filepath.Join(dir, OutcarFile))
	if err != nil {
		return nil, err
	}
	for _, el := range structure.Species() {
		if _, ok := cr.Get(el); !ok {
			return nil, &core.MalformedDatasetError{Element: el, Reason: fmt.Sprintf("no dataset in %s", filepath.Join(dir, PotcarFile))}
		}
	}

	logger.Debug("loaded calculation",
		slog.String("dir", dir),
		slog.Int("sites", structure.Len()),
		slog.Int("kpoints", kpts.Len()),
		slog.Any("grid", dims))

	return &core.Calculation{
		Dir:              dir,
		Structure:        structure,
		CoreRegion:       cr,
		Kpoints:          kpts,
		GridDims:         dims,
		WavefunctionPath: filepath.Join(dir, WavefunctionFile),
	}, nil
}
