package reference

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML wavefunction dump read by ReadWavefunction.
//
// States of a k-point are stored spin-major: state s*NumBands+b is band b
// of spin s. Coefficients hold interleaved (re, im) plane-wave
// coefficients, one pair per G-vector of the k-point. Projections, when
// present, hold per-site interleaved projector coefficients ⟨p̃|ψ̃⟩ for
// every (channel, m) of the site's element in channel order.
type File struct {
	NumBands int      `yaml:"nbands"`
	NumSpins int      `yaml:"nspins"`
	Volume   float64  `yaml:"volume,omitempty"`
	Kpoints  []Kpoint `yaml:"kpoints"`
}

// Kpoint is one k-point of a dump.
type Kpoint struct {
	K        [3]float64 `yaml:"k"`
	GVectors [][3]int   `yaml:"gvectors"`
	States   []State    `yaml:"states"`
}

// State is one Kohn-Sham state.
type State struct {
	Occupation   float64     `yaml:"occ"`
	Energy       float64     `yaml:"energy"`
	Coefficients []float64   `yaml:"coeffs"`
	Projections  [][]float64 `yaml:"projections,omitempty"`
}

// ReadFile reads and validates a dump.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wavefunction %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse wavefunction %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wavefunction %s: %w", path, err)
	}
	return &f, nil
}

// WriteFile writes f as YAML to path.
func WriteFile(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode wavefunction: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write wavefunction %s: %w", path, err)
	}
	return nil
}

// Validate checks the state counts and coefficient lengths.
func (f *File) Validate() error {
	if f.NumBands <= 0 || f.NumSpins <= 0 {
		return fmt.Errorf("nbands and nspins must be positive, got %d and %d", f.NumBands, f.NumSpins)
	}
	if len(f.Kpoints) == 0 {
		return fmt.Errorf("no k-points")
	}
	for k, kp := range f.Kpoints {
		if want := f.NumBands * f.NumSpins; len(kp.States) != want {
			return fmt.Errorf("k-point %d has %d states, want %d", k, len(kp.States), want)
		}
		for i, st := range kp.States {
			if len(st.Coefficients) != 2*len(kp.GVectors) {
				return fmt.Errorf("k-point %d state %d has %d coefficients for %d G-vectors", k, i, len(st.Coefficients), len(kp.GVectors))
			}
		}
	}
	return nil
}

func (f *File) state(band, kpoint, spin int) *State {
	return &f.Kpoints[kpoint].States[spin*f.NumBands+band]
}
