package core

import "fmt"

// ProjectionMode selects how much of the PAW overlap a session computes.
type ProjectionMode int

const (
	// ModeFullyAugmented computes pseudo-overlaps plus the augmentation
	// compensation terms.
	ModeFullyAugmented ProjectionMode = iota
	// ModePseudo computes only the plane-wave pseudo-overlaps.
	ModePseudo
)

func (m ProjectionMode) String() string {
	switch m {
	case ModeFullyAugmented:
		return "fully-augmented"
	case ModePseudo:
		return "pseudo"
	default:
		return fmt.Sprintf("ProjectionMode(%d)", int(m))
	}
}

// ParseProjectionMode parses the String form of a mode.
func ParseProjectionMode(s string) (ProjectionMode, error) {
	switch s {
	case "fully-augmented", "full", "":
		return ModeFullyAugmented, nil
	case "pseudo":
		return ModePseudo, nil
	}
	return 0, fmt.Errorf("unknown projection mode %q (expected pseudo or fully-augmented)", s)
}

// MarshalText encodes the mode by its String form.
func (m ProjectionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode written by MarshalText.
func (m *ProjectionMode) UnmarshalText(text []byte) error {
	mode, err := ParseProjectionMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
