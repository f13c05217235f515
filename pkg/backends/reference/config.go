package reference

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds reference-backend configuration.
// Parsed from backend.options using mapstructure.
type Params struct {
	// Normalize divides real-space states by the square root of the cell
	// volume.
	Normalize bool `mapstructure:"normalize"`

	// Strict makes OverlapSetup fail when a wavefunction dump carries no
	// projector coefficients instead of treating them as zero.
	Strict bool `mapstructure:"strict"`
}

// ParseParams decodes string options into Params.
func ParseParams(opts map[string]string) (Params, error) {
	var p Params
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Params{}, err
	}
	if err := dec.Decode(opts); err != nil {
		return Params{}, fmt.Errorf("invalid reference backend options: %w", err)
	}
	return p, nil
}
