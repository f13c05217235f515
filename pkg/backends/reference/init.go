// Package reference provides an in-process numerical backend written in
// pure Go.
//
// Wavefunctions are read from YAML dumps (see File) rather than WAVECAR
// binaries. The backend is meant for small systems, tests and for
// checking other backends; every operation is a direct sum with no FFTs.
//
// This file registers the backend with the backend registry. Import this
// package with a blank identifier to register it:
//
//	import _ "github.com/leapstack-labs/pawseed/pkg/backends/reference"
package reference

import (
	"log/slog"

	"github.com/leapstack-labs/pawseed/pkg/backend"
)

// Name is the registry name of the backend.
const Name = "reference"

func init() {
	backend.Register(backend.Registration{
		Name:    Name,
		Summary: "pure Go direct sums over YAML wavefunction dumps",
		Factory: func(opts map[string]string, logger *slog.Logger) (backend.Backend, error) {
			params, err := ParseParams(opts)
			if err != nil {
				return nil, err
			}
			return New(params, logger), nil
		},
	})
}
