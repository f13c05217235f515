package backend

import (
	"errors"
	"log/slog"
	"slices"
	"testing"

	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownBackendError_Error(t *testing.T) {
	err := &UnknownBackendError{Type: "cuda", Available: []string{"reference"}}
	assert.Equal(t, `unknown backend type "cuda" (registered: reference); set backend.type in pawseed.yaml or pass --backend`, err.Error())

	err = &UnknownBackendError{Type: "cuda"}
	assert.Contains(t, err.Error(), "(registered: none)")
}

func nopFactory(_ map[string]string, _ *slog.Logger) (Backend, error) { return nil, nil }

func TestRegister(t *testing.T) {
	Register(Registration{Name: "test_backend_zz", Summary: "sorts last", Factory: nopFactory})
	Register(Registration{Name: "test_backend_aa", Factory: nopFactory})

	r, ok := Lookup("test_backend_zz")
	require.True(t, ok)
	assert.Equal(t, "sorts last", r.Summary)
	_, ok = Lookup("test_backend_none")
	assert.False(t, ok)

	names := Names()
	assert.True(t, slices.IsSorted(names))
	assert.Less(t, slices.Index(names, "test_backend_aa"), slices.Index(names, "test_backend_zz"))
	assert.Len(t, Registered(), len(names))
}

func TestRegister_Panics(t *testing.T) {
	Register(Registration{Name: "test_backend_once", Factory: nopFactory})

	assert.Panics(t, func() { Register(Registration{Name: "test_backend_once", Factory: nopFactory}) }, "duplicate name")
	assert.Panics(t, func() { Register(Registration{Factory: nopFactory}) }, "empty name")
	assert.Panics(t, func() { Register(Registration{Name: "test_backend_nofactory"}) }, "nil factory")
	_, ok := Lookup("test_backend_nofactory")
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	Register(Registration{Name: "test_backend_failing", Factory: func(_ map[string]string, _ *slog.Logger) (Backend, error) {
		return nil, errors.New("no device")
	}})

	tests := []struct {
		name    string
		cfg     core.BackendConfig
		wantErr string
	}{
		{name: "empty type", cfg: core.BackendConfig{}, wantErr: "backend type not specified"},
		{name: "unknown type", cfg: core.BackendConfig{Type: "nope"}, wantErr: `unknown backend type "nope"`},
		{name: "factory error", cfg: core.BackendConfig{Type: "test_backend_failing"}, wantErr: "failed to create test_backend_failing backend: no device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	var unknown *UnknownBackendError
	_, err := New(core.BackendConfig{Type: "nope"}, nil)
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Type)
}

func TestDimensions_States(t *testing.T) {
	d := Dimensions{NumBands: 10, NumKpoints: 4, NumSpins: 2}
	assert.Equal(t, 80, d.States())
}
