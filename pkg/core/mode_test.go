package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProjectionMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ProjectionMode
		wantErr bool
	}{
		{in: "", want: ModeFullyAugmented},
		{in: "full", want: ModeFullyAugmented},
		{in: "fully-augmented", want: ModeFullyAugmented},
		{in: "pseudo", want: ModePseudo},
		{in: "augmented", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProjectionMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjectionMode_String(t *testing.T) {
	assert.Equal(t, "fully-augmented", ModeFullyAugmented.String())
	assert.Equal(t, "pseudo", ModePseudo.String())
	assert.Equal(t, "ProjectionMode(7)", ProjectionMode(7).String())
}

func TestProjectionMode_JSON(t *testing.T) {
	data, err := json.Marshal(Run{ID: "r1", Mode: ModePseudo})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mode":"pseudo"`)

	var run Run
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, ModePseudo, run.Mode)

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"bogus"}`), &run))
}
