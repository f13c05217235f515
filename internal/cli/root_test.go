package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/leapstack-labs/pawseed/internal/cli/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/pawseed/pkg/backends/reference"
)

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	flags := []string{"config", "backend", "backend-opt", "symprec", "time-reversal", "state", "output", "verbose", "workers", "metrics"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.NotNil(t, cmd.PersistentFlags().ShorthandLookup("o"))
	assert.NotNil(t, cmd.PersistentFlags().ShorthandLookup("v"))
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"version", "potcar", "sites", "kpoints", "project", "analyze", "runs", "realspace", "density", "completion"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestGetConfig_Fallback(t *testing.T) {
	cfg := GetConfig(context.Background())

	assert.Equal(t, config.DefaultBackend, cfg.Backend.Type)
	assert.Equal(t, config.DefaultSymprec, cfg.Symprec)
	assert.Equal(t, config.DefaultTextfile, cfg.Metrics.Textfile)
}

func TestPersistentPreRun_StoresConfig(t *testing.T) {
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	var got *config.Config
	root := NewRootCmd()
	root.AddCommand(&cobra.Command{
		Use: "inspect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			got = GetConfig(cmd.Context())
			return nil
		},
	})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"inspect", "--workers", "4", "--symprec", "0.01", "--state", ":memory:"})

	require.NoError(t, root.Execute())
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Workers)
	assert.Equal(t, 0.01, got.Symprec)
	assert.Equal(t, ":memory:", got.StatePath)
}
