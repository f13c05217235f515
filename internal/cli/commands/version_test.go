package commands

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteVersion(t *testing.T) {
	tests := []struct {
		name     string
		rev      string
		backends []backend.Registration
		want     []string
		absent   []string
	}{
		{
			name:     "with revision and backends",
			rev:      "0b9c4f2e7d1a",
			backends: []backend.Registration{{Name: "reference", Summary: "direct sums"}, {Name: "vasp", Summary: "native"}},
			want:     []string{"pawseed 1.2.3", "revision: 0b9c4f2e7d1a", "reference", "direct sums", "vasp"},
		},
		{
			name:   "unstamped build without backends",
			want:   []string{"pawseed 1.2.3", "backends: none registered"},
			absent: []string{"revision"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeVersion(&buf, "1.2.3", tt.rev, tt.backends)

			got := buf.String()
			assert.Contains(t, got, runtime.Version())
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}
			for _, absent := range tt.absent {
				assert.NotContains(t, got, absent)
			}
		})
	}
}

func TestVersionCommand_Short(t *testing.T) {
	cmd := NewVersionCommand("0.4.0")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--short"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "0.4.0\n", buf.String())
}

func TestVersionCommand_ListsBackendsInOrder(t *testing.T) {
	cmd := NewVersionCommand("dev")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
	out := buf.String()
	last := -1
	for _, name := range backend.Names() {
		i := strings.Index(out, name)
		require.GreaterOrEqual(t, i, 0, "backend %s listed", name)
		assert.Greater(t, i, last, "backends are sorted")
		last = i
	}
}
