package projector

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/pawseed/internal/testutil"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRealspace(t *testing.T) {
	e := newEnv()
	e.add("wf", testutil.FakeFile(3, 2, 1, 1))
	w := e.open(t, "wf")
	ctx := context.Background()

	re, im, err := w.StateRealspace(ctx, 1, 0, 0, [3]int{2, 2, 2})
	require.NoError(t, err)
	assert.Len(t, re, 8)
	assert.Len(t, im, 8)
	for i := range re {
		assert.Equal(t, 2.0, re[i])
		assert.Zero(t, im[i])
	}

	_, _, err = w.StateRealspace(ctx, 0, 1, 0, [3]int{})
	require.NoError(t, err)
	assert.Equal(t, 1, e.backend.CallCount("BuildProjectorList"), "projectors are set up once")

	require.NoError(t, w.Close())
	assert.Equal(t, 0, e.backend.LiveLists())
}

func TestStateRealspace_OutOfRange(t *testing.T) {
	e := newEnv()
	e.add("wf", testutil.FakeFile(3, 2, 1, 1))
	w := e.open(t, "wf")
	ctx := context.Background()

	_, _, err := w.StateRealspace(ctx, 3, 0, 0, [3]int{})
	var window *core.WindowOutOfRangeError
	require.ErrorAs(t, err, &window)

	_, _, err = w.StateRealspace(ctx, 0, 2, 0, [3]int{})
	require.Error(t, err)
	_, _, err = w.StateRealspace(ctx, 0, 0, 1, [3]int{})
	require.Error(t, err)
	assert.Zero(t, e.backend.CallCount("RealspaceState"))
}

func TestWriteStateRealspace(t *testing.T) {
	e := newEnv()
	e.add("wf", testutil.FakeFile(3, 2, 1, 1))
	w := e.open(t, "wf")
	prefix := filepath.Join(t.TempDir(), "GaAs_")

	realPath, imagPath, err := w.WriteStateRealspace(context.Background(), 2, 1, 0, prefix, [3]int{1, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, prefix+"B2K1S0_REAL", realPath)
	assert.Equal(t, prefix+"B2K1S0_IMAG", imagPath)

	lines := readLines(t, realPath)
	assert.Equal(t, realPath, lines[0])
	assert.Equal(t, "1 1 2", lines[len(lines)-2])
	assert.Equal(t, " 3.00000000000E+00 3.00000000000E+00", lines[len(lines)-1])
	assert.FileExists(t, imagPath)
}

func TestWriteDensity(t *testing.T) {
	e := newEnv()
	e.add("wf", testutil.FakeFile(3, 2, 1, 1))
	w := e.open(t, "wf")
	path := filepath.Join(t.TempDir(), DefaultDensityFile)

	data, err := w.WriteDensity(context.Background(), path, [3]int{})
	require.NoError(t, err)
	assert.Len(t, data, 64)

	lines := readLines(t, path)
	assert.Contains(t, lines, "4 4 4")
	assert.Contains(t, lines, "Direct")
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}
