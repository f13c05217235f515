package projector

import (
	"context"
	"testing"

	"github.com/leapstack-labs/pawseed/internal/testutil"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/stretchr/testify/require"
)

// env is a fake backend plus provider serving calculations that share one
// two-site Si cell.
type env struct {
	backend  *testutil.FakeBackend
	provider testutil.FakeProvider
	region   *core.CoreRegion
	cell     core.Structure
	kpts     core.KpointSet
}

func newEnv() *env {
	return &env{
		backend:  testutil.NewFakeBackend(map[string]*testutil.FakeWavefunction{}),
		provider: testutil.FakeProvider{},
		region:   core.NewCoreRegion(testutil.Pseudo("Si", 1.5)),
		cell: core.NewStructure(testutil.CubicLattice(5), []core.Site{
			{Element: "Si"},
			{Element: "Si", Frac: core.Vec3{0.5, 0.5, 0.5}},
		}),
		kpts: core.KpointSet{
			Points:  []core.Kpoint{{0, 0, 0}, {0.5, 0, 0}},
			Weights: []float64{0.5, 0.5},
		},
	}
}

// add registers dir with the shared cell and k-points.
func (e *env) add(dir string, wf *testutil.FakeWavefunction) {
	e.addCalc(dir, e.cell, e.kpts, wf)
}

func (e *env) addCalc(dir string, s core.Structure, kpts core.KpointSet, wf *testutil.FakeWavefunction) {
	path := e.provider.Add(dir, s, e.region, kpts)
	e.backend.Files[path] = wf
}

func (e *env) open(t *testing.T, dir string) *Wavefunction {
	t.Helper()
	w, err := LoadWavefunction(context.Background(), e.backend, e.provider, dir, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// session opens basis and target and builds a session of the given mode.
func (e *env) session(t *testing.T, mode core.ProjectionMode) *Projector {
	t.Helper()
	basis := e.open(t, "basis")
	target := e.open(t, "target")
	p, err := New(context.Background(), target, basis, Options{Mode: mode, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}
