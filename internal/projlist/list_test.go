package projlist

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/leapstack-labs/pawseed/internal/testutil"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func region(elements ...string) *core.CoreRegion {
	pps := make([]*core.Pseudopotential, len(elements))
	for i, el := range elements {
		pps[i] = &core.Pseudopotential{Element: el, Rmax: 1}
	}
	return core.NewCoreRegion(pps...)
}

func TestLabelTable_FirstSeenOrder(t *testing.T) {
	table := NewLabelTable(region("Ga", "As"), nil, region("As", "Zn", "Ga", "O"))

	assert.Equal(t, []string{"Ga", "As", "Zn", "O"}, table.Elements())
	assert.Equal(t, 4, table.Len())

	for i, el := range table.Elements() {
		l, ok := table.Label(el)
		require.True(t, ok)
		assert.Equal(t, i, l, "labels are dense and in first-seen order")
	}
	_, ok := table.Label("Fe")
	assert.False(t, ok)
}

func TestLabelTable_SiteLabelsAndCoords(t *testing.T) {
	table := NewLabelTable(region("Ga", "As"))
	s := core.NewStructure(core.Lattice{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}}, []core.Site{
		{Element: "As", Frac: core.Vec3{0.25, 0.25, 0.25}},
		{Element: "Ga"},
	})

	labels, err := table.SiteLabels(s)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, labels)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0, 0, 0}, Coords(s))

	s.Sites = append(s.Sites, core.Site{Element: "Zn"})
	_, err = table.SiteLabels(s)
	var mde *core.MalformedDatasetError
	assert.ErrorAs(t, err, &mde)
}

func TestGridEncut(t *testing.T) {
	l := core.Lattice{{2 * math.Pi, 0, 0}, {0, 4 * math.Pi, 0}, {0, 0, 2 * math.Pi}}
	// axis a: g = 10, axis b: g = 10, axis c: g = 20
	assert.InDelta(t, 400/0.262, GridEncut(l, [3]int{10, 20, 20}), 1e-9)
}

func TestList_RefCounting(t *testing.T) {
	fb := testutil.NewFakeBackend(nil)
	ctx := context.Background()

	list, err := Build(ctx, fb, 100, testutil.NewTestLogger(t), region("Ga", "As"), region("Zn"))
	require.NoError(t, err)
	assert.Equal(t, 3, list.NumElements())
	assert.Equal(t, 1, list.Refs())
	assert.Equal(t, 1, fb.LiveLists())

	list.Retain().Retain()
	assert.Equal(t, 3, list.Refs())

	require.NoError(t, list.Release())
	require.NoError(t, list.Release())
	assert.Equal(t, 1, fb.LiveLists(), "freed only after the last user")

	require.NoError(t, list.Release())
	assert.Equal(t, 0, fb.LiveLists())
	assert.Equal(t, 1, fb.CallCount("FreeProjectorList"))

	err = list.Release()
	var se *core.SessionStateError
	assert.ErrorAs(t, err, &se, "double release is reported")
	assert.Equal(t, 1, fb.CallCount("FreeProjectorList"))
}

func TestBuild_Errors(t *testing.T) {
	fb := testutil.NewFakeBackend(nil)
	_, err := Build(context.Background(), fb, 0, nil)
	assert.Error(t, err, "no elements")

	fb.Fail["BuildProjectorList"] = errors.New("allocation failed")
	_, err = Build(context.Background(), fb, 0, nil, region("Ga"))
	var be *core.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "BuildProjectorList", be.Op)
}
