package sites

import (
	"testing"

	"github.com/leapstack-labs/pawseed/internal/testutil"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rmaxTable map[string]float64

func (r rmaxTable) Rmax(el string) (float64, bool) {
	v, ok := r[el]
	return v, ok
}

var lattice = core.Lattice{{10, 0, 0}, {0, 10, 0}, {0, 0, 10}}

func structure(sites ...core.Site) core.Structure {
	return core.NewStructure(lattice, sites)
}

func TestClassify_IdenticalStructures(t *testing.T) {
	s := structure(
		core.Site{Element: "Ga", Frac: core.Vec3{0, 0, 0}},
		core.Site{Element: "As", Frac: core.Vec3{0.25, 0.25, 0.25}},
		core.Site{Element: "Ga", Frac: core.Vec3{0.5, 0.5, 0}},
	)

	res, err := Classify(s, s, rmaxTable{"Ga": 1.2, "As": 1.1}, testutil.NewTestLogger(t))
	require.NoError(t, err)

	cat := res.Categories
	assert.Equal(t, []int{0, 1, 2}, cat.MR)
	assert.Equal(t, []int{0, 1, 2}, cat.MS)
	assert.Empty(t, cat.NR)
	assert.Empty(t, cat.NS)
	assert.Empty(t, cat.NRS)
	assert.Empty(t, res.Ties)
}

func TestClassify_Vacancy(t *testing.T) {
	ref := structure(
		core.Site{Element: "Ga", Frac: core.Vec3{0, 0, 0}},
		core.Site{Element: "As", Frac: core.Vec3{0.25, 0.25, 0.25}},
		core.Site{Element: "Ga", Frac: core.Vec3{0.5, 0.5, 0}},
	)
	subj := structure(
		core.Site{Element: "Ga", Frac: core.Vec3{0, 0, 0}},
		core.Site{Element: "Ga", Frac: core.Vec3{0.5, 0.5, 0}},
	)

	res, err := Classify(ref, subj, rmaxTable{"Ga": 1.2, "As": 1.1}, nil)
	require.NoError(t, err)

	cat := res.Categories
	assert.Equal(t, []int{0, 2}, cat.MR)
	assert.Equal(t, []int{0, 1}, cat.MS)
	assert.Equal(t, []int{1}, cat.NR)
	assert.Empty(t, cat.NS)
	assert.Empty(t, cat.NRS)
}

func TestClassify_DisplacedAtomOverlaps(t *testing.T) {
	ref := structure(
		core.Site{Element: "Ga", Frac: core.Vec3{0, 0, 0}},
		core.Site{Element: "As", Frac: core.Vec3{0.5, 0.5, 0.5}},
	)
	// As moved by 1 Å, Ga moved by 0.01 Å (still matched), plus an As
	// interstitial far from everything.
	subj := structure(
		core.Site{Element: "Ga", Frac: core.Vec3{0.001, 0, 0}},
		core.Site{Element: "As", Frac: core.Vec3{0.6, 0.5, 0.5}},
		core.Site{Element: "As", Frac: core.Vec3{0.5, 0, 0}},
	)

	res, err := Classify(ref, subj, rmaxTable{"Ga": 1.5, "As": 1.5}, nil)
	require.NoError(t, err)

	cat := res.Categories
	assert.Equal(t, []int{0}, cat.MR)
	assert.Equal(t, []int{0}, cat.MS)
	assert.Equal(t, []int{1}, cat.NR)
	assert.Equal(t, []int{1, 2}, cat.NS)
	assert.Equal(t, []core.SitePair{{Reference: 1, Subject: 1}}, cat.NRS)
}

func TestClassify_MinimumImage(t *testing.T) {
	ref := structure(core.Site{Element: "O", Frac: core.Vec3{0.9995, 0, 0}})
	subj := structure(core.Site{Element: "O", Frac: core.Vec3{0.0005, 0, 0}})

	res, err := Classify(ref, subj, rmaxTable{"O": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Categories.MR, "0.01 Å apart across the boundary")
}

func TestClassify_ElementMustMatch(t *testing.T) {
	ref := structure(core.Site{Element: "Ga"})
	subj := structure(core.Site{Element: "Zn"})

	res, err := Classify(ref, subj, rmaxTable{"Ga": 1, "Zn": 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Categories.MR)
	assert.Equal(t, []core.SitePair{{Reference: 0, Subject: 0}}, res.Categories.NRS, "substitution overlaps")
}

func TestClassify_Tie(t *testing.T) {
	ref := structure(core.Site{Element: "H", Frac: core.Vec3{0.5, 0.5, 0.5}})
	subj := structure(
		core.Site{Element: "H", Frac: core.Vec3{0.501, 0.5, 0.5}},
		core.Site{Element: "H", Frac: core.Vec3{0.499, 0.5, 0.5}},
	)

	res, err := Classify(ref, subj, rmaxTable{"H": 0.5}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Categories.MS, "first subject site in order wins")
	require.Len(t, res.Ties, 1)
	assert.Equal(t, []int{1}, res.Ties[0].Ignored)
	assert.Equal(t, []int{1}, res.Categories.NS)
	assert.Contains(t, res.Ties[0].String(), "ignored [1]")
}

func TestClassify_MissingRmax(t *testing.T) {
	ref := structure(core.Site{Element: "Ga"})
	subj := structure(core.Site{Element: "Zn"})

	_, err := Classify(ref, subj, rmaxTable{"Ga": 1}, nil)
	var mde *core.MalformedDatasetError
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, "Zn", mde.Element)
}

func TestUnion(t *testing.T) {
	a := core.NewCoreRegion(&core.Pseudopotential{Element: "Ga", Rmax: 1})
	b := core.NewCoreRegion(&core.Pseudopotential{Element: "Ga", Rmax: 2}, &core.Pseudopotential{Element: "Zn", Rmax: 3})
	u := Union{a, nil, b}

	r, ok := u.Rmax("Ga")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, r, 0)
	r, ok = u.Rmax("Zn")
	assert.True(t, ok)
	assert.InDelta(t, 3.0, r, 0)
	_, ok = u.Rmax("O")
	assert.False(t, ok)
}
