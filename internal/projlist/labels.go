// Package projlist builds the backend projector list shared by the
// wavefunctions of one or more projection sessions.
package projlist

import (
	"math"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

// LabelTable assigns dense integer labels to element symbols in
// first-seen order.
type LabelTable struct {
	elements []string
	pseudos  []*core.Pseudopotential
	index    map[string]int
}

// NewLabelTable labels every element of the given core regions. Regions
// are visited in order, and elements within a region in file order; an
// element seen again keeps its first label and dataset.
func NewLabelTable(regions ...*core.CoreRegion) *LabelTable {
	t := &LabelTable{index: make(map[string]int)}
	for _, cr := range regions {
		if cr == nil {
			continue
		}
		for _, el := range cr.Elements {
			if _, ok := t.index[el]; ok {
				continue
			}
			t.index[el] = len(t.elements)
			t.elements = append(t.elements, el)
			t.pseudos = append(t.pseudos, cr.Pseudos[el])
		}
	}
	return t
}

// Label returns the label of element.
func (t *LabelTable) Label(element string) (int, bool) {
	l, ok := t.index[element]
	return l, ok
}

// Len returns the number of labelled elements.
func (t *LabelTable) Len() int {
	return len(t.elements)
}

// Elements returns the element symbols indexed by label.
func (t *LabelTable) Elements() []string {
	return append([]string(nil), t.elements...)
}

// Pseudos returns the datasets indexed by label.
func (t *LabelTable) Pseudos() []*core.Pseudopotential {
	return append([]*core.Pseudopotential(nil), t.pseudos...)
}

// SiteLabels returns the label of every site of s.
func (t *LabelTable) SiteLabels(s core.Structure) ([]int, error) {
	out := make([]int, s.Len())
	for i, site := range s.Sites {
		l, ok := t.index[site.Element]
		if !ok {
			return nil, &core.MalformedDatasetError{Element: site.Element, Reason: "element has no projector label"}
		}
		out[i] = l
	}
	return out, nil
}

// Coords flattens the fractional coordinates of s, 3 per site.
func Coords(s core.Structure) []float64 {
	out := make([]float64, 0, 3*s.Len())
	for _, site := range s.Sites {
		out = append(out, site.Frac[0], site.Frac[1], site.Frac[2])
	}
	return out
}

// GridEncut returns the plane-wave cut-off in eV resolvable on a real
// space grid of dims points over lattice l, the largest over the three
// axes.
func GridEncut(l core.Lattice, dims [3]int) float64 {
	lengths := l.Lengths()
	best := 0.0
	for i := range dims {
		if lengths[i] == 0 {
			continue
		}
		g := 2 * math.Pi * float64(dims[i]) / lengths[i]
		best = math.Max(best, g*g/0.262)
	}
	return best
}
