package core

import (
	"math"
	"slices"
)

// Vec3 is a three component vector, either fractional or Cartesian.
type Vec3 [3]float64

// Lattice holds the three lattice vectors as rows, in Å.
type Lattice [3]Vec3

// Cartesian converts fractional coordinates to Cartesian coordinates.
func (l Lattice) Cartesian(frac Vec3) Vec3 {
	var out Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[j] += frac[i] * l[i][j]
		}
	}
	return out
}

// Lengths returns |a|, |b| and |c|.
func (l Lattice) Lengths() Vec3 {
	var out Vec3
	for i, v := range l {
		out[i] = math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	}
	return out
}

// Volume returns the cell volume in Å³.
func (l Lattice) Volume() float64 {
	a, b, c := l[0], l[1], l[2]
	return math.Abs(a[0]*(b[1]*c[2]-b[2]*c[1]) -
		a[1]*(b[0]*c[2]-b[2]*c[0]) +
		a[2]*(b[0]*c[1]-b[1]*c[0]))
}

// Distance returns the minimum-image Cartesian distance between two
// fractional positions under periodic boundary conditions.
func (l Lattice) Distance(a, b Vec3) float64 {
	var d Vec3
	for i := range d {
		d[i] = a[i] - b[i]
		d[i] -= math.Round(d[i])
	}
	best := math.Inf(1)
	// The rounded difference is not always the shortest image for skewed
	// cells, so the 27 neighbouring images are checked.
	for x := -1.0; x <= 1; x++ {
		for y := -1.0; y <= 1; y++ {
			for z := -1.0; z <= 1; z++ {
				c := l.Cartesian(Vec3{d[0] + x, d[1] + y, d[2] + z})
				if n := math.Sqrt(c[0]*c[0] + c[1]*c[1] + c[2]*c[2]); n < best {
					best = n
				}
			}
		}
	}
	return best
}

// Site is a single atom of a structure.
type Site struct {
	Element string
	Frac    Vec3
}

// Structure is a periodic crystal: a lattice and an ordered list of sites.
// Site order is significant; indices into Sites identify atoms everywhere.
type Structure struct {
	Lattice Lattice
	Sites   []Site
}

// NewStructure builds a structure with every fractional coordinate wrapped
// into [0,1).
func NewStructure(lattice Lattice, sites []Site) Structure {
	out := make([]Site, len(sites))
	for i, s := range sites {
		out[i] = Site{Element: s.Element, Frac: Wrap(s.Frac)}
	}
	return Structure{Lattice: lattice, Sites: out}
}

// Wrap maps every component of a fractional vector into [0,1).
func Wrap(v Vec3) Vec3 {
	for i := range v {
		v[i] -= math.Floor(v[i])
		if v[i] >= 1 {
			v[i] = 0
		}
	}
	return v
}

// Len returns the number of sites.
func (s Structure) Len() int {
	return len(s.Sites)
}

// Species returns the distinct element symbols in order of first appearance.
func (s Structure) Species() []string {
	var out []string
	for _, site := range s.Sites {
		if !slices.Contains(out, site.Element) {
			out = append(out, site.Element)
		}
	}
	return out
}

// Counts returns the number of consecutive sites per species block, the
// way VASP headers list them.
func (s Structure) Counts() (species []string, counts []int) {
	for i, site := range s.Sites {
		if i == 0 || site.Element != s.Sites[i-1].Element {
			species = append(species, site.Element)
			counts = append(counts, 0)
		}
		counts[len(counts)-1]++
	}
	return species, counts
}

// Distance returns the minimum-image distance between sites i and j.
func (s Structure) Distance(i, j int) float64 {
	return s.Lattice.Distance(s.Sites[i].Frac, s.Sites[j].Frac)
}
