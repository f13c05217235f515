package core

// Kpoint is a reciprocal-space point in fractional reciprocal coordinates.
type Kpoint = Vec3

// KpointSet is an ordered list of k-points with one weight each.
type KpointSet struct {
	Points  []Kpoint
	Weights []float64
}

// Len returns the number of k-points.
func (k KpointSet) Len() int {
	return len(k.Points)
}

// Uniform returns a set over points with every weight equal to 1/N.
func Uniform(points []Kpoint) KpointSet {
	w := make([]float64, len(points))
	for i := range w {
		w[i] = 1 / float64(len(points))
	}
	return KpointSet{Points: points, Weights: w}
}

// Flatten returns the coordinates as a flat slice of length 3N.
func (k KpointSet) Flatten() []float64 {
	out := make([]float64, 0, 3*len(k.Points))
	for _, p := range k.Points {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}
