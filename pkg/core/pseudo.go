package core

// BohrToAngstrom converts lengths in bohr to Å.
const BohrToAngstrom = 0.529177

// Pseudopotential is one element's PAW dataset.
//
// Every per-channel slice (Ls, PSWaves, AEWaves, RealProjectors,
// ReciprocalProjectors) has the same length, one entry per projector
// channel, in file order.
type Pseudopotential struct {
	Element string
	Title   string

	// Rmax is the projector cut-off radius in Å.
	Rmax float64

	Ls                   []int
	PSWaves              [][]float64
	AEWaves              [][]float64
	RealProjectors       [][]float64
	ReciprocalProjectors [][]float64
	NonlocalStrengths    [][]float64

	// ProjectorGrid holds NDATA evenly spaced radii on [0, Rmax).
	ProjectorGrid []float64
	// Grid is the logarithmic radial grid of the partial waves.
	Grid []float64

	AEPotential       []float64
	PSPotential       []float64
	CoreCharge        []float64
	PSCoreCharge      []float64
	KineticDensity    []float64
	PartialCoreCharge []float64
	Augmentation      []float64
	LocalPart         []float64
	AtomicDensity     []float64

	GradientCorrection int
}

// Channels returns the number of projector channels.
func (p *Pseudopotential) Channels() int {
	return len(p.Ls)
}

// ProjectorCount returns the number of projector functions, counting the
// 2l+1 magnetic components of every channel.
func (p *Pseudopotential) ProjectorCount() int {
	n := 0
	for _, l := range p.Ls {
		n += 2*l + 1
	}
	return n
}

// CoreRegion is the set of pseudopotentials used by one calculation,
// keyed by element symbol. Elements keeps file order.
type CoreRegion struct {
	Elements []string
	Pseudos  map[string]*Pseudopotential
}

// NewCoreRegion builds a core region from datasets in order. A repeated
// element keeps the first dataset.
func NewCoreRegion(pps ...*Pseudopotential) *CoreRegion {
	cr := &CoreRegion{Pseudos: make(map[string]*Pseudopotential, len(pps))}
	for _, pp := range pps {
		if _, ok := cr.Pseudos[pp.Element]; ok {
			continue
		}
		cr.Elements = append(cr.Elements, pp.Element)
		cr.Pseudos[pp.Element] = pp
	}
	return cr
}

// Get returns the dataset for element.
func (c *CoreRegion) Get(element string) (*Pseudopotential, bool) {
	pp, ok := c.Pseudos[element]
	return pp, ok
}

// Rmax returns the projector cut-off radius of element in Å.
func (c *CoreRegion) Rmax(element string) (float64, bool) {
	pp, ok := c.Pseudos[element]
	if !ok {
		return 0, false
	}
	return pp.Rmax, true
}
