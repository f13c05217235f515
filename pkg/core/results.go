package core

// Proportion is the split of a basis band's weight into valence and
// conduction parts. Without spin resolution both slices have length 1,
// otherwise one entry per spin channel.
type Proportion struct {
	Valence    []float64 `json:"valence"`
	Conduction []float64 `json:"conduction"`
}

// BandAnalysis is the result for one target band of a defect analysis.
type BandAnalysis struct {
	Band       int        `json:"band"`
	Proportion Proportion `json:"proportion"`
	// Energy is the weighted mean band energy in eV, set only when
	// energies were requested.
	Energy *float64 `json:"energy,omitempty"`
}

// Calculation is everything the input provider extracts from one
// calculation directory.
type Calculation struct {
	Dir              string
	Structure        Structure
	CoreRegion       *CoreRegion
	Kpoints          KpointSet
	GridDims         [3]int
	WavefunctionPath string
}
