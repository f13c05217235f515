package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/leapstack-labs/pawseed/pkg/backend"
)

// FakeWavefunction is the data a FakeBackend serves for one path.
// Occupations and Energies are indexed band-major, then spin, then k-point.
type FakeWavefunction struct {
	Dims        backend.Dimensions
	Occupations []float64
	Energies    []float64
}

// FakeBackend is an in-memory backend.Backend that records calls and
// tracks live handles. Pseudo and Compensation default to an identity
// overlap: target band b overlaps basis band b with 1 at every k-point.
type FakeBackend struct {
	Files        map[string]*FakeWavefunction
	Pseudo       func(basis, target *FakeWavefunction, band int) []float64
	Compensation func(pair backend.Pair, band int) []float64
	// Fail makes the named operation return an error.
	Fail map[string]error

	mu    sync.Mutex
	next  backend.Handle
	wfs   map[backend.Handle]*FakeWavefunction
	lists map[backend.Handle]int
	calls []string
}

var _ backend.Backend = (*FakeBackend)(nil)

// NewFakeBackend returns a backend serving files.
func NewFakeBackend(files map[string]*FakeWavefunction) *FakeBackend {
	return &FakeBackend{
		Files: files,
		Fail:  map[string]error{},
		wfs:   map[backend.Handle]*FakeWavefunction{},
		lists: map[backend.Handle]int{},
	}
}

// FakeFile builds a wavefunction whose lowest valence bands are fully
// occupied, with energy b + 0.1*k + 0.01*s for state (b, k, s).
func FakeFile(nband, nwk, nspin, valence int) *FakeWavefunction {
	f := &FakeWavefunction{Dims: backend.Dimensions{NumBands: nband, NumKpoints: nwk, NumSpins: nspin}}
	for b := 0; b < nband; b++ {
		for s := 0; s < nspin; s++ {
			for k := 0; k < nwk; k++ {
				occ := 0.0
				if b < valence {
					occ = 1
				}
				f.Occupations = append(f.Occupations, occ)
				f.Energies = append(f.Energies, float64(b)+0.1*float64(k)+0.01*float64(s))
			}
		}
	}
	return f
}

func (f *FakeBackend) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if err, ok := f.Fail[op]; ok {
		return err
	}
	return nil
}

func (f *FakeBackend) wf(h backend.Handle) (*FakeWavefunction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wfs[h]
	if !ok {
		return nil, fmt.Errorf("unknown wavefunction handle %d", h)
	}
	return w, nil
}

func (f *FakeBackend) add(w *FakeWavefunction) backend.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.wfs[f.next] = w
	return f.next
}

// Calls returns the recorded operation names in order.
func (f *FakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times op was called.
func (f *FakeBackend) CallCount(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// LiveWavefunctions returns the number of unreleased wavefunction handles.
func (f *FakeBackend) LiveWavefunctions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.wfs)
}

// LiveLists returns the number of unreleased projector lists.
func (f *FakeBackend) LiveLists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists)
}

func (f *FakeBackend) Name() string { return "fake" }

func (f *FakeBackend) ReadWavefunction(_ context.Context, path string, _ []float64) (backend.Handle, error) {
	if err := f.record("ReadWavefunction"); err != nil {
		return 0, err
	}
	w, ok := f.Files[path]
	if !ok {
		return 0, fmt.Errorf("no such wavefunction %s", path)
	}
	return f.add(w), nil
}

func (f *FakeBackend) FreeWavefunction(h backend.Handle) error {
	if err := f.record("FreeWavefunction"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.wfs[h]; !ok {
		return fmt.Errorf("double free of wavefunction %d", h)
	}
	delete(f.wfs, h)
	return nil
}

func (f *FakeBackend) Dimensions(h backend.Handle) (backend.Dimensions, error) {
	w, err := f.wf(h)
	if err != nil {
		return backend.Dimensions{}, err
	}
	return w.Dims, nil
}

func (f *FakeBackend) Occupations(h backend.Handle) ([]float64, error) {
	w, err := f.wf(h)
	if err != nil {
		return nil, err
	}
	return w.Occupations, nil
}

func (f *FakeBackend) Energy(h backend.Handle, band, kpoint, spin int) (float64, error) {
	w, err := f.wf(h)
	if err != nil {
		return 0, err
	}
	d := w.Dims
	return w.Energies[band*d.NumSpins*d.NumKpoints+spin*d.NumKpoints+kpoint], nil
}

func (f *FakeBackend) BuildProjectorList(_ context.Context, table backend.ProjectorTable) (backend.Handle, error) {
	if err := f.record("BuildProjectorList"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.lists[f.next] = len(table.Pseudos)
	return f.next, nil
}

func (f *FakeBackend) FreeProjectorList(h backend.Handle, numElements int) error {
	if err := f.record("FreeProjectorList"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.lists[h]
	if !ok {
		return fmt.Errorf("double free of projector list %d", h)
	}
	if n != numElements {
		return fmt.Errorf("projector list %d has %d elements, freed with %d", h, n, numElements)
	}
	delete(f.lists, h)
	return nil
}

func (f *FakeBackend) SetupProjections(_ context.Context, req backend.ProjectionSetup) error {
	if err := f.record("SetupProjections"); err != nil {
		return err
	}
	if _, err := f.wf(req.Wavefunction); err != nil {
		return err
	}
	if len(req.Coords) != 3*len(req.Labels) {
		return fmt.Errorf("%d coords for %d sites", len(req.Coords), len(req.Labels))
	}
	return nil
}

func (f *FakeBackend) OverlapSetup(_ context.Context, pair backend.Pair) error {
	return f.record("OverlapSetup")
}

func (f *FakeBackend) Pseudoprojection(_ context.Context, basis, target backend.Handle, band int) ([]float64, error) {
	if err := f.record("Pseudoprojection"); err != nil {
		return nil, err
	}
	bw, err := f.wf(basis)
	if err != nil {
		return nil, err
	}
	tw, err := f.wf(target)
	if err != nil {
		return nil, err
	}
	if f.Pseudo != nil {
		return f.Pseudo(bw, tw, band), nil
	}
	d := bw.Dims
	out := make([]float64, 2*d.States())
	nk := d.NumKpoints * d.NumSpins
	for kpt := 0; kpt < nk; kpt++ {
		if band < d.NumBands {
			out[2*(band*nk+kpt)] = 1
		}
	}
	return out, nil
}

func (f *FakeBackend) CompensationTerms(_ context.Context, pair backend.Pair, band int) ([]float64, error) {
	if err := f.record("CompensationTerms"); err != nil {
		return nil, err
	}
	bw, err := f.wf(pair.Basis)
	if err != nil {
		return nil, err
	}
	if f.Compensation != nil {
		return f.Compensation(pair, band), nil
	}
	return make([]float64, 2*bw.Dims.States()), nil
}

func (f *FakeBackend) ExpandSymmetrized(_ context.Context, req backend.SymmetryExpansion) (backend.Handle, error) {
	if err := f.record("ExpandSymmetrized"); err != nil {
		return 0, err
	}
	src, err := f.wf(req.Wavefunction)
	if err != nil {
		return 0, err
	}
	sd := src.Dims
	nwk := len(req.SourceIndex)
	out := &FakeWavefunction{Dims: backend.Dimensions{NumBands: sd.NumBands, NumKpoints: nwk, NumSpins: sd.NumSpins}}
	for b := 0; b < sd.NumBands; b++ {
		for s := 0; s < sd.NumSpins; s++ {
			for _, k := range req.SourceIndex {
				i := b*sd.NumSpins*sd.NumKpoints + s*sd.NumKpoints + k
				out.Occupations = append(out.Occupations, src.Occupations[i])
				out.Energies = append(out.Energies, src.Energies[i])
			}
		}
	}
	return f.add(out), nil
}

func (f *FakeBackend) RealspaceState(_ context.Context, req backend.RealspaceRequest) ([]float64, error) {
	if err := f.record("RealspaceState"); err != nil {
		return nil, err
	}
	n := req.GridDims[0] * req.GridDims[1] * req.GridDims[2]
	out := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		out[i] = float64(req.Band + 1)
	}
	return out, nil
}

func (f *FakeBackend) Density(_ context.Context, _, _ backend.Handle, dims [3]int) ([]float64, error) {
	if err := f.record("Density"); err != nil {
		return nil, err
	}
	out := make([]float64, dims[0]*dims[1]*dims[2])
	for i := range out {
		out[i] = 1
	}
	return out, nil
}
