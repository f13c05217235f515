package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// ErrExpandedProjections is returned by CompensationTerms for a symmetry
// expanded wavefunction whose source carried projector coefficients.
var ErrExpandedProjections = errors.New("projector coefficients are not carried through symmetry expansion, use pseudo mode")

// Backend is the reference backend. It is safe for concurrent use.
type Backend struct {
	params Params
	logger *slog.Logger

	mu       sync.Mutex
	next     backend.Handle
	wfs      map[backend.Handle]*wavefunction
	lists    map[backend.Handle]*projectorList
	overlaps map[overlapKey]*overlap
}

var _ backend.Backend = (*Backend)(nil)

type wavefunction struct {
	file    *File
	weights []float64

	// projections of the source were lost in ExpandSymmetrized
	dropped bool

	// set by SetupProjections
	projectors backend.Handle
	labels     []int
}

type projectorList struct {
	pseudos []*core.Pseudopotential
	encut   float64

	once   sync.Once
	onsite []*mat.SymDense
}

type overlapKey struct {
	basis, target backend.Handle
}

// overlap is the precomputed input of CompensationTerms for one pair.
type overlap struct {
	list  *projectorList
	pairs []sitePair
}

type sitePair struct {
	basisSite, targetSite, label int
}

// New returns an empty reference backend.
func New(params Params, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{
		params:   params,
		logger:   logger,
		wfs:      make(map[backend.Handle]*wavefunction),
		lists:    make(map[backend.Handle]*projectorList),
		overlaps: make(map[overlapKey]*overlap),
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

func (b *Backend) wavefunction(h backend.Handle) (*wavefunction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.wfs[h]
	if !ok {
		return nil, fmt.Errorf("unknown wavefunction handle %d", h)
	}
	return w, nil
}

func (b *Backend) projectorList(h backend.Handle) (*projectorList, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.lists[h]
	if !ok {
		return nil, fmt.Errorf("unknown projector list handle %d", h)
	}
	return l, nil
}

func (b *Backend) addWavefunction(w *wavefunction) backend.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.wfs[b.next] = w
	return b.next
}

// ReadWavefunction reads a YAML dump. kWeights, when given, must have one
// entry per k-point; otherwise weights are uniform.
func (b *Backend) ReadWavefunction(_ context.Context, path string, kWeights []float64) (backend.Handle, error) {
	f, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	weights, err := weightsFor(len(f.Kpoints), kWeights)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	h := b.addWavefunction(&wavefunction{file: f, weights: weights})
	b.logger.Debug("read wavefunction",
		slog.String("path", path),
		slog.Int("bands", f.NumBands),
		slog.Int("kpoints", len(f.Kpoints)),
		slog.Int("spins", f.NumSpins))
	return h, nil
}

func weightsFor(nk int, kWeights []float64) ([]float64, error) {
	if kWeights == nil {
		w := make([]float64, nk)
		for i := range w {
			w[i] = 1 / float64(nk)
		}
		return w, nil
	}
	if len(kWeights) != nk {
		return nil, fmt.Errorf("%d k-point weights for %d k-points", len(kWeights), nk)
	}
	return append([]float64(nil), kWeights...), nil
}

// FreeWavefunction implements backend.Backend.
func (b *Backend) FreeWavefunction(h backend.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.wfs[h]; !ok {
		return fmt.Errorf("unknown wavefunction handle %d", h)
	}
	delete(b.wfs, h)
	for k := range b.overlaps {
		if k.basis == h || k.target == h {
			delete(b.overlaps, k)
		}
	}
	return nil
}

// Dimensions implements backend.Backend.
func (b *Backend) Dimensions(h backend.Handle) (backend.Dimensions, error) {
	w, err := b.wavefunction(h)
	if err != nil {
		return backend.Dimensions{}, err
	}
	return w.dims(), nil
}

func (w *wavefunction) dims() backend.Dimensions {
	return backend.Dimensions{NumBands: w.file.NumBands, NumKpoints: len(w.file.Kpoints), NumSpins: w.file.NumSpins}
}

// index is the position of state (band, kpoint, spin) in every per-state
// vector.
func (w *wavefunction) index(band, kpoint, spin int) int {
	d := w.dims()
	return band*d.NumSpins*d.NumKpoints + spin*d.NumKpoints + kpoint
}

// Occupations implements backend.Backend.
func (b *Backend) Occupations(h backend.Handle) ([]float64, error) {
	w, err := b.wavefunction(h)
	if err != nil {
		return nil, err
	}
	d := w.dims()
	out := make([]float64, d.States())
	for k := range w.file.Kpoints {
		for s := 0; s < d.NumSpins; s++ {
			for band := 0; band < d.NumBands; band++ {
				out[w.index(band, k, s)] = w.file.state(band, k, s).Occupation
			}
		}
	}
	return out, nil
}

// Energy implements backend.Backend.
func (b *Backend) Energy(h backend.Handle, band, kpoint, spin int) (float64, error) {
	w, err := b.wavefunction(h)
	if err != nil {
		return 0, err
	}
	d := w.dims()
	if band < 0 || band >= d.NumBands || kpoint < 0 || kpoint >= d.NumKpoints || spin < 0 || spin >= d.NumSpins {
		return 0, fmt.Errorf("state (%d, %d, %d) out of range", band, kpoint, spin)
	}
	return w.file.state(band, kpoint, spin).Energy, nil
}

// BuildProjectorList implements backend.Backend.
func (b *Backend) BuildProjectorList(_ context.Context, table backend.ProjectorTable) (backend.Handle, error) {
	for i, pp := range table.Pseudos {
		if pp == nil {
			return 0, fmt.Errorf("no dataset for element label %d", i)
		}
		if len(pp.AEWaves) != pp.Channels() || len(pp.PSWaves) != pp.Channels() {
			return 0, fmt.Errorf("dataset %s has %d channels but %d/%d partial waves", pp.Element, pp.Channels(), len(pp.AEWaves), len(pp.PSWaves))
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.lists[b.next] = &projectorList{pseudos: table.Pseudos, encut: table.GridEncut}
	return b.next, nil
}

// FreeProjectorList implements backend.Backend.
func (b *Backend) FreeProjectorList(h backend.Handle, numElements int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.lists[h]
	if !ok {
		return fmt.Errorf("unknown projector list handle %d", h)
	}
	if len(l.pseudos) != numElements {
		return fmt.Errorf("projector list %d has %d elements, freed with %d", h, len(l.pseudos), numElements)
	}
	delete(b.lists, h)
	return nil
}

// SetupProjections checks the projector coefficients carried by the dump
// against the site labels and records them for OverlapSetup.
func (b *Backend) SetupProjections(_ context.Context, req backend.ProjectionSetup) error {
	w, err := b.wavefunction(req.Wavefunction)
	if err != nil {
		return err
	}
	l, err := b.projectorList(req.Projectors)
	if err != nil {
		return err
	}
	if req.NumElements != len(l.pseudos) {
		return fmt.Errorf("%d elements given for a list of %d", req.NumElements, len(l.pseudos))
	}
	if len(req.Coords) != 3*len(req.Labels) {
		return fmt.Errorf("%d coordinates for %d sites", len(req.Coords), len(req.Labels))
	}
	for i, label := range req.Labels {
		if label < 0 || label >= len(l.pseudos) {
			return fmt.Errorf("site %d has element label %d outside [0, %d)", i, label, len(l.pseudos))
		}
	}
	for k, kp := range w.file.Kpoints {
		for i, st := range kp.States {
			if st.Projections == nil {
				continue
			}
			if len(st.Projections) != len(req.Labels) {
				return fmt.Errorf("k-point %d state %d has projections for %d sites, structure has %d", k, i, len(st.Projections), len(req.Labels))
			}
			for site, p := range st.Projections {
				if want := 2 * l.pseudos[req.Labels[site]].ProjectorCount(); len(p) != want {
					return fmt.Errorf("k-point %d state %d site %d has %d projection values, want %d", k, i, site, len(p), want)
				}
			}
		}
	}

	b.mu.Lock()
	w.projectors = req.Projectors
	w.labels = append([]int(nil), req.Labels...)
	b.mu.Unlock()
	return nil
}

// OverlapSetup pairs the sites that receive onsite corrections: matched
// sites, and overlapping N_RS pairs of the same element. One-sided N_R and
// N_S sites contribute nothing in this backend.
func (b *Backend) OverlapSetup(_ context.Context, pair backend.Pair) error {
	bw, err := b.wavefunction(pair.Basis)
	if err != nil {
		return err
	}
	tw, err := b.wavefunction(pair.Target)
	if err != nil {
		return err
	}
	l, err := b.projectorList(pair.Projectors)
	if err != nil {
		return err
	}
	b.mu.Lock()
	attached := bw.projectors == pair.Projectors && tw.projectors == pair.Projectors
	b.mu.Unlock()
	if !attached {
		return fmt.Errorf("wavefunctions are not set up against projector list %d", pair.Projectors)
	}
	if !bw.file.hasProjections() || !tw.file.hasProjections() {
		if b.params.Strict {
			return fmt.Errorf("wavefunction dump carries no projector coefficients")
		}
		if !bw.dropped && !tw.dropped {
			b.logger.Warn("wavefunction dump carries no projector coefficients, compensation terms will be zero")
		}
	}

	cat := pair.Categories
	var pairs []sitePair
	for i := range cat.MR {
		r, s := cat.MR[i], cat.MS[i]
		if pair.BasisLabels[r] != pair.TargetLabels[s] {
			return fmt.Errorf("matched sites %d and %d have different elements", r, s)
		}
		pairs = append(pairs, sitePair{basisSite: r, targetSite: s, label: pair.BasisLabels[r]})
	}
	for _, p := range cat.NRS {
		if pair.BasisLabels[p.Reference] == pair.TargetLabels[p.Subject] {
			pairs = append(pairs, sitePair{basisSite: p.Reference, targetSite: p.Subject, label: pair.BasisLabels[p.Reference]})
		}
	}
	l.once.Do(l.computeOnsite)

	b.mu.Lock()
	b.overlaps[overlapKey{pair.Basis, pair.Target}] = &overlap{list: l, pairs: pairs}
	b.mu.Unlock()
	b.logger.Debug("overlap setup", slog.Int("site_pairs", len(pairs)))
	return nil
}

func (f *File) hasProjections() bool {
	for _, kp := range f.Kpoints {
		for _, st := range kp.States {
			if st.Projections != nil {
				return true
			}
		}
	}
	return false
}

func (l *projectorList) computeOnsite() {
	l.onsite = make([]*mat.SymDense, len(l.pseudos))
	for i, pp := range l.pseudos {
		l.onsite[i] = onsiteMatrix(pp)
	}
}

// Pseudoprojection returns ⟨ψ̃_basis(b,s,k)|ψ̃_target(band,s,k)⟩ for every
// basis state, matching plane waves by G-vector.
func (b *Backend) Pseudoprojection(ctx context.Context, basis, target backend.Handle, band int) ([]float64, error) {
	bw, err := b.wavefunction(basis)
	if err != nil {
		return nil, err
	}
	tw, err := b.wavefunction(target)
	if err != nil {
		return nil, err
	}
	if err := compatible(bw, tw, band); err != nil {
		return nil, err
	}

	d := bw.dims()
	out := make([]float64, 2*d.States())
	for k := range bw.file.Kpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bk, tk := &bw.file.Kpoints[k], &tw.file.Kpoints[k]
		index := gvectorIndex(tk.GVectors)
		for s := 0; s < d.NumSpins; s++ {
			tc := tw.file.state(band, k, s).Coefficients
			for bb := 0; bb < d.NumBands; bb++ {
				v := planeWaveOverlap(bk.GVectors, bw.file.state(bb, k, s).Coefficients, index, tc)
				i := bw.index(bb, k, s)
				out[2*i], out[2*i+1] = real(v), imag(v)
			}
		}
	}
	return out, nil
}

func compatible(bw, tw *wavefunction, band int) error {
	bd, td := bw.dims(), tw.dims()
	if bd.NumKpoints != td.NumKpoints || bd.NumSpins != td.NumSpins {
		return fmt.Errorf("basis has %d k-points and %d spins, target %d and %d", bd.NumKpoints, bd.NumSpins, td.NumKpoints, td.NumSpins)
	}
	if band < 0 || band >= td.NumBands {
		return fmt.Errorf("band %d out of range for %d bands", band, td.NumBands)
	}
	return nil
}

// CompensationTerms returns Σ ⟨ψ̃_basis|p̃_i⟩ O_ij ⟨p̃_j|ψ̃_target⟩ over the
// site pairs prepared by OverlapSetup, O being the onsite partial-wave
// overlap difference of the pair's element. A symmetry expanded
// wavefunction has lost its projector coefficients, so its terms cannot be
// formed and the call fails instead of returning zeros.
func (b *Backend) CompensationTerms(ctx context.Context, pair backend.Pair, band int) ([]float64, error) {
	bw, err := b.wavefunction(pair.Basis)
	if err != nil {
		return nil, err
	}
	tw, err := b.wavefunction(pair.Target)
	if err != nil {
		return nil, err
	}
	if bw.dropped || tw.dropped {
		return nil, ErrExpandedProjections
	}
	if err := compatible(bw, tw, band); err != nil {
		return nil, err
	}
	b.mu.Lock()
	ov, ok := b.overlaps[overlapKey{pair.Basis, pair.Target}]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("overlap setup missing for wavefunctions %d and %d", pair.Basis, pair.Target)
	}

	d := bw.dims()
	out := make([]float64, 2*d.States())
	for k := range bw.file.Kpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for s := 0; s < d.NumSpins; s++ {
			tp := tw.file.state(band, k, s).Projections
			if tp == nil {
				continue
			}
			for bb := 0; bb < d.NumBands; bb++ {
				bp := bw.file.state(bb, k, s).Projections
				if bp == nil {
					continue
				}
				var sum complex128
				for _, p := range ov.pairs {
					sum += sandwich(bp[p.basisSite], ov.list.onsite[p.label], tp[p.targetSite])
				}
				i := bw.index(bb, k, s)
				out[2*i], out[2*i+1] = real(sum), imag(sum)
			}
		}
	}
	return out, nil
}

// ExpandSymmetrized builds a wavefunction over req.Kpoints. Output k-point
// i is source k-point SourceIndex[i] rotated by operation OpIndex[i]. With
// R = (W⁻¹)ᵀ the reciprocal form of the rotation, every coefficient c(G)
// moves to R(k+G) - k_i with the phase exp(-2πi R(k+G)·t), and is
// conjugated under time reversal.
//
// Projector coefficients are not carried over: that needs the site
// permutation of every operation and the rotation of each l channel. Pseudo
// projections of the result work; CompensationTerms on it returns
// ErrExpandedProjections.
func (b *Backend) ExpandSymmetrized(ctx context.Context, req backend.SymmetryExpansion) (backend.Handle, error) {
	src, err := b.wavefunction(req.Wavefunction)
	if err != nil {
		return 0, err
	}
	n := req.Kpoints.Len()
	if len(req.SourceIndex) != n || len(req.OpIndex) != n || len(req.TimeReversal) != n {
		return 0, fmt.Errorf("expansion to %d k-points has %d sources, %d operations and %d time-reversal flags",
			n, len(req.SourceIndex), len(req.OpIndex), len(req.TimeReversal))
	}
	weights, err := weightsFor(n, req.Kpoints.Weights)
	if err != nil {
		return 0, err
	}

	out := &File{NumBands: src.file.NumBands, NumSpins: src.file.NumSpins, Volume: src.file.Volume, Kpoints: make([]Kpoint, n)}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		si, op := req.SourceIndex[i], req.OpIndex[i]
		if si < 0 || si >= len(src.file.Kpoints) {
			return 0, fmt.Errorf("k-point %d has source %d outside [0, %d)", i, si, len(src.file.Kpoints))
		}
		if op < 0 || 9*op+9 > len(req.Rotations) || 3*op+3 > len(req.Translations) {
			return 0, fmt.Errorf("k-point %d uses operation %d, only %d given", i, op, len(req.Rotations)/9)
		}
		rot, err := reciprocalRotation(req.Rotations[9*op : 9*op+9])
		if err != nil {
			return 0, fmt.Errorf("operation %d: %w", op, err)
		}
		out.Kpoints[i] = rotateKpoint(&src.file.Kpoints[si], req.Kpoints.Points[i],
			rot, req.Translations[3*op:3*op+3], req.TimeReversal[i])
	}
	if err := out.Validate(); err != nil {
		return 0, err
	}
	return b.addWavefunction(&wavefunction{file: out, weights: weights, dropped: src.dropped || src.file.hasProjections()}), nil
}

// reciprocalRotation returns (W⁻¹)ᵀ row-major for the real-space rotation
// W, the matrix that moves fractional k-points and G-vectors.
func reciprocalRotation(w []float64) ([]float64, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, w)); err != nil {
		return nil, fmt.Errorf("singular rotation: %w", err)
	}
	out := make([]float64, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[3*r+c] = inv.At(c, r)
		}
	}
	return out, nil
}

func rotateKpoint(src *Kpoint, target core.Kpoint, rot, trans []float64, timeReversal bool) Kpoint {
	out := Kpoint{
		K:        target,
		GVectors: make([][3]int, len(src.GVectors)),
		States:   make([]State, len(src.States)),
	}
	phases := make([]complex128, len(src.GVectors))
	for g, gv := range src.GVectors {
		var q core.Vec3
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				q[r] += rot[3*r+c] * (src.K[c] + float64(gv[c]))
			}
		}
		phases[g] = cmplxExp(-2 * math.Pi * (q[0]*trans[0] + q[1]*trans[1] + q[2]*trans[2]))
		if timeReversal {
			q = core.Vec3{-q[0], -q[1], -q[2]}
		}
		for c := 0; c < 3; c++ {
			out.GVectors[g][c] = int(math.Round(q[c] - target[c]))
		}
	}
	for i, st := range src.States {
		coeffs := make([]float64, len(st.Coefficients))
		for g, ph := range phases {
			v := complex(st.Coefficients[2*g], st.Coefficients[2*g+1]) * ph
			if timeReversal {
				v = complex(real(v), -imag(v))
			}
			coeffs[2*g], coeffs[2*g+1] = real(v), imag(v)
		}
		out.States[i] = State{Occupation: st.Occupation, Energy: st.Energy, Coefficients: coeffs}
	}
	return out
}

// RealspaceState evaluates ψ̃(r) = Σ_G c(G) exp(2πi(k+G)·r) on the grid
// by direct summation. Real parts come first, then imaginary parts.
func (b *Backend) RealspaceState(ctx context.Context, req backend.RealspaceRequest) ([]float64, error) {
	w, err := b.wavefunction(req.Wavefunction)
	if err != nil {
		return nil, err
	}
	if _, err := b.projectorList(req.Projectors); err != nil {
		return nil, err
	}
	d := w.dims()
	if req.Band < 0 || req.Band >= d.NumBands || req.Kpoint < 0 || req.Kpoint >= d.NumKpoints || req.Spin < 0 || req.Spin >= d.NumSpins {
		return nil, fmt.Errorf("state (%d, %d, %d) out of range", req.Band, req.Kpoint, req.Spin)
	}
	scale, err := b.scale(w)
	if err != nil {
		return nil, err
	}

	kp := &w.file.Kpoints[req.Kpoint]
	psi, err := evaluate(ctx, kp, w.file.state(req.Band, req.Kpoint, req.Spin).Coefficients, req.GridDims)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 2*len(psi))
	for i, v := range psi {
		out[i] = real(v) * scale
		out[len(psi)+i] = imag(v) * scale
	}
	return out, nil
}

func (b *Backend) scale(w *wavefunction) (float64, error) {
	if !b.params.Normalize {
		return 1, nil
	}
	if w.file.Volume <= 0 {
		return 0, fmt.Errorf("normalization needs the cell volume in the wavefunction dump")
	}
	return 1 / math.Sqrt(w.file.Volume), nil
}

// Density returns Σ occ·w_k·|ψ̃|² over every state.
func (b *Backend) Density(ctx context.Context, wf, projectors backend.Handle, dims [3]int) ([]float64, error) {
	w, err := b.wavefunction(wf)
	if err != nil {
		return nil, err
	}
	if _, err := b.projectorList(projectors); err != nil {
		return nil, err
	}
	scale, err := b.scale(w)
	if err != nil {
		return nil, err
	}

	out := make([]float64, dims[0]*dims[1]*dims[2])
	d := w.dims()
	for k := range w.file.Kpoints {
		kp := &w.file.Kpoints[k]
		for s := 0; s < d.NumSpins; s++ {
			for band := 0; band < d.NumBands; band++ {
				st := w.file.state(band, k, s)
				if st.Occupation == 0 {
					continue
				}
				psi, err := evaluate(ctx, kp, st.Coefficients, dims)
				if err != nil {
					return nil, err
				}
				f := st.Occupation * w.weights[k] * scale * scale
				for i, v := range psi {
					out[i] += f * (real(v)*real(v) + imag(v)*imag(v))
				}
			}
		}
	}
	return out, nil
}
