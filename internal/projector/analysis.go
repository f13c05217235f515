package projector

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

// OccupiedThreshold separates occupied (valence) from empty (conduction)
// states.
const OccupiedThreshold = 0.5

// ProportionConduction splits the weight of target band over occupied and
// empty basis states: each basis state (b, s, k) contributes
// |overlap|²·w_k to the valence part if its occupation exceeds
// OccupiedThreshold and to the conduction part otherwise. Without spin
// resolution the sums are divided by the spin count. Pseudo sessions
// normalize each (valence, conduction) pair to sum to 1 and fail with
// *core.ZeroOverlapError when a pair sums to 0.
func (p *Projector) ProportionConduction(ctx context.Context, band int, spinResolved bool) (core.Proportion, error) {
	res, err := p.SingleBandProjection(ctx, band)
	if err != nil {
		return core.Proportion{}, err
	}
	occs, err := p.basis.Occupations()
	if err != nil {
		return core.Proportion{}, err
	}

	d := p.basis.dims
	kws := p.target.Kpoints().Weights
	n := 1
	if spinResolved {
		n = d.NumSpins
	}
	v, c := make([]float64, n), make([]float64, n)

	for b := 0; b < d.NumBands; b++ {
		for s := 0; s < d.NumSpins; s++ {
			slot := 0
			if spinResolved {
				slot = s
			}
			for k := 0; k < d.NumKpoints; k++ {
				i := b*d.NumSpins*d.NumKpoints + s*d.NumKpoints + k
				w := real(res[i])*real(res[i]) + imag(res[i])*imag(res[i])
				w *= kws[i%d.NumKpoints]
				if occs[i] > OccupiedThreshold {
					v[slot] += w
				} else {
					c[slot] += w
				}
			}
		}
	}

	if !spinResolved {
		v[0] /= float64(d.NumSpins)
		c[0] /= float64(d.NumSpins)
	}
	if p.mode == core.ModePseudo {
		for i := range v {
			t := v[i] + c[i]
			if t == 0 {
				spin := -1
				if spinResolved {
					spin = i
				}
				return core.Proportion{}, &core.ZeroOverlapError{Band: band, Spin: spin}
			}
			v[i] /= t
			c[i] /= t
		}
	}
	return core.Proportion{Valence: v, Conduction: c}, nil
}

// DefectOptions select the band window of DefectBandAnalysis.
type DefectOptions struct {
	// Below and Above count bands below and above the highest occupied
	// target band.
	Below int
	Above int

	SpinResolved bool
	Energies     bool
}

// ValenceBandMaximum returns the highest target band whose first state is
// occupied, or 0 when none is.
func (p *Projector) ValenceBandMaximum() (int, error) {
	occs, err := p.target.Occupations()
	if err != nil {
		return 0, err
	}
	d := p.target.dims
	vbm := 0
	for b := 0; b < d.NumBands; b++ {
		if occs[b*d.NumKpoints*d.NumSpins] > OccupiedThreshold {
			vbm = b
		}
	}
	return vbm, nil
}

// DefectBandAnalysis runs ProportionConduction for every target band in
// [vbm-Below, vbm+Above], in increasing band order. With Energies set each
// result also carries the k-weighted mean energy of the band,
// Σ E(b,k,s)·w_k / (Σ w_k · nspin).
func (p *Projector) DefectBandAnalysis(ctx context.Context, opts DefectOptions) ([]core.BandAnalysis, error) {
	if err := p.requireReady("analyze defect bands"); err != nil {
		return nil, err
	}
	vbm, err := p.ValenceBandMaximum()
	if err != nil {
		return nil, err
	}
	lo, hi := vbm-opts.Below, vbm+opts.Above
	nband := p.basis.dims.NumBands
	if lo < 0 || hi >= nband || lo > hi {
		return nil, &core.WindowOutOfRangeError{Min: lo, Max: hi, NumBands: nband}
	}

	p.logger.Info("analyzing defect bands",
		slog.Int("vbm", vbm),
		slog.Int("min_band", lo),
		slog.Int("max_band", hi))

	out := make([]core.BandAnalysis, 0, hi-lo+1)
	for b := lo; b <= hi; b++ {
		prop, err := p.ProportionConduction(ctx, b, opts.SpinResolved)
		if err != nil {
			return nil, err
		}
		res := core.BandAnalysis{Band: b, Proportion: prop}
		if opts.Energies {
			e, err := p.bandEnergy(b)
			if err != nil {
				return nil, err
			}
			res.Energy = &e
		}
		out = append(out, res)
	}
	return out, nil
}

func (p *Projector) bandEnergy(band int) (float64, error) {
	d := p.target.dims
	kws := p.target.Kpoints().Weights
	var sum, wsum float64
	for k := 0; k < d.NumKpoints; k++ {
		for s := 0; s < d.NumSpins; s++ {
			e, err := p.target.Energy(band, k, s)
			if err != nil {
				return 0, err
			}
			sum += e * kws[k]
		}
		wsum += kws[k]
	}
	return sum / (wsum * float64(d.NumSpins)), nil
}
