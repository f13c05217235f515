// Package sites pairs up the atoms of two structures that share a lattice.
package sites

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

// MatchTolerance is the largest distance in Å at which a reference site
// and a subject site of the same element are the same atom.
const MatchTolerance = 0.02

// RmaxSource looks up the projector cut-off radius of an element in Å.
type RmaxSource interface {
	Rmax(element string) (float64, bool)
}

// Tie records a reference site with more than one subject site within
// MatchTolerance. Only Chosen was paired.
type Tie struct {
	Reference int
	Chosen    int
	Ignored   []int
}

// Result is the outcome of Classify.
type Result struct {
	Categories core.SiteCategories
	Ties       []Tie
}

// Classify partitions the sites of reference R and subject S. Distances
// use the minimum image convention in the reference lattice. Each
// reference site is paired with the first unpaired subject site of the
// same element within MatchTolerance; other candidates are reported as
// ties and logged as warnings.
func Classify(ref, subj core.Structure, rmax RmaxSource, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	lat := ref.Lattice

	res := &Result{}
	cat := &res.Categories
	paired := make([]bool, subj.Len())

	for i, rs := range ref.Sites {
		chosen := -1
		var ignored []int
		for j, ss := range subj.Sites {
			if paired[j] || rs.Element != ss.Element {
				continue
			}
			if lat.Distance(rs.Frac, ss.Frac) > MatchTolerance {
				continue
			}
			if chosen < 0 {
				chosen = j
			} else {
				ignored = append(ignored, j)
			}
		}
		if chosen < 0 {
			continue
		}
		paired[chosen] = true
		cat.MR = append(cat.MR, i)
		cat.MS = append(cat.MS, chosen)
		if len(ignored) > 0 {
			res.Ties = append(res.Ties, Tie{Reference: i, Chosen: chosen, Ignored: ignored})
			logger.Warn("reference site matches several subject sites",
				slog.Int("reference", i),
				slog.Int("chosen", chosen),
				slog.Any("ignored", ignored))
		}
	}

	for i := range ref.Sites {
		if !slices.Contains(cat.MR, i) {
			cat.NR = append(cat.NR, i)
		}
	}
	for j := range subj.Sites {
		if !paired[j] {
			cat.NS = append(cat.NS, j)
		}
	}

	for _, i := range cat.NR {
		ri, err := lookup(rmax, ref.Sites[i].Element)
		if err != nil {
			return nil, err
		}
		for _, j := range cat.NS {
			rj, err := lookup(rmax, subj.Sites[j].Element)
			if err != nil {
				return nil, err
			}
			if lat.Distance(ref.Sites[i].Frac, subj.Sites[j].Frac) < ri+rj {
				cat.NRS = append(cat.NRS, core.SitePair{Reference: i, Subject: j})
			}
		}
	}

	logger.Debug("classified sites",
		slog.Int("matched", len(cat.MR)),
		slog.Int("unmatched_reference", len(cat.NR)),
		slog.Int("unmatched_subject", len(cat.NS)),
		slog.Int("overlapping_pairs", len(cat.NRS)))
	return res, nil
}

func lookup(src RmaxSource, element string) (float64, error) {
	r, ok := src.Rmax(element)
	if !ok {
		return 0, &core.MalformedDatasetError{Element: element, Reason: "no pseudopotential for element"}
	}
	return r, nil
}

// Union merges the core regions of two calculations for rmax lookups,
// preferring the first.
type Union []*core.CoreRegion

// Rmax implements RmaxSource.
func (u Union) Rmax(element string) (float64, bool) {
	for _, cr := range u {
		if cr == nil {
			continue
		}
		if r, ok := cr.Rmax(element); ok {
			return r, true
		}
	}
	return 0, false
}

func (t Tie) String() string {
	return fmt.Sprintf("reference %d paired with %d, ignored %v", t.Reference, t.Chosen, t.Ignored)
}
