// Package potcar parses VASP PAW pseudopotential datasets.
//
// A POTCAR file concatenates one dataset per element, each terminated by
// "End of Dataset". Every dataset is split on a fixed sequence of section
// markers; a missing marker is reported as *core.MalformedDatasetError
// naming the section.
package potcar

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

// Section markers, in the order they are consumed.
const (
	markerRadialSets      = "PAW radial sets"
	markerPseudoWave      = "pseudo wavefunction"
	markerAEWave          = "ae wavefunction"
	markerGrid            = "grid"
	markerAEPotential     = "aepotential"
	markerCoreCharge      = "core charge-density"
	markerKinetic         = "kinetic energy-density"
	markerPSPotential     = "pspotential"
	markerPSCoreCharge    = "core charge-density (pseudized)"
	markerOccupancies     = "uccopancies in atom"
	markerAugmentation    = "augmentation charges (non sperical)"
	markerNonlocal        = "Non local Part"
	markerReciprocal      = "Reciprocal Space Part"
	markerReal            = "Real Space Part"
	markerAtomicDensity   = "atomic pseudo charge-density"
	markerPartialCore     = "core charge-density (partial)"
	markerLocal           = "local part"
	markerGradCorrections = "gradient corrections used for XC"
	markerStep            = "STEP"
	markerEnd             = "END"
)

var ndataRe = regexp.MustCompile(`NDATA\s*=\s*(\d+)`)

// Parse parses a single dataset for element. data is the text of one
// dataset without its "End of Dataset" terminator.
func Parse(element, data string) (*core.Pseudopotential, error) {
	p := &parser{element: element}
	pp := &core.Pseudopotential{Element: element, Title: datasetTitle(data)}

	nonradial, radial := p.cut(data, markerRadialSets)
	p.parseRadial(pp, radial)
	p.parseNonradial(pp, nonradial)
	if p.err != nil {
		return nil, p.err
	}
	if err := validate(pp); err != nil {
		return nil, err
	}
	return pp, nil
}

// parser threads the first error through a sequence of cuts so the
// section logic reads top to bottom.
type parser struct {
	element string
	err     *core.MalformedDatasetError
}

func (p *parser) cut(s, marker string) (string, string) {
	if p.err != nil {
		return "", ""
	}
	before, after, ok := strings.Cut(s, marker)
	if !ok {
		p.err = &core.MalformedDatasetError{Element: p.element, Section: marker, Reason: "section marker not found"}
		return "", ""
	}
	return before, after
}

func (p *parser) parseRadial(pp *core.Pseudopotential, radial string) {
	if p.err != nil {
		return
	}
	parts := strings.Split(radial, markerPseudoWave)
	head, waves := parts[0], parts[1:]

	augOcc, gridStr := p.cut(head, markerGrid)
	gridStr, aePot := p.cut(gridStr, markerAEPotential)
	aePot, coreChg := p.cut(aePot, markerCoreCharge)

	var kinetic, psPot string
	if before, after, ok := strings.Cut(coreChg, markerKinetic); ok {
		coreChg = before
		kinetic, psPot = p.cut(after, markerPSPotential)
	} else {
		coreChg, psPot = p.cut(coreChg, markerPSPotential)
	}
	psPot, psCore := p.cut(psPot, markerPSCoreCharge)

	augStr, _ := p.cut(augOcc, markerOccupancies)
	_, augStr = p.cut(augStr, markerAugmentation)
	if p.err != nil {
		return
	}

	pp.Grid = numbers(gridStr)
	pp.AEPotential = numbers(aePot)
	pp.CoreCharge = numbers(coreChg)
	pp.KineticDensity = numbers(kinetic)
	pp.PSPotential = numbers(psPot)
	pp.PSCoreCharge = numbers(psCore)
	pp.Augmentation = numbers(augStr)

	for _, wave := range waves {
		ps, ae := p.cut(wave, markerAEWave)
		if p.err != nil {
			return
		}
		pp.PSWaves = append(pp.PSWaves, numbers(ps))
		pp.AEWaves = append(pp.AEWaves, numbers(ae))
	}
}

func (p *parser) parseNonradial(pp *core.Pseudopotential, nonradial string) {
	if p.err != nil {
		return
	}
	parts := strings.Split(nonradial, markerNonlocal)
	top, blocks := parts[0], parts[1:]
	if len(blocks) == 0 {
		p.err = &core.MalformedDatasetError{Element: p.element, Section: markerNonlocal, Reason: "section marker not found"}
		return
	}

	top, atomic := p.cut(top, markerAtomicDensity)
	if before, after, ok := strings.Cut(top, markerPartialCore); ok {
		top = before
		pp.PartialCoreCharge = numbers(after)
	}
	settings, local := p.cut(top, markerLocal)
	local, grad := p.cut(local, markerGradCorrections)
	if p.err != nil {
		return
	}
	pp.AtomicDensity = numbers(atomic)
	if vals := numbers(local); len(vals) > 0 {
		pp.LocalPart = vals[1:]
	}
	if f := strings.Fields(grad); len(f) > 0 {
		n, err := strconv.Atoi(f[0])
		if err != nil {
			p.err = &core.MalformedDatasetError{Element: p.element, Section: markerGradCorrections, Reason: "flag is not an integer"}
			return
		}
		pp.GradientCorrection = n
	}

	var rmaxBohr float64
	for _, block := range blocks {
		projs := strings.Split(block, markerReciprocal)
		header := numbers(projs[0])
		if len(header) < 3 {
			p.err = &core.MalformedDatasetError{Element: p.element, Section: markerNonlocal, Reason: "header needs l, count and rmax"}
			return
		}
		l, rmax := int(header[0]), header[2]
		rmaxBohr = rmax
		pp.NonlocalStrengths = append(pp.NonlocalStrengths, header[3:])
		for _, proj := range projs[1:] {
			recip, real := p.cut(proj, markerReal)
			if p.err != nil {
				return
			}
			pp.ReciprocalProjectors = append(pp.ReciprocalProjectors, numbers(recip))
			pp.RealProjectors = append(pp.RealProjectors, numbers(real))
			pp.Ls = append(pp.Ls, l)
		}
	}
	pp.Rmax = rmaxBohr * core.BohrToAngstrom

	settings, _ = p.cut(settings, markerStep)
	if p.err != nil {
		return
	}
	m := ndataRe.FindStringSubmatch(settings)
	if m == nil {
		p.err = &core.MalformedDatasetError{Element: p.element, Section: markerStep, Reason: "NDATA not found"}
		return
	}
	ndata, _ := strconv.Atoi(m[1])
	pp.ProjectorGrid = make([]float64, ndata)
	for i := range pp.ProjectorGrid {
		pp.ProjectorGrid[i] = pp.Rmax * float64(i) / float64(ndata)
	}
}

func validate(pp *core.Pseudopotential) error {
	bad := func(reason string) error {
		return &core.MalformedDatasetError{Element: pp.Element, Reason: reason}
	}
	n := len(pp.Ls)
	switch {
	case n == 0:
		return bad("no projector channels")
	case len(pp.PSWaves) != n || len(pp.AEWaves) != n:
		return bad("partial wave count does not match projector channels")
	case len(pp.RealProjectors) != n || len(pp.ReciprocalProjectors) != n:
		return bad("projector count does not match channels")
	case pp.Rmax <= 0:
		return bad("rmax must be positive")
	case len(pp.ProjectorGrid) == 0:
		return bad("empty projector grid")
	}
	for i := range pp.PSWaves {
		if len(pp.PSWaves[i]) != len(pp.Grid) || len(pp.AEWaves[i]) != len(pp.Grid) {
			return bad("partial waves are not defined on the radial grid")
		}
	}
	return nil
}

// numbers parses leading whitespace separated floats, stopping at the
// first token that is not a number. Fortran D exponents are accepted.
func numbers(s string) []float64 {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.Replace(f, "D", "E", 1), 64)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	return out
}

func datasetTitle(data string) string {
	for _, line := range strings.Split(data, "\n") {
		if _, after, ok := strings.Cut(line, "TITEL"); ok {
			return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(after), "="))
		}
	}
	for _, line := range strings.Split(data, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
