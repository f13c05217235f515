package testutil

import (
	"fmt"
	"strings"
)

// PotcarOptions controls a synthetic PAW dataset.
type PotcarOptions struct {
	Element  string
	Ls       []int
	RmaxBohr float64
	GridSize int
	NData    int
	Kinetic  bool
	// Drop omits the section with this marker text.
	Drop string
}

// PotcarDataset returns the text of one small but structurally complete
// PAW dataset, without its "End of Dataset" terminator.
func PotcarDataset(o PotcarOptions) string {
	if o.GridSize == 0 {
		o.GridSize = 4
	}
	if o.NData == 0 {
		o.NData = 10
	}
	row := func(n int, v float64) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = fmt.Sprintf("%.8E", v+float64(i))
		}
		return "  " + strings.Join(parts, " ") + "\n"
	}

	var b strings.Builder
	section := func(marker, body string) {
		if marker == o.Drop {
			return
		}
		b.WriteString(" " + marker + "\n" + body)
	}

	fmt.Fprintf(&b, "  PAW_PBE %s_d 06Jul2010\n", o.Element)
	fmt.Fprintf(&b, "   TITEL  = PAW_PBE %s_d 06Jul2010\n", o.Element)
	fmt.Fprintf(&b, "   NDATA  =    %d\n", o.NData)
	b.WriteString("   STEP   =  20.000   1.050\n   END of PSCTR-controll parameters\n")
	section("local part", "  98.0\n"+row(3, 1))
	section("gradient corrections used for XC", "     5\n")
	section("core charge-density (partial)", row(2, 0.1))
	section("atomic pseudo charge-density", row(2, 0.3))

	// one Non local Part block per distinct l, one projector per entry
	counts := map[int]int{}
	var order []int
	for _, l := range o.Ls {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}
	for _, l := range order {
		section("Non local Part", fmt.Sprintf("    %d    %d    %.8f\n", l, counts[l], o.RmaxBohr)+row(counts[l], 0.5))
		for i := 0; i < counts[l]; i++ {
			section("Reciprocal Space Part", row(5, 1))
			section("Real Space Part", row(5, 2))
		}
	}

	section("PAW radial sets", "   4   1.0\n")
	section("augmentation charges (non sperical)", row(3, 0.01))
	section("uccopancies in atom", row(2, 2))
	section("grid", row(o.GridSize, 0.001))
	section("aepotential", row(o.GridSize, -10))
	section("core charge-density", row(o.GridSize, 3))
	if o.Kinetic {
		section("kinetic energy-density", row(o.GridSize, 4))
	}
	section("pspotential", row(o.GridSize, -5))
	section("core charge-density (pseudized)", row(o.GridSize, 2))
	for range o.Ls {
		section("pseudo wavefunction", row(o.GridSize, 0.2))
		section("ae wavefunction", row(o.GridSize, 0.3))
	}
	return b.String()
}

// Potcar concatenates datasets into POTCAR file text.
func Potcar(datasets ...PotcarOptions) string {
	var b strings.Builder
	for _, d := range datasets {
		b.WriteString(PotcarDataset(d))
		b.WriteString(" End of Dataset\n")
	}
	return b.String()
}
