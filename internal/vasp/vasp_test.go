package vasp

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/pawseed/internal/testutil"
	"github.com/leapstack-labs/pawseed/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gaAsPoscar = `GaAs
   1.00000000000000
     5.6500000000000000    0.0000000000000000    0.0000000000000000
     0.0000000000000000    5.6500000000000000    0.0000000000000000
     0.0000000000000000    0.0000000000000000    5.6500000000000000
   Ga   As
     1     1
Direct
  0.0000000000000000  0.0000000000000000  0.0000000000000000
  0.2500000000000000  0.2500000000000000  0.2500000000000000
`

const vasprunXML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<modeling>
 <generator><i name="program" type="string">vasp </i></generator>
 <kpoints>
  <generation param="Monkhorst-Pack"><v type="int" name="divisions">2 1 1 </v></generation>
  <varray name="kpointlist" >
   <v>       0.00000000       0.00000000       0.00000000 </v>
   <v>       0.50000000       0.00000000       0.00000000 </v>
  </varray>
  <varray name="weights" >
   <v>       0.50000000 </v>
   <v>       0.50000000 </v>
  </varray>
 </kpoints>
</modeling>
`

const outcarText = `
 Dimension of arrays:
   dimension x,y,z NGX =    30 NGY =   30 NGZ =   30
   dimension x,y,z NGXF=    60 NGYF=   60 NGZF=   48
`

func TestReadPoscar(t *testing.T) {
	s, err := ReadPoscar(strings.NewReader(gaAsPoscar))
	require.NoError(t, err)

	require.Equal(t, 2, s.Len())
	assert.Equal(t, "Ga", s.Sites[0].Element)
	assert.Equal(t, "As", s.Sites[1].Element)
	assert.InDelta(t, 5.65, s.Lattice[1][1], 1e-12)
	assert.InDelta(t, 0.25, s.Sites[1].Frac[2], 1e-12)
}

func TestReadPoscar_CartesianAndSelective(t *testing.T) {
	text := `cart
  2.0
  1.0 0.0 0.0
  0.0 1.0 0.0
  0.0 0.0 1.0
  Si
  1
Selective dynamics
Cartesian
  0.5 0.5 0.5 T T T
`
	s, err := ReadPoscar(strings.NewReader(text))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, s.Lattice[0][0], 1e-12)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0.5, s.Sites[0].Frac[i], 1e-12)
	}
}

func TestReadPoscar_NegativeScaleIsVolume(t *testing.T) {
	text := strings.Replace(gaAsPoscar, "   1.00000000000000", "  -8.0", 1)
	text = strings.ReplaceAll(text, "5.6500000000000000", "1.0000000000000000")
	s, err := ReadPoscar(strings.NewReader(text))
	require.NoError(t, err)
	assert.InDelta(t, 8.0, s.Lattice.Volume(), 1e-9)
}

func TestReadPoscar_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "too short", text: "x\n1\n"},
		{name: "count mismatch", text: strings.Replace(gaAsPoscar, "     1     1", "     1", 1)},
		{name: "missing coordinates", text: strings.Replace(gaAsPoscar, "  0.2500000000000000  0.2500000000000000  0.2500000000000000\n", "", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPoscar(strings.NewReader(tt.text))
			assert.Error(t, err)
		})
	}
}

func TestReadKpoints(t *testing.T) {
	k, err := ReadKpoints(strings.NewReader(vasprunXML))
	require.NoError(t, err)
	assert.Equal(t, []core.Kpoint{{0, 0, 0}, {0.5, 0, 0}}, k.Points)
	assert.Equal(t, []float64{0.5, 0.5}, k.Weights)

	_, err = ReadKpoints(strings.NewReader("<modeling></modeling>"))
	assert.Error(t, err)
}

func TestReadKpoints_Latin1(t *testing.T) {
	// 0xc5 is Å in ISO-8859-1 and not valid UTF-8 on its own
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<modeling>\n" +
		" <generator><i name=\"program\" type=\"string\">vasp \xc5</i></generator>\n" +
		" <kpoints>\n" +
		"  <varray name=\"kpointlist\" >\n" +
		"   <v>       0.25000000       0.00000000       0.00000000 </v>\n" +
		"  </varray>\n" +
		"  <varray name=\"weights\" >\n" +
		"   <v>       1.00000000 </v>\n" +
		"  </varray>\n" +
		" </kpoints>\n" +
		"</modeling>\n"

	k, err := ReadKpoints(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []core.Kpoint{{0.25, 0, 0}}, k.Points)
	assert.Equal(t, []float64{1}, k.Weights)

	_, err = ReadKpoints(strings.NewReader(`<?xml version="1.0" encoding="x-no-such-charset"?><modeling/>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported vasprun encoding")
}

func TestReadGridDims(t *testing.T) {
	dims, err := ReadGridDims(strings.NewReader(outcarText))
	require.NoError(t, err)
	assert.Equal(t, [3]int{30, 30, 24}, dims)

	_, err = ReadGridDims(strings.NewReader("nothing here"))
	assert.Error(t, err)
}

func TestWriteVolumetric(t *testing.T) {
	s, err := ReadPoscar(strings.NewReader(gaAsPoscar))
	require.NoError(t, err)

	var buf bytes.Buffer
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, WriteVolumetric(&buf, "PYAECCAR", s, [3]int{2, 2, 2}, data))

	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "PYAECCAR", lines[0])
	assert.Equal(t, "   1.00000000000000", lines[1])
	assert.Equal(t, "     5.650000    0.000000    0.000000", lines[2])
	assert.Equal(t, "   Ga   As", lines[5])
	assert.Equal(t, "     1     1", lines[6])
	assert.Equal(t, "Direct", lines[7])
	assert.Equal(t, "  0.250000  0.250000  0.250000", lines[9])
	assert.Equal(t, " ", lines[10])
	assert.Equal(t, "2 2 2", lines[11])
	assert.Len(t, strings.Fields(lines[12]), 5)
	assert.Len(t, strings.Fields(lines[13]), 3)

	err = WriteVolumetric(&buf, "x", s, [3]int{3, 1, 1}, data)
	var dme *core.DimensionMismatchError
	assert.ErrorAs(t, err, &dme)
}

func TestDirectoryProvider_Load(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		StructureFile:    gaAsPoscar,
		WavefunctionFile: "",
		PotcarFile: testutil.Potcar(
			testutil.PotcarOptions{Element: "Ga", Ls: []int{0, 1}, RmaxBohr: 2.2},
			testutil.PotcarOptions{Element: "As", Ls: []int{0, 1}, RmaxBohr: 2.0},
		),
		VasprunFile: vasprunXML,
		OutcarFile:  outcarText,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	calc, err := DirectoryProvider{Logger: testutil.NewTestLogger(t)}.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, calc.Dir)
	assert.Equal(t, 2, calc.Structure.Len())
	assert.Equal(t, []string{"Ga", "As"}, calc.CoreRegion.Elements)
	assert.Equal(t, 2, calc.Kpoints.Len())
	assert.Equal(t, [3]int{30, 30, 24}, calc.GridDims)
	assert.Equal(t, filepath.Join(dir, WavefunctionFile), calc.WavefunctionPath)
}

func TestDirectoryProvider_MissingFile(t *testing.T) {
	_, err := DirectoryProvider{}.Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), StructureFile)
}
