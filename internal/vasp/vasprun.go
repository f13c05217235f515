package vasp

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/pawseed/pkg/core"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

type vasprunDoc struct {
	Kpoints struct {
		Arrays []varray `xml:"varray"`
	} `xml:"kpoints"`
}

type varray struct {
	Name string   `xml:"name,attr"`
	V    []string `xml:"v"`
}

// ReadKpointsFile reads the k-point list and weights of a vasprun.xml file.
func ReadKpointsFile(path string) (core.KpointSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.KpointSet{}, fmt.Errorf("failed to open vasprun: %w", err)
	}
	defer f.Close()

	k, err := ReadKpoints(f)
	if err != nil {
		return core.KpointSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

// charsetReader decodes the declared encoding of vasprun.xml, which VASP
// writes as ISO-8859-1.
func charsetReader(label string, in io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(in), nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported vasprun encoding %q", label)
	}
	return enc.NewDecoder().Reader(in), nil
}

// ReadKpoints decodes the <kpoints> block of vasprun.xml.
func ReadKpoints(r io.Reader) (core.KpointSet, error) {
	var doc vasprunDoc
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&doc); err != nil {
		return core.KpointSet{}, fmt.Errorf("failed to decode vasprun: %w", err)
	}

	var set core.KpointSet
	for _, arr := range doc.Kpoints.Arrays {
		switch arr.Name {
		case "kpointlist":
			for _, v := range arr.V {
				f, err := parseFloats(v, 3)
				if err != nil {
					return core.KpointSet{}, fmt.Errorf("kpointlist: %w", err)
				}
				set.Points = append(set.Points, core.Kpoint{f[0], f[1], f[2]})
			}
		case "weights":
			for _, v := range arr.V {
				f, err := parseFloats(v, 1)
				if err != nil {
					return core.KpointSet{}, fmt.Errorf("weights: %w", err)
				}
				set.Weights = append(set.Weights, f[0])
			}
		}
	}
	if set.Len() == 0 {
		return core.KpointSet{}, fmt.Errorf("vasprun has no kpointlist")
	}
	if len(set.Weights) != set.Len() {
		return core.KpointSet{}, fmt.Errorf("vasprun lists %d k-points but %d weights", set.Len(), len(set.Weights))
	}
	return set, nil
}
