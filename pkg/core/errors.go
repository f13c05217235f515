package core

import (
	"fmt"
	"strings"
)

// MalformedDatasetError is returned when a pseudopotential dataset is
// missing a required section or fails a consistency check.
type MalformedDatasetError struct {
	Element string
	Section string
	Reason  string
}

func (e *MalformedDatasetError) Error() string {
	var b strings.Builder
	b.WriteString("malformed pseudopotential dataset")
	if e.Element != "" {
		fmt.Fprintf(&b, " for %s", e.Element)
	}
	if e.Section != "" {
		fmt.Fprintf(&b, ": section %q", e.Section)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

// UnmappableKpointError is returned when a target k-point is not the
// image of any source k-point under the structure's operations.
type UnmappableKpointError struct {
	Index  int
	Kpoint Kpoint
}

func (e *UnmappableKpointError) Error() string {
	return fmt.Sprintf("could not find a symmetry mapping for k-point %d (%.6f, %.6f, %.6f)",
		e.Index, e.Kpoint[0], e.Kpoint[1], e.Kpoint[2])
}

// DimensionMismatchError is returned when two calculations disagree on a
// quantity that must match, such as k-point grids or weights.
type DimensionMismatchError struct {
	Quantity  string
	Norm      float64
	Tolerance float64
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s do not match between basis and target (difference norm %g > %g)",
		e.Quantity, e.Norm, e.Tolerance)
}

// WindowOutOfRangeError is returned when a band index or band window
// lies outside [0, NumBands).
type WindowOutOfRangeError struct {
	Min      int
	Max      int
	NumBands int
}

func (e *WindowOutOfRangeError) Error() string {
	if e.Min == e.Max {
		return fmt.Sprintf("band %d is out of range for %d bands", e.Min, e.NumBands)
	}
	return fmt.Sprintf("band window [%d, %d] is out of range for %d bands", e.Min, e.Max, e.NumBands)
}

// ZeroOverlapError is returned when a pseudo projection of a band has no
// weight on any basis state, so its valence and conduction parts cannot be
// normalized. Spin is -1 for proportions summed over spin.
type ZeroOverlapError struct {
	Band int
	Spin int
}

func (e *ZeroOverlapError) Error() string {
	if e.Spin < 0 {
		return fmt.Sprintf("band %d has no pseudo overlap with the basis", e.Band)
	}
	return fmt.Sprintf("band %d spin %d has no pseudo overlap with the basis", e.Band, e.Spin)
}

// BackendError wraps a failure of the numerical backend.
type BackendError struct {
	Op  string
	Dir string
	Err error
}

func (e *BackendError) Error() string {
	if e.Dir != "" {
		return fmt.Sprintf("backend %s failed for %s: %v", e.Op, e.Dir, e.Err)
	}
	return fmt.Sprintf("backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// SessionStateError is returned when an operation is invoked on a
// session that has not reached the state it needs, or has been closed.
type SessionStateError struct {
	Op       string
	State    string
	Required string
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("cannot %s: session is %s, requires %s", e.Op, e.State, e.Required)
}
