package contour

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyMesh is returned for meshes with fewer than 3 vertices or no triangles.
	ErrEmptyMesh = errors.New("contour: mesh needs at least 3 vertices and 1 triangle")

	// ErrFieldLength is returned when the scalar field and the vertex list differ in length.
	ErrFieldLength = errors.New("contour: scalar field length does not match vertex count")

	// ErrNoLevels is returned when no cut level was requested.
	ErrNoLevels = errors.New("contour: no cut levels requested")
)

// FieldError reports a non-finite input value. Interpolating through it would
// place contour points at NaN or infinity.
type FieldError struct {
	// Vertex is the offending vertex index
	Vertex int

	// Value is the non-finite value found
	Value float64

	// Coordinate is true when the value is a vertex coordinate rather than
	// a scalar field sample
	Coordinate bool
}

func (e *FieldError) Error() string {
	if e.Coordinate {
		return fmt.Sprintf("contour: vertex %d has non-finite coordinate %v", e.Vertex, e.Value)
	}
	return fmt.Sprintf("contour: scalar field is non-finite at vertex %d (%v)", e.Vertex, e.Value)
}

// WarningKind classifies recoverable problems met during a cut.
type WarningKind int

const (
	// DegenerateEdge marks a cut edge whose scalar values are (nearly) equal.
	DegenerateEdge WarningKind = iota
	// MalformedTriangle marks a triangle with an out-of-range or repeated vertex index.
	MalformedTriangle
	// BranchPoint marks a contour point with more than one possible continuation.
	BranchPoint
)

func (k WarningKind) String() string {
	switch k {
	case DegenerateEdge:
		return "degenerate edge"
	case MalformedTriangle:
		return "malformed triangle"
	case BranchPoint:
		return "branch point"
	}
	return fmt.Sprintf("WarningKind(%d)", int(k))
}

// Warning describes a recoverable problem. The cut proceeds; the warning
// tells the caller that part of the result is not authoritative.
type Warning struct {
	Kind  WarningKind
	Level float64

	// Triangle is the triangle index involved, or -1
	Triangle int

	// Point is the index of the interpolated point involved, or -1
	Point int

	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s at level %g: %s", w.Kind, w.Level, w.Message)
}
