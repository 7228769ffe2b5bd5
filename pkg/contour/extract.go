// Package contour computes planar cross-sections of triangle meshes.
//
// A cut intersects every triangle whose vertices straddle a scalar level,
// producing one segment per straddling triangle. Points are interpolated on
// mesh edges and shared between the triangles adjacent to an edge, so the
// segments of a cut form a graph that AssemblePolylines turns into ordered,
// plottable polylines.
package contour

import (
	"fmt"
	"log"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"fsqc/internal/models"
)

const (
	// DefaultEpsilon is the smallest scalar difference across an edge that is
	// interpolated normally.
	DefaultEpsilon = 1e-12

	// DefaultTolerance is the distance under which two projected points are
	// considered the same point.
	DefaultTolerance = 1e-16
)

// Segment is a pair of indices into the interpolated points of a Level.
type Segment [2]int

// edgeKey identifies a mesh edge independently of its direction.
type edgeKey [2]int

func newEdgeKey(a, b int) edgeKey {
	if a < b {
		return edgeKey{a, b}
	}
	return edgeKey{b, a}
}

// Level is the result of cutting a mesh at one scalar value.
type Level struct {
	// Value is the cut level
	Value float64

	// Points are the interpolated vertices in creation order
	Points []r3.Vec

	// Segments index into Points, one per straddling triangle
	Segments []Segment

	// Triangles holds the originating triangle of each segment
	Triangles []int

	// Warnings collects recoverable problems met during the cut
	Warnings []Warning
}

// Empty reports whether the cut produced no geometry.
func (l *Level) Empty() bool {
	return len(l.Segments) == 0
}

// Options controls an Extractor.
type Options struct {
	// Workers is the number of levels cut concurrently; values <= 1 cut
	// levels one after the other
	Workers int

	// Epsilon guards the interpolation denominator
	Epsilon float64

	// Tolerance is used when assembling polylines
	Tolerance float64

	// Logger receives every warning when set
	Logger *log.Logger
}

// Extractor cuts meshes at scalar levels.
type Extractor struct {
	opts Options
}

// NewExtractor creates an extractor, filling unset options with defaults.
func NewExtractor(opts Options) *Extractor {
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	return &Extractor{opts: opts}
}

// Tolerance returns the point coincidence tolerance used for assembly.
func (e *Extractor) Tolerance() float64 {
	return e.opts.Tolerance
}

// ExtractContours cuts mesh at every level with default options.
func ExtractContours(mesh *models.TriangleMesh, field models.ScalarField, levels []float64) ([]Level, error) {
	return NewExtractor(Options{}).Extract(mesh, field, levels)
}

// SliceMesh cuts mesh with planes perpendicular to axis at the given coordinates.
func SliceMesh(mesh *models.TriangleMesh, axis models.Axis, levels []float64) ([]Level, error) {
	return NewExtractor(Options{}).Slice(mesh, axis, levels)
}

// Slice cuts mesh with planes perpendicular to axis, using the vertex
// coordinate along axis as the scalar field.
func (e *Extractor) Slice(mesh *models.TriangleMesh, axis models.Axis, levels []float64) ([]Level, error) {
	if mesh == nil {
		return nil, ErrEmptyMesh
	}
	return e.Extract(mesh, models.CoordinateField(mesh, axis), levels)
}

// Extract cuts mesh at every level. Results are returned in the order of
// levels. Each level is cut from scratch, so levels never share
// interpolated points.
func (e *Extractor) Extract(mesh *models.TriangleMesh, field models.ScalarField, levels []float64) ([]Level, error) {
	if err := checkInputs(mesh, field, levels); err != nil {
		return nil, err
	}

	out := make([]Level, len(levels))
	if e.opts.Workers <= 1 || len(levels) == 1 {
		for i, level := range levels {
			out[i] = e.cut(mesh, field, level)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.opts.Workers)
		for i, level := range levels {
			g.Go(func() error {
				out[i] = e.cut(mesh, field, level)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if e.opts.Logger != nil {
		for _, l := range out {
			for _, w := range l.Warnings {
				e.opts.Logger.Printf("Warning: %s", w)
			}
		}
	}
	return out, nil
}

func checkInputs(mesh *models.TriangleMesh, field models.ScalarField, levels []float64) error {
	if mesh == nil || len(mesh.Vertices) < 3 || len(mesh.Triangles) < 1 {
		return ErrEmptyMesh
	}
	if len(field) != len(mesh.Vertices) {
		return errors.Wrapf(ErrFieldLength, "%d values for %d vertices", len(field), len(mesh.Vertices))
	}
	if len(levels) == 0 {
		return ErrNoLevels
	}
	for i, level := range levels {
		if !finite(level) {
			return errors.Errorf("contour: level %d is not finite (%v)", i, level)
		}
	}
	for i, s := range field {
		if !finite(s) {
			return &FieldError{Vertex: i, Value: s}
		}
	}
	for i, v := range mesh.Vertices {
		for _, c := range [3]float64{v.X, v.Y, v.Z} {
			if !finite(c) {
				return &FieldError{Vertex: i, Value: c, Coordinate: true}
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// cutter holds the state of one cut. The split table maps a mesh edge to its
// interpolated point and lives only as long as the cut.
type cutter struct {
	mesh    *models.TriangleMesh
	field   models.ScalarField
	epsilon float64
	level   *Level
	split   map[edgeKey]int
}

func (e *Extractor) cut(mesh *models.TriangleMesh, field models.ScalarField, value float64) Level {
	level := Level{Value: value}
	c := &cutter{
		mesh:    mesh,
		field:   field,
		epsilon: e.opts.Epsilon,
		level:   &level,
		split:   make(map[edgeKey]int),
	}

	above := make([]bool, len(field))
	for i, s := range field {
		above[i] = s > value
	}

	n := len(mesh.Vertices)
	for ti, tri := range mesh.Triangles {
		if !validTriangle(tri, n) {
			level.Warnings = append(level.Warnings, Warning{
				Kind:     MalformedTriangle,
				Level:    value,
				Triangle: ti,
				Point:    -1,
				Message:  fmt.Sprintf("triangle %d has invalid vertex indices %v", ti, tri),
			})
			continue
		}

		count := 0
		for _, v := range tri {
			if above[v] {
				count++
			}
		}

		// The outlying vertex is the one alone on its side of the level.
		var o int
		switch count {
		case 1:
			o = indexOf(tri, above, true)
		case 2:
			o = indexOf(tri, above, false)
		default:
			continue
		}

		out, a, b := tri[o], tri[(o+1)%3], tri[(o+2)%3]
		ia := c.splitEdge(ti, out, a)
		ib := c.splitEdge(ti, out, b)

		// Keep the region above the level on the same side of every segment
		// of a consistently oriented mesh.
		seg := Segment{ia, ib}
		if count == 2 {
			seg = Segment{ib, ia}
		}
		level.Segments = append(level.Segments, seg)
		level.Triangles = append(level.Triangles, ti)
	}
	return level
}

// splitEdge returns the interpolated point on edge (out, other), creating it
// the first time the edge is met.
func (c *cutter) splitEdge(tri, out, other int) int {
	key := newEdgeKey(out, other)
	if idx, ok := c.split[key]; ok {
		return idx
	}

	so, sx := c.field[out], c.field[other]
	denom := sx - so
	var t float64
	if math.Abs(denom) < c.epsilon {
		t = 0.5
		c.level.Warnings = append(c.level.Warnings, Warning{
			Kind:     DegenerateEdge,
			Level:    c.level.Value,
			Triangle: tri,
			Point:    len(c.level.Points),
			Message:  fmt.Sprintf("edge %d-%d is flat across the level, using its midpoint", key[0], key[1]),
		})
	} else {
		t = (c.level.Value - so) / denom
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}

	po, px := c.mesh.Vertices[out], c.mesh.Vertices[other]
	p := r3.Add(po, r3.Scale(t, r3.Sub(px, po)))

	idx := len(c.level.Points)
	c.level.Points = append(c.level.Points, p)
	c.split[key] = idx
	return idx
}

func validTriangle(tri [3]int, n int) bool {
	for _, v := range tri {
		if v < 0 || v >= n {
			return false
		}
	}
	return tri[0] != tri[1] && tri[1] != tri[2] && tri[0] != tri[2]
}

func indexOf(tri [3]int, above []bool, want bool) int {
	for i, v := range tri {
		if above[v] == want {
			return i
		}
	}
	return 0
}
