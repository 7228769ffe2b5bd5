package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// TriangleMesh is an indexed triangle surface. It is treated as immutable
// while contours are being extracted from it.
type TriangleMesh struct {
	// Vertices holds the vertex coordinates; the index is the vertex identity
	Vertices []r3.Vec

	// Triangles holds oriented faces as index triples into Vertices
	Triangles [][3]int
}

// Validate reports the first triangle referencing an out-of-range vertex or
// repeating a vertex index.
func (m *TriangleMesh) Validate() error {
	n := len(m.Vertices)
	for i, tri := range m.Triangles {
		for _, v := range tri {
			if v < 0 || v >= n {
				return fmt.Errorf("triangle %d references vertex %d, mesh has %d vertices", i, v, n)
			}
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[0] == tri[2] {
			return fmt.Errorf("triangle %d repeats a vertex: %v", i, tri)
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the vertices
func (m *TriangleMesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	box := r3.Box{Min: m.Vertices[0], Max: m.Vertices[0]}
	for _, v := range m.Vertices[1:] {
		box.Min.X = math.Min(box.Min.X, v.X)
		box.Min.Y = math.Min(box.Min.Y, v.Y)
		box.Min.Z = math.Min(box.Min.Z, v.Z)
		box.Max.X = math.Max(box.Max.X, v.X)
		box.Max.Y = math.Max(box.Max.Y, v.Y)
		box.Max.Z = math.Max(box.Max.Z, v.Z)
	}
	return box
}

// ScalarField holds one value per mesh vertex, in vertex order
type ScalarField []float64

// CoordinateField builds the scalar field made of one coordinate of every vertex
func CoordinateField(m *TriangleMesh, axis Axis) ScalarField {
	field := make(ScalarField, len(m.Vertices))
	for i, v := range m.Vertices {
		field[i] = Component(v, axis)
	}
	return field
}

// Range returns the minimum and maximum finite values of the field
func (f ScalarField) Range() (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Component returns the coordinate of p along axis
func Component(p r3.Vec, axis Axis) float64 {
	switch axis {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	default:
		return p.Z
	}
}

// Project drops the coordinate along axis, keeping the in-plane pair
func Project(p r3.Vec, axis Axis) r2.Vec {
	h, v := axis.InPlane()
	return r2.Vec{X: Component(p, h), Y: Component(p, v)}
}
