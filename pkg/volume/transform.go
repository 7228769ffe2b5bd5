package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"fsqc/internal/models"
)

// Transform maps points between voxel and world coordinates
type Transform struct {
	toWorld *mat.Dense
	toVoxel *mat.Dense
}

// NewTransform builds a transform from a row-major voxel-to-world affine
func NewTransform(affine [16]float64) (*Transform, error) {
	fwd := mat.NewDense(4, 4, affine[:])
	var inv mat.Dense
	if err := inv.Inverse(fwd); err != nil {
		return nil, fmt.Errorf("affine is not invertible: %w", err)
	}
	return &Transform{toWorld: fwd, toVoxel: &inv}, nil
}

// ToWorld maps voxel coordinates to world coordinates
func (t *Transform) ToWorld(p r3.Vec) r3.Vec {
	return apply(t.toWorld, p)
}

// ToVoxel maps world coordinates to (fractional) voxel coordinates
func (t *Transform) ToVoxel(p r3.Vec) r3.Vec {
	return apply(t.toVoxel, p)
}

func apply(m *mat.Dense, p r3.Vec) r3.Vec {
	in := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})
	var out mat.VecDense
	out.MulVec(m, in)
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// VoxelMesh returns a copy of mesh with its vertices mapped into voxel
// coordinates. Planes of constant voxel index are then planes of constant
// coordinate, whatever the orientation of the affine.
func (t *Transform) VoxelMesh(mesh *models.TriangleMesh) *models.TriangleMesh {
	out := &models.TriangleMesh{
		Vertices:  make([]r3.Vec, len(mesh.Vertices)),
		Triangles: mesh.Triangles,
	}
	for i, v := range mesh.Vertices {
		out.Vertices[i] = t.ToVoxel(v)
	}
	return out
}

// Range returns the minimum and maximum voxel values
func Range(v *models.Volume) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, x := range v.Data {
		if math.IsNaN(x) {
			continue
		}
		min = math.Min(min, x)
		max = math.Max(max, x)
	}
	return min, max
}

// Normalized returns a copy of v with values rescaled to [0, 1]
func Normalized(v *models.Volume) *models.Volume {
	out := &models.Volume{Dims: v.Dims, Affine: v.Affine, Data: make([]float64, len(v.Data))}
	min, max := Range(v)
	span := max - min
	if span <= 0 || math.IsInf(span, 0) {
		return out
	}
	for i, x := range v.Data {
		out.Data[i] = (x - min) / span
	}
	return out
}
