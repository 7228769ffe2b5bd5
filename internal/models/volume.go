package models

import (
	"fmt"
	"strings"
)

// Axis identifies one of the three world/voxel axes
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// ParseAxis converts "x", "y" or "z" (any case) into an Axis
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "sagittal":
		return AxisX, nil
	case "y", "coronal":
		return AxisY, nil
	case "z", "axial":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", s)
}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// InPlane returns the two axes spanning a plane perpendicular to a, in the
// order used for projections (horizontal, vertical)
func (a Axis) InPlane() (Axis, Axis) {
	switch a {
	case AxisX:
		return AxisY, AxisZ
	case AxisY:
		return AxisX, AxisZ
	default:
		return AxisX, AxisY
	}
}

// Volume represents a 3D scalar image with its voxel-to-world transform
type Volume struct {
	// Data is the 3D volume data as a 1D array, x varying fastest
	Data []float64

	// Dims holds the number of voxels along x, y and z
	Dims [3]int

	// Affine is the row-major 4x4 voxel-to-world transform
	Affine [16]float64
}

// Index returns the flat index of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return z*v.Dims[0]*v.Dims[1] + y*v.Dims[0] + x
}

// At returns the value at voxel (x, y, z), or 0 outside the volume
func (v *Volume) At(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= v.Dims[0] || y >= v.Dims[1] || z >= v.Dims[2] {
		return 0
	}
	idx := v.Index(x, y, z)
	if idx >= len(v.Data) {
		return 0
	}
	return v.Data[idx]
}

// IdentityAffine returns the 4x4 identity transform
func IdentityAffine() [16]float64 {
	return [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}
