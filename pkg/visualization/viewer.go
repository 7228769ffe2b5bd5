package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"

	"fsqc/internal/models"
	"fsqc/pkg/volume"
)

// Viewer extracts axis-aligned raster slices from a volume. Slices are laid
// out with the first in-plane axis running left to right and the second
// running bottom to top, matching models.Project.
type Viewer struct {
	// volume holds intensities rescaled to [0, 1]
	volume *models.Volume
}

// NewViewer creates a viewer over a normalized copy of vol
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{volume: volume.Normalized(vol)}
}

// PlaneSize returns the width and height in voxels of slices perpendicular to axis
func (v *Viewer) PlaneSize(axis models.Axis) (int, int) {
	h, u := axis.InPlane()
	return v.volume.Dims[h], v.volume.Dims[u]
}

// Depth returns the number of slices along axis
func (v *Viewer) Depth(axis models.Axis) int {
	return v.volume.Dims[axis]
}

// ExtractSlice extracts a 2D slice from the 3D volume along the specified axis
func (v *Viewer) ExtractSlice(axis models.Axis, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if position >= v.Depth(axis) {
		return nil, fmt.Errorf("position %d exceeds %s size %d", position, axis, v.Depth(axis))
	}

	width, height := v.PlaneSize(axis)
	hAxis, vAxis := axis.InPlane()
	img := image.NewGray16(image.Rect(0, 0, width, height))

	var idx [3]int
	idx[axis] = position
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			idx[hAxis], idx[vAxis] = i, j
			val := v.volume.At(idx[0], idx[1], idx[2])
			gray := uint16(math.Max(0, math.Min(65535, val*65535)))
			// Row 0 is the top of the image
			img.SetGray16(i, height-1-j, color.Gray16{Y: gray})
		}
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return gg.SavePNG(filename, img)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis models.Axis, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.Depth(axis); pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
