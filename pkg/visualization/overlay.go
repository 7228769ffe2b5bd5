package visualization

import (
	"image"

	"github.com/fogleman/gg"

	"fsqc/pkg/contour"
)

// Layer is a set of polylines drawn in one color
type Layer struct {
	Name      string
	Color     string
	Polylines []contour.Polyline
}

// Overlay draws contour layers over a raster slice
type Overlay struct {
	// Scale is the number of output pixels per voxel
	Scale float64

	// LineWidth is the stroke width in output pixels
	LineWidth float64
}

// Render draws the slice scaled up by Scale, then every layer on top of it.
// Polyline coordinates are in-plane voxel coordinates, with voxel centers at
// integer positions.
func (o *Overlay) Render(slice image.Image, layers []Layer) image.Image {
	bounds := slice.Bounds()
	width := int(float64(bounds.Dx()) * o.Scale)
	height := int(float64(bounds.Dy()) * o.Scale)

	dc := gg.NewContext(width, height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	dc.Push()
	dc.Scale(o.Scale, o.Scale)
	dc.DrawImage(slice, 0, 0)
	dc.Pop()

	// Flip so that in-plane coordinates grow upwards, then move voxel
	// centers to pixel centers
	rows := float64(bounds.Dy())
	dc.Scale(o.Scale, o.Scale)
	dc.Translate(0.5, rows-0.5)
	dc.Scale(1, -1)

	dc.SetLineWidth(o.LineWidth)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	for _, layer := range layers {
		dc.SetHexColor(layer.Color)
		for _, line := range layer.Polylines {
			if len(line.Points) < 2 {
				continue
			}
			dc.NewSubPath()
			dc.MoveTo(line.Points[0].X, line.Points[0].Y)
			for _, p := range line.Points[1:] {
				dc.LineTo(p.X, p.Y)
			}
			if line.Closed {
				dc.ClosePath()
			}
		}
		dc.Stroke()
	}

	return dc.Image()
}

// SavePNG writes img to path
func SavePNG(img image.Image, path string) error {
	return gg.SavePNG(path, img)
}
