package screenshot

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"fsqc/internal/models"
	"fsqc/pkg/contour"
	"fsqc/pkg/surface"
	"fsqc/pkg/visualization"
	"fsqc/pkg/volume"
)

// SurfaceSpec names a surface file and the color its contours are drawn in
type SurfaceSpec struct {
	Name  string
	Path  string
	Color string
}

// Params holds the screenshot parameters.
type Params struct {
	// VolumeFile is the NIfTI image drawn under the contours.
	VolumeFile string

	// Surfaces lists the surfaces to contour.
	Surfaces []SurfaceSpec

	// OutputDir receives one sub-directory of PNG files per view.
	OutputDir string

	// Views lists the axes perpendicular to the rendered slices.
	Views []models.Axis

	// SlicesPerView is the number of slices rendered for each view.
	SlicesPerView int

	// Margin is the fraction of the surfaces' extent skipped at each end
	// when placing slices.
	Margin float64

	// NumCores bounds the number of contour extractions run at once.
	NumCores int

	// Tolerance and Epsilon are passed to the contour extractor.
	Tolerance float64
	Epsilon   float64

	// Scale is the number of output pixels per voxel; LineWidth the
	// contour stroke width in output pixels.
	Scale     float64
	LineWidth float64

	// Logger receives warnings. log.Default() is used when nil.
	Logger *log.Logger
}

// ViewSummary describes the contours found for one view
type ViewSummary struct {
	Axis   models.Axis
	Slices []int
	Files  []string

	// Perimeters holds the total contour length per slice, in voxels
	Perimeters    []float64
	MeanPerimeter float64
	MaxPerimeter  float64

	Loops      int
	OpenChains int
	Warnings   int
}

// Summary collects the per-view contour statistics of a run
type Summary struct {
	Surfaces int
	Views    []ViewSummary
	Warnings int
}

type loadedSurface struct {
	name  string
	color string
	mesh  *models.TriangleMesh
}

// Screenshotter renders surface contours over volume slices.
//
// The process consists of several steps:
// 1. Loading the volume
// 2. Loading the surfaces and mapping them into voxel space
// 3. Choosing the slices of every view
// 4. Extracting and assembling contours in parallel
// 5. Rendering one image per slice
// 6. Summarizing the contours
type Screenshotter struct {
	params *Params
	logger *log.Logger

	volume    *models.Volume
	transform *volume.Transform

	// added holds the world-space surfaces given to AddSurface; surfaces is
	// rebuilt from them and Params.Surfaces on every run
	added    []loadedSurface
	surfaces []loadedSurface

	// slices holds the chosen voxel indices per view
	slices [][]int

	// contours is indexed [surface][view][slice]
	contours [][][][]contour.Polyline
	warnings [][]int

	summary Summary
}

// NewScreenshotter creates a new screenshotter instance with the provided parameters.
func NewScreenshotter(params *Params) *Screenshotter {
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Screenshotter{params: params, logger: logger}
}

// SetVolume uses vol instead of loading Params.VolumeFile
func (s *Screenshotter) SetVolume(vol *models.Volume) {
	s.volume = vol
}

// AddSurface adds an already loaded world-space surface
func (s *Screenshotter) AddSurface(name, color string, mesh *models.TriangleMesh) {
	s.added = append(s.added, loadedSurface{name: name, color: color, mesh: mesh})
}

// Process runs the complete screenshot pipeline
func (s *Screenshotter) Process() error {
	if len(s.params.Views) == 0 {
		return fmt.Errorf("no views requested")
	}
	if s.params.SlicesPerView < 1 {
		return fmt.Errorf("slicesPerView must be at least 1, got %d", s.params.SlicesPerView)
	}

	fmt.Println("Step 1: Loading volume...")
	if err := s.loadVolume(); err != nil {
		return fmt.Errorf("failed to load volume: %w", err)
	}

	fmt.Println("Step 2: Loading surfaces...")
	if err := s.loadSurfaces(); err != nil {
		return fmt.Errorf("failed to load surfaces: %w", err)
	}

	fmt.Println("Step 3: Choosing slices...")
	s.chooseSlices()

	fmt.Println("Step 4: Extracting contours...")
	if err := s.extractContours(); err != nil {
		return fmt.Errorf("failed to extract contours: %w", err)
	}

	fmt.Println("Step 5: Rendering screenshots...")
	if err := s.render(); err != nil {
		return fmt.Errorf("failed to render screenshots: %w", err)
	}

	fmt.Println("Step 6: Summarizing contours...")
	s.summarize()

	return nil
}

func (s *Screenshotter) loadVolume() error {
	if s.volume == nil {
		if s.params.VolumeFile == "" {
			return fmt.Errorf("no volume file given")
		}
		vol, err := volume.LoadNifti(s.params.VolumeFile)
		if err != nil {
			return err
		}
		s.volume = vol
	}

	tr, err := volume.NewTransform(s.volume.Affine)
	if err != nil {
		return err
	}
	s.transform = tr

	fmt.Printf("Loaded volume with dimensions %dx%dx%d\n", s.volume.Dims[0], s.volume.Dims[1], s.volume.Dims[2])
	return nil
}

// loadSurfaces reads Params.Surfaces and maps every surface, including the
// ones added with AddSurface, into voxel coordinates.
func (s *Screenshotter) loadSurfaces() error {
	world := append([]loadedSurface(nil), s.added...)
	for _, spec := range s.params.Surfaces {
		mesh, err := surface.Load(spec.Path)
		if err != nil {
			return err
		}
		name := spec.Name
		if name == "" {
			name = filepath.Base(spec.Path)
		}
		world = append(world, loadedSurface{name: name, color: spec.Color, mesh: mesh})
	}

	s.surfaces = make([]loadedSurface, len(world))
	for i, surf := range world {
		s.surfaces[i] = loadedSurface{name: surf.name, color: surf.color, mesh: s.transform.VoxelMesh(surf.mesh)}
		if s.surfaces[i].color == "" {
			s.surfaces[i].color = defaultColors[i%len(defaultColors)]
		}
		fmt.Printf("Surface %s: %d vertices, %d triangles\n",
			s.surfaces[i].name, len(s.surfaces[i].mesh.Vertices), len(s.surfaces[i].mesh.Triangles))
	}
	return nil
}

var defaultColors = []string{"#ffff00", "#ff0000", "#00ffff", "#00ff00"}

// chooseSlices spreads SlicesPerView voxel indices over the margin-trimmed
// extent of the surfaces along every view axis.
func (s *Screenshotter) chooseSlices() {
	s.slices = make([][]int, len(s.params.Views))
	for vi, axis := range s.params.Views {
		last := float64(s.volume.Dims[axis] - 1)
		lo, hi := 0.0, last
		if len(s.surfaces) > 0 {
			lo, hi = math.Inf(1), math.Inf(-1)
			for _, surf := range s.surfaces {
				box := surf.mesh.Bounds()
				lo = math.Min(lo, models.Component(box.Min, axis))
				hi = math.Max(hi, models.Component(box.Max, axis))
			}
			trim := (hi - lo) * s.params.Margin
			lo, hi = lo+trim, hi-trim
		}
		lo = math.Max(0, math.Min(last, lo))
		hi = math.Max(0, math.Min(last, hi))

		s.slices[vi] = spread(lo, hi, s.params.SlicesPerView)
		fmt.Printf("View %s: slices %v\n", axis, s.slices[vi])
	}
}

// spread returns up to n distinct integers evenly covering [lo, hi]
func spread(lo, hi float64, n int) []int {
	if n == 1 {
		return []int{int(math.Round((lo + hi) / 2))}
	}
	var out []int
	for i := 0; i < n; i++ {
		idx := int(math.Round(lo + float64(i)*(hi-lo)/float64(n-1)))
		if len(out) > 0 && out[len(out)-1] == idx {
			continue
		}
		out = append(out, idx)
	}
	return out
}

// extractContours cuts every surface for every view in parallel. Each task
// owns its own extractor and writes to its own result cell.
func (s *Screenshotter) extractContours() error {
	numViews := len(s.params.Views)
	s.contours = make([][][][]contour.Polyline, len(s.surfaces))
	s.warnings = make([][]int, len(s.surfaces))
	for i := range s.contours {
		s.contours[i] = make([][][]contour.Polyline, numViews)
		s.warnings[i] = make([]int, numViews)
	}

	opts := contour.Options{Tolerance: s.params.Tolerance, Epsilon: s.params.Epsilon, Logger: s.logger}

	var g errgroup.Group
	if s.params.NumCores > 0 {
		g.SetLimit(s.params.NumCores)
	}

	var mu sync.Mutex
	totalTasks := len(s.surfaces) * numViews
	completedTasks := 0

	for si := range s.surfaces {
		for vi := range s.params.Views {
			g.Go(func() error {
				lines, warnings, err := s.contourView(contour.NewExtractor(opts), si, vi)
				if err != nil {
					return fmt.Errorf("surface %s, view %s: %w", s.surfaces[si].name, s.params.Views[vi], err)
				}
				s.contours[si][vi] = lines
				s.warnings[si][vi] = warnings

				mu.Lock()
				completedTasks++
				progress := float64(completedTasks) / float64(totalTasks) * 100
				fmt.Printf("\rExtracting contours: %.1f%% complete", progress)
				mu.Unlock()
				return nil
			})
		}
	}
	err := g.Wait()
	if totalTasks > 0 {
		fmt.Println()
	}
	return err
}

func (s *Screenshotter) contourView(ex *contour.Extractor, si, vi int) ([][]contour.Polyline, int, error) {
	axis := s.params.Views[vi]
	indices := s.slices[vi]
	levels := make([]float64, len(indices))
	for i, idx := range indices {
		levels[i] = float64(idx)
	}

	cuts, err := ex.Slice(s.surfaces[si].mesh, axis, levels)
	if err != nil {
		return nil, 0, err
	}

	project := func(p r3.Vec) r2.Vec { return models.Project(p, axis) }
	out := make([][]contour.Polyline, len(cuts))
	warnings := 0
	for i := range cuts {
		lines, ws := cuts[i].Polylines(project, ex.Tolerance())
		for _, w := range ws {
			s.logger.Printf("Warning: surface %s, view %s: %s", s.surfaces[si].name, axis, w)
		}
		out[i] = lines
		warnings += len(cuts[i].Warnings) + len(ws)
	}
	return out, warnings, nil
}

func (s *Screenshotter) render() error {
	viewer := visualization.NewViewer(s.volume)
	overlay := &visualization.Overlay{Scale: s.params.Scale, LineWidth: s.params.LineWidth}
	if overlay.Scale <= 0 {
		overlay.Scale = 1
	}
	if overlay.LineWidth <= 0 {
		overlay.LineWidth = 1
	}

	s.summary = Summary{Surfaces: len(s.surfaces), Views: make([]ViewSummary, len(s.params.Views))}
	for vi, axis := range s.params.Views {
		view := &s.summary.Views[vi]
		view.Axis = axis
		view.Slices = s.slices[vi]

		dir := filepath.Join(s.params.OutputDir, axis.String())
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		for i, idx := range s.slices[vi] {
			img, err := viewer.ExtractSlice(axis, idx)
			if err != nil {
				return err
			}

			layers := make([]visualization.Layer, len(s.surfaces))
			for si, surf := range s.surfaces {
				layers[si] = visualization.Layer{Name: surf.name, Color: surf.color, Polylines: s.contours[si][vi][i]}
			}

			filename := filepath.Join(dir, fmt.Sprintf("slice_%s_%03d.png", axis, idx))
			if err := visualization.SavePNG(overlay.Render(img, layers), filename); err != nil {
				return fmt.Errorf("failed to save %s: %w", filename, err)
			}
			view.Files = append(view.Files, filename)
		}
	}
	return nil
}

func (s *Screenshotter) summarize() {
	s.summary.Warnings = 0
	for vi := range s.summary.Views {
		view := &s.summary.Views[vi]
		view.Perimeters = make([]float64, len(view.Slices))
		view.Loops, view.OpenChains, view.Warnings = 0, 0, 0

		for si := range s.surfaces {
			for i, lines := range s.contours[si][vi] {
				for _, line := range lines {
					view.Perimeters[i] += line.Length()
					if line.Closed {
						view.Loops++
					} else {
						view.OpenChains++
					}
				}
			}
			view.Warnings += s.warnings[si][vi]
		}

		if len(view.Perimeters) > 0 {
			view.MeanPerimeter = stat.Mean(view.Perimeters, nil)
			view.MaxPerimeter = floats.Max(view.Perimeters)
		}
		s.summary.Warnings += view.Warnings
	}
}

// GetSummary returns the contour summary of the last run
func (s *Screenshotter) GetSummary() Summary {
	return s.summary
}
