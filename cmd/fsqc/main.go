package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fsqc/internal/models"
	"fsqc/pkg/config"
	"fsqc/pkg/screenshot"
	"fsqc/pkg/visualization"
	"fsqc/pkg/volume"
)

// surfaceFlags collects repeated -surface arguments
type surfaceFlags []config.Surface

func (s *surfaceFlags) String() string {
	names := make([]string, len(*s))
	for i, surf := range *s {
		names[i] = surf.Name
	}
	return strings.Join(names, ",")
}

func (s *surfaceFlags) Set(value string) error {
	surf, err := parseSurface(value)
	if err != nil {
		return err
	}
	*s = append(*s, surf)
	return nil
}

// parseSurface parses name=path[:#color]. The name defaults to the file name.
// Text before "=" is a name only when it holds no path separator, so paths
// such as /data/run=2/lh.white need no name.
func parseSurface(value string) (config.Surface, error) {
	var surf config.Surface
	if i := strings.Index(value, "="); i >= 0 && !strings.ContainsAny(value[:i], `/\`) {
		surf.Name, value = value[:i], value[i+1:]
	}
	if i := strings.LastIndex(value, ":#"); i >= 0 {
		surf.Color, value = value[i+1:], value[:i]
	}
	if value == "" {
		return surf, fmt.Errorf("missing surface path")
	}
	surf.Path = value
	if surf.Name == "" {
		surf.Name = filepath.Base(value)
	}
	return surf, nil
}

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "fsqc.yaml", "YAML configuration file")
	volumeFile := flag.String("volume", "", "NIfTI volume to draw the contours over (.nii or .nii.gz)")
	var surfaces surfaceFlags
	flag.Var(&surfaces, "surface", "Surface to contour as name=path[:#color] (repeatable)")
	outputDir := flag.String("output", "", "Directory to save screenshots")
	views := flag.String("views", "", "Comma separated views: x, y, z or sagittal, coronal, axial")
	slices := flag.Int("slices", 0, "Number of slices per view")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: all available)")
	writeConfig := flag.Bool("write-config", false, "Write a default configuration file and exit")
	extractSlices := flag.Bool("extract-slices", false, "Also save every raw volume slice along the requested views")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the configuration file
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *views != "" {
		cfg.Screenshots.Views = strings.Split(*views, ",")
	}
	if *slices > 0 {
		cfg.Screenshots.SlicesPerView = *slices
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if len(surfaces) > 0 {
		cfg.Surfaces = surfaces
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Validate inputs
	if *volumeFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	axes := make([]models.Axis, 0, len(cfg.Screenshots.Views))
	for _, v := range cfg.Screenshots.Views {
		axis, err := models.ParseAxis(strings.TrimSpace(v))
		if err != nil {
			log.Fatalf("Invalid view: %v", err)
		}
		axes = append(axes, axis)
	}

	specs := make([]screenshot.SurfaceSpec, len(cfg.Surfaces))
	for i, surf := range cfg.Surfaces {
		specs[i] = screenshot.SurfaceSpec{Name: surf.Name, Path: surf.Path, Color: surf.Color}
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if !cfg.Output.Verbose {
		logger.SetOutput(io.Discard)
	}

	fmt.Println("================================")
	fmt.Println("SURFACE CONTOUR SCREENSHOTS")
	fmt.Println("================================")

	params := &screenshot.Params{
		VolumeFile:    *volumeFile,
		Surfaces:      specs,
		OutputDir:     cfg.Output.Dir,
		Views:         axes,
		SlicesPerView: cfg.Screenshots.SlicesPerView,
		Margin:        cfg.Screenshots.Margin,
		NumCores:      cfg.Processing.NumCores,
		Tolerance:     cfg.Contour.Tolerance,
		Epsilon:       cfg.Contour.Epsilon,
		Scale:         cfg.Screenshots.Scale,
		LineWidth:     cfg.Screenshots.LineWidth,
		Logger:        logger,
	}

	shooter := screenshot.NewScreenshotter(params)

	startTime := time.Now()
	if err := shooter.Process(); err != nil {
		log.Fatalf("Screenshots failed: %v", err)
	}
	processingTime := time.Since(startTime)

	summary := shooter.GetSummary()
	fmt.Printf("\nCompleted in %.2f seconds using %d cores\n", processingTime.Seconds(), cfg.Processing.NumCores)
	fmt.Printf("Surfaces: %d, warnings: %d\n\n", summary.Surfaces, summary.Warnings)

	for _, view := range summary.Views {
		fmt.Printf("View %s (slices %v):\n", view.Axis, view.Slices)
		fmt.Printf("- Closed loops: %d\n", view.Loops)
		fmt.Printf("- Open chains: %d\n", view.OpenChains)
		fmt.Printf("- Mean perimeter: %.2f voxels\n", view.MeanPerimeter)
		fmt.Printf("- Max perimeter: %.2f voxels\n", view.MaxPerimeter)
		for _, f := range view.Files {
			fmt.Printf("  %s\n", f)
		}
	}

	// Save raw slices if requested
	if *extractSlices {
		fmt.Println("\nExtracting volume slices...")
		vol, err := volume.LoadNifti(*volumeFile)
		if err != nil {
			log.Fatalf("Failed to load volume: %v", err)
		}
		viewer := visualization.NewViewer(vol)
		for _, axis := range axes {
			axisDir := filepath.Join(cfg.Output.Dir, "raw", axis.String())
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
			}
		}
		fmt.Println("Slice extraction completed!")
	}
}
