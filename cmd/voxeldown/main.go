// Command voxeldown thins a CSV point cloud by keeping one randomly chosen
// point per occupied voxel.
//
// Usage:
//
//	voxeldown [flags] <input.csv>
//
// The input's first line is a header; every other non-blank line is x,y,z.
// The result is written as x,y,z CSV to -o (default output.csv).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/voxeldown/internal/config"
	"github.com/banshee-data/voxeldown/internal/fsutil"
	"github.com/banshee-data/voxeldown/internal/history"
	"github.com/banshee-data/voxeldown/internal/monitoring"
	"github.com/banshee-data/voxeldown/internal/pointcloud"
	"github.com/banshee-data/voxeldown/internal/preview"
	"github.com/banshee-data/voxeldown/internal/version"
)

const usageLine = "USAGE: voxeldown [flags] <input.csv>"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, fsutil.OSFileSystem{}))
}

// extras are the optional outputs beyond the downsampled cloud.
type extras struct {
	plotPath    string
	reportPath  string
	historyPath string
	stats       bool
}

// run is main without the process exit, so tests can drive it.
func run(args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem) int {
	fl := flag.NewFlagSet("voxeldown", flag.ContinueOnError)
	fl.SetOutput(stderr)
	configPath := fl.String("config", "", "path to a JSON config file (voxel_size, output_path, random_seed, bucket_order)")
	voxel := fl.Float64("voxel", config.DefaultVoxelSize, "voxel edge length, in input units")
	output := fl.String("o", config.DefaultOutputPath, "output CSV path")
	seed := fl.Uint64("seed", 0, "random seed for representative selection (default: time-derived)")
	order := fl.String("order", pointcloud.OrderFirstSeen.String(), "output row order: first-seen or lexicographic")
	plotPath := fl.String("plot", "", "write a PNG top-down preview to this path")
	reportPath := fl.String("report", "", "write an HTML top-down preview to this path")
	historyPath := fl.String("history", "", "record the run in this sqlite database")
	showStats := fl.Bool("stats", false, "log bounds and centroid of input and output")
	quiet := fl.Bool("q", false, "suppress progress logging")
	verbose := fl.Bool("v", false, "log voxel occupancy and migration details")
	showVersion := fl.Bool("version", false, "print version and exit")
	fl.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fl.PrintDefaults()
	}

	if err := fl.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	origLogf := monitoring.Logf
	origVerbose := monitoring.Verbose()
	defer func() {
		monitoring.Logf = origLogf
		monitoring.SetVerbose(origVerbose)
	}()
	if *quiet {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetLogger(log.New(stderr, "", log.LstdFlags).Printf)
	}
	monitoring.SetVerbose(*verbose && !*quiet)

	fail := func(err error) int {
		fmt.Fprintf(stderr, "voxeldown: %v\n", err)
		return 1
	}

	if fl.NArg() != 1 {
		return fail(fmt.Errorf("%w: expected 1 input path, got %d. %s", pointcloud.ErrInvalidArgumentCount, fl.NArg(), usageLine))
	}
	inputPath := fl.Arg(0)

	cfg := config.DefaultDownsampleConfig()
	if *configPath != "" {
		fileCfg, err := config.LoadDownsampleConfig(*configPath)
		if err != nil {
			return fail(err)
		}
		cfg = cfg.Merge(fileCfg)
	}

	// Explicit flags win over the config file.
	override := config.EmptyDownsampleConfig()
	fl.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "voxel":
			override.VoxelSize = voxel
		case "o":
			override.OutputPath = output
		case "seed":
			override.RandomSeed = seed
		case "order":
			override.BucketOrder = order
		}
	})
	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	ex := extras{
		plotPath:    *plotPath,
		reportPath:  *reportPath,
		historyPath: *historyPath,
		stats:       *showStats,
	}
	if err := downsampleFile(context.Background(), fsys, inputPath, cfg, ex); err != nil {
		return fail(err)
	}
	return 0
}

// downsampleFile runs source, downsampler and sink in order. Nothing is
// written unless reading and downsampling both succeed.
func downsampleFile(ctx context.Context, fsys fsutil.FileSystem, inputPath string, cfg *config.DownsampleConfig, ex extras) error {
	outputPath := cfg.GetOutputPath()
	rec := history.NewRunRecord(inputPath, outputPath)

	points, err := pointcloud.ReadFile(fsys, inputPath)
	if err != nil {
		return err
	}

	seed, fixed := cfg.GetRandomSeed()
	d := pointcloud.Downsampler{
		VoxelSize: cfg.GetVoxelSize(),
		Order:     cfg.GetBucketOrder(),
		Rand:      pointcloud.NewRand(seed),
	}
	res, err := d.Run(points)
	if err != nil {
		return err
	}
	monitoring.Logf("downsampled %d -> %d points (voxel=%g, seed=%d, order=%s)",
		len(points), len(res.Points), d.VoxelSize, seed, d.Order)
	monitoring.Diagf("voxels: occupied=%d max=%d mean=%.2f points/voxel",
		res.Buckets.Occupied, res.Buckets.MaxOccupancy, res.Buckets.MeanOccupancy)
	if ex.stats {
		logStats("input", pointcloud.Summarize(points))
		logStats("output", pointcloud.Summarize(res.Points))
	}

	if err := pointcloud.WriteFile(fsys, outputPath, res.Points); err != nil {
		return err
	}

	title := fmt.Sprintf("%s voxel=%g", inputPath, d.VoxelSize)
	if ex.plotPath != "" {
		if err := writeArtifact(fsys, ex.plotPath, func(w io.Writer) error {
			return preview.WritePNG(w, title, points, res.Points)
		}); err != nil {
			return fmt.Errorf("plot preview: %w", err)
		}
		monitoring.Logf("wrote PNG preview to %s", ex.plotPath)
	}
	if ex.reportPath != "" {
		if err := writeArtifact(fsys, ex.reportPath, func(w io.Writer) error {
			return preview.RenderHTML(w, title, points, res.Points)
		}); err != nil {
			return fmt.Errorf("html preview: %w", err)
		}
		monitoring.Logf("wrote HTML preview to %s", ex.reportPath)
	}

	if ex.historyPath != "" {
		rec.VoxelSize = d.VoxelSize
		rec.Seed = seed
		rec.SeedFixed = fixed
		rec.BucketOrder = d.Order.String()
		rec.InputPoints = len(points)
		rec.OutputPoints = len(res.Points)
		rec.OccupiedVoxels = res.Buckets.Occupied
		rec.Duration = time.Since(rec.StartedAt)
		if err := recordRun(ctx, ex.historyPath, rec); err != nil {
			return err
		}
		monitoring.Logf("recorded run %s in %s", rec.ID, ex.historyPath)
	}
	return nil
}

func logStats(label string, s pointcloud.CloudStats) {
	if s.Count == 0 {
		monitoring.Logf("%s: empty", label)
		return
	}
	monitoring.Logf("%s: %d points, min=(%g, %g, %g) max=(%g, %g, %g) centroid=(%.4f, %.4f, %.4f)",
		label, s.Count,
		s.Min.X, s.Min.Y, s.Min.Z,
		s.Max.X, s.Max.Y, s.Max.Z,
		s.Centroid.X, s.Centroid.Y, s.Centroid.Z)
}

// writeArtifact writes one preview file atomically.
func writeArtifact(fsys fsutil.FileSystem, path string, render func(io.Writer) error) error {
	pf, err := fsys.CreateAtomic(path)
	if err != nil {
		return err
	}
	defer pf.Discard()
	if err := render(pf); err != nil {
		return err
	}
	return pf.Commit()
}

func recordRun(ctx context.Context, path string, rec history.RunRecord) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, rec)
}
