package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"svinterp/internal/logging"
	"svinterp/internal/models"
	"svinterp/pkg/config"
	"svinterp/pkg/processing"
	"svinterp/pkg/regrid"
	"svinterp/pkg/store"
	"svinterp/pkg/visualization"
)

func main() {
	// Parse command line arguments
	input := flag.String("input", "", "Sv dataset to process (netCDF4/HDF5 file or zarr directory)")
	configPath := flag.String("config", "", "YAML configuration file")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	output := flag.String("output", "", "Output dataset path (.zarr for zarr, HDF5 otherwise)")
	method := flag.String("method", "", "Interpolation method: linear or nearest")
	dim := flag.String("dim", "", "Dimension to interpolate along")
	edgeFill := flag.Bool("edge-fill", false, "Fill leading and trailing gaps with the nearest valid value")
	workers := flag.Int("workers", 0, "Channels processed concurrently (default: config or all CPUs)")
	doRegrid := flag.Bool("regrid", false, "Put every channel on a common range grid after interpolation")
	policy := flag.String("policy", "", "Regrid spacing policy: finest, coarsest or fixed")
	spacing := flag.Float64("spacing", 0, "Regrid spacing in meters for the fixed policy")
	depth := flag.Bool("depth", false, "Relabel range_sample with depth in meters")
	depthOffset := flag.Float64("depth-offset", 0, "Transducer depth in meters")
	tilt := flag.Float64("tilt", 0, "Beam tilt from vertical in degrees")
	upward := flag.Bool("upward", false, "Transducer looks up, so depth decreases with range (with -depth)")
	binMeters := flag.Float64("bin-meters", 0, "Report how many range samples a vertical bin of this size spans")
	plotDir := flag.String("plot-dir", "", "Directory for echogram PNGs and the HTML report")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags given explicitly win over the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "method":
			cfg.Interpolation.Method = *method
		case "dim":
			cfg.Interpolation.Dim = *dim
		case "edge-fill":
			cfg.Interpolation.EdgeFill = *edgeFill
		case "workers":
			cfg.Processing.Workers = *workers
		case "policy":
			cfg.Regrid.SpacingPolicy = *policy
		case "spacing":
			cfg.Regrid.Spacing = *spacing
		case "plot-dir":
			cfg.Output.PlotDir = *plotDir
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Output.LogLevel, cfg.Output.LogFormat)
	logger := slog.Default()

	params, err := cfg.InterpolationParams()
	if err != nil {
		fatal(logger, "invalid interpolation parameters", err)
	}
	params.Logger = logger
	params.ProgressCallback = func(completed, total int, message string) {
		logger.Debug("progress", "completed", completed, "total", total, "message", message)
	}

	fmt.Println("================================")
	fmt.Println("Sv GAP INTERPOLATION AND RANGE REGRIDDING")
	fmt.Println("================================")

	startTime := time.Now()
	processor := processing.NewProcessor(params)
	ds, err := processor.Interpolate(store.Path(*input))
	if err != nil {
		fatal(logger, "interpolation failed", err)
	}

	metrics := processor.GetMetrics()
	fmt.Printf("\nInterpolation completed in %.2f seconds (run %s)\n", time.Since(startTime).Seconds(), processor.RunID())
	fmt.Printf("Method: %s along %s, edge fill %t\n", params.Method, params.Dim, params.EdgeFill)
	fmt.Printf("Masked samples:      %d\n", metrics.Masked)
	fmt.Printf("Missing samples:     %d\n", metrics.Missing)
	fmt.Printf("Filled samples:      %d (%.1f%%)\n", metrics.Filled, 100*metrics.FillRatio())
	fmt.Printf("Remaining NaN:       %d\n", metrics.Remaining)
	for c, n := range metrics.FilledPerChannel {
		fmt.Printf("  channel %d filled: %d\n", c, n)
	}

	if *binMeters > 0 {
		bins, err := regrid.RangeSampleBins(ds, *binMeters)
		if err != nil {
			fatal(logger, "range bin conversion failed", err)
		}
		fmt.Printf("A %.4g m vertical bin spans %d range samples\n", *binMeters, bins)
	}

	if *doRegrid {
		regridParams, err := cfg.RegridParams()
		if err != nil {
			fatal(logger, "invalid regrid parameters", err)
		}
		regridParams.Logger = logger
		ds, err = processing.RegridDataset(ds, regridParams)
		if err != nil {
			fatal(logger, "regrid failed", err)
		}
		fmt.Printf("Regridded to %d range samples (%s spacing)\n",
			ds.Dims()[models.RangeSampleDim], regridParams.Policy)
	}

	if *depth {
		ds, err = regrid.AddDepth(ds, depthParams(*depthOffset, *tilt, *upward))
		if err != nil {
			fatal(logger, "depth conversion failed", err)
		}
	}

	if *output != "" {
		if err := store.Save(ds, *output, store.FormatFromPath(*output)); err != nil {
			fatal(logger, "failed to save output", err)
		}
		fmt.Printf("Output dataset saved to: %s\n", *output)
	}

	if cfg.Output.PlotDir != "" {
		savePlots(logger, ds, cfg.Output.PlotDir, params.Target)
	}
}

// savePlots writes echograms of the target before and after interpolation.
// Failures are logged and do not abort the run.
func savePlots(logger *slog.Logger, ds *models.Dataset, dir, target string) {
	viewer := visualization.NewViewer(ds)
	names := []string{target, target + models.InterpolatedSuffix}
	for _, name := range names {
		files, err := viewer.SaveEchogramSequence(name, dir)
		if err != nil {
			logger.Warn("failed to save echograms", "variable", name, "error", err)
			continue
		}
		fmt.Printf("Saved %d %s echograms to %s\n", len(files), name, dir)
	}
	report := filepath.Join(dir, "report.html")
	if err := viewer.SaveReport(report, names...); err != nil {
		logger.Warn("failed to save report", "error", err)
		return
	}
	fmt.Printf("Echogram report saved to: %s\n", report)
}

// depthParams maps the depth flags onto the transducer geometry.
func depthParams(offset, tilt float64, upward bool) regrid.DepthParams {
	return regrid.DepthParams{Offset: offset, Tilt: tilt, Downward: !upward}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
