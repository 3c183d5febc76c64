// Package processing exposes the two entry points of the Sv engine:
// InterpolateSv fills masked gaps and RegridDataset puts every channel on a
// common range grid. Both accept an in-memory dataset or a path, validate
// it, and return a new dataset without modifying the input.
package processing

import (
	"fmt"
	"log/slog"
	"time"

	"svinterp/internal/logging"
	"svinterp/internal/models"
	"svinterp/pkg/interpolation"
	"svinterp/pkg/mask"
	"svinterp/pkg/regrid"
	"svinterp/pkg/store"
)

// Params holds the parameters of an interpolation run.
type Params struct {
	// Target is the decibel variable to fill. Empty means Sv. The result
	// is stored as Target + "_interpolated".
	Target string

	// Dim is the dimension interpolated along. Empty means ping_time.
	Dim string

	// Method selects linear or nearest-neighbour estimation.
	Method interpolation.Method

	// EdgeFill extends the nearest valid value into gaps at either end of
	// Dim instead of leaving them NaN.
	EdgeFill bool

	// MaskTypes restricts masking to masks whose mask_type is listed.
	// Empty applies every mask_* variable.
	MaskTypes []string

	// Workers bounds the number of channels processed concurrently.
	// Zero or less uses every CPU.
	Workers int

	// Logger receives stage logs. nil uses slog.Default.
	Logger *slog.Logger

	// ProgressCallback, when set, receives per-channel progress.
	ProgressCallback interpolation.ProgressCallback
}

// DefaultParams returns linear interpolation of Sv along ping_time without
// edge fill.
func DefaultParams() Params {
	return Params{
		Target: models.SvVar,
		Dim:    models.PingTimeDim,
		Method: interpolation.Linear,
	}
}

// RegridParams holds the parameters of a regrid run.
type RegridParams struct {
	regrid.Params

	// Logger receives stage logs. nil uses slog.Default.
	Logger *slog.Logger

	// ProgressCallback, when set, receives per-variable progress.
	ProgressCallback regrid.ProgressCallback
}

// DefaultRegridParams returns the finest-spacing policy with linear
// resampling.
func DefaultRegridParams() RegridParams {
	return RegridParams{Params: regrid.DefaultParams()}
}

// Processor runs interpolation and keeps the metrics of its last run.
type Processor struct {
	params  Params
	metrics Metrics
	runID   string
}

// NewProcessor creates a processor with the given parameters. Empty Target
// and Dim take their defaults.
func NewProcessor(params Params) *Processor {
	if params.Target == "" {
		params.Target = models.SvVar
	}
	if params.Dim == "" {
		params.Dim = models.PingTimeDim
	}
	return &Processor{params: params}
}

// Interpolate loads src, masks the target variable, fills its gaps along
// the configured dimension in linear power and returns a copy of the
// dataset with the result added as <target>_interpolated. Every existing
// variable, coordinate and attribute is carried over unchanged.
func (p *Processor) Interpolate(src store.Source) (*models.Dataset, error) {
	logger, runID := logging.NewRun(p.params.Logger, "interpolate")
	p.runID = runID
	start := time.Now()

	logger.Info("Step 1: loading dataset")
	ds, err := store.Load(src)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	target, ok := ds.DataVars[p.params.Target]
	if !ok {
		return nil, fmt.Errorf("%w: variable %q", store.ErrMissingField, p.params.Target)
	}
	// Integer Sv is read through a float copy; the output is always float.
	original, ok := target.AsFloats()
	if !ok {
		return nil, fmt.Errorf("variable %q must be numeric, got %s", p.params.Target, target.DType())
	}
	if !target.HasDim(p.params.Dim) {
		return nil, fmt.Errorf("%w: %q has dims %v, not %q",
			interpolation.ErrInvalidAxis, p.params.Target, target.Dims, p.params.Dim)
	}

	logger.Info("Step 2: applying masks", "masks", mask.Find(ds, p.params.MaskTypes...))
	masked, nMasked, err := mask.Apply(ds, p.params.Target, p.params.MaskTypes...)
	if err != nil {
		return nil, fmt.Errorf("failed to apply masks: %w", err)
	}
	logger.Debug("masks applied", "masked_samples", nMasked)

	logger.Info("Step 3: filling gaps",
		"dim", p.params.Dim, "method", p.params.Method.String(), "edge_fill", p.params.EdgeFill)
	filler := interpolation.NewGapFiller(interpolation.Params{
		Method:   p.params.Method,
		EdgeFill: p.params.EdgeFill,
		Workers:  p.params.Workers,
	})
	filler.SetProgressCallback(p.params.ProgressCallback)
	coord, _ := ds.CoordFloats(p.params.Dim)
	filled, stats, err := filler.Fill(target, masked, p.params.Dim, coord)
	if err != nil {
		return nil, fmt.Errorf("failed to fill gaps: %w", err)
	}
	for c, n := range stats.PerChannel {
		logger.Debug("channel filled", "channel", c, "filled", n)
	}

	out := ds.Copy()
	result := models.NewFloatVariable(
		append([]string(nil), target.Dims...),
		append([]int(nil), target.Shape...),
		filled)
	result.Attrs = models.CloneAttrs(target.Attrs)
	out.DataVars[p.params.Target+models.InterpolatedSuffix] = result

	p.metrics = calculateMetrics(original, masked, filled)
	p.metrics.FilledPerChannel = stats.PerChannel

	logger.Info("Step 4: interpolation complete",
		"output", p.params.Target+models.InterpolatedSuffix,
		"masked", p.metrics.Masked,
		"filled", p.metrics.Filled,
		"remaining_nan", p.metrics.Remaining,
		"duration", time.Since(start))
	return out, nil
}

// GetMetrics returns the metrics of the last Interpolate call.
func (p *Processor) GetMetrics() Metrics {
	return p.metrics
}

// RunID returns the run id of the last Interpolate call, as logged.
func (p *Processor) RunID() string {
	return p.runID
}

// InterpolateSv fills the masked gaps of Sv (or params.Target) in the
// dataset or path src. See Processor.Interpolate.
func InterpolateSv(src store.Source, params Params) (*models.Dataset, error) {
	return NewProcessor(params).Interpolate(src)
}

// RegridDataset loads src and resamples every range-dependent variable
// onto a common range grid. Dimension names, variable names and attributes
// are preserved.
func RegridDataset(src store.Source, params RegridParams) (*models.Dataset, error) {
	logger, _ := logging.NewRun(params.Logger, "regrid")
	start := time.Now()

	logger.Info("Step 1: loading dataset")
	ds, err := store.Load(src)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	logger.Info("Step 2: regridding", "policy", params.Policy.String(), "method", params.Method.String())
	r := regrid.NewRegridder(params.Params)
	r.SetProgressCallback(params.ProgressCallback)
	out, grid, err := r.Regrid(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to regrid: %w", err)
	}
	logger.Debug("channel spacing", "meters", grid.Channels)
	logger.Info("Step 3: regrid complete",
		"range_samples", len(grid.Values),
		"spacing_m", grid.Spacing,
		"duration", time.Since(start))
	return out, nil
}
