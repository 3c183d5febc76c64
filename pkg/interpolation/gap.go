// Package interpolation fills masked gaps in Sv-like grids.
//
// Values are converted to the linear power domain before estimation and
// back to decibels afterwards, and each channel is processed independently
// along a single declared dimension.
package interpolation

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"svinterp/internal/models"
	"svinterp/pkg/decibel"
)

// ErrInvalidAxis is returned when the interpolation dimension is missing
// from the variable or coincides with the channel dimension.
var ErrInvalidAxis = errors.New("invalid interpolation dimension")

// ProgressCallback is a function that reports progress during interpolation.
// completed and total count channels; message is non-empty for stage notes.
type ProgressCallback func(completed, total int, message string)

// Params holds the parameters of a gap filling run.
type Params struct {
	Method   Method // Estimation used for interior gaps
	EdgeFill bool   // Extend the nearest valid value into leading/trailing gaps
	Workers  int    // Maximum concurrent channels; <= 0 uses runtime.NumCPU
}

// DefaultParams returns linear interpolation without edge fill.
func DefaultParams() Params {
	return Params{Method: Linear}
}

// Stats summarises a gap filling run.
type Stats struct {
	Filled     int   // NaN samples replaced by an estimate
	Remaining  int   // NaN samples still present in the output
	PerChannel []int // Filled samples per channel
}

// GapFiller fills NaN samples of a channelled variable along one dimension.
type GapFiller struct {
	params           Params
	progressCallback ProgressCallback
}

// NewGapFiller creates a gap filler with the given parameters.
func NewGapFiller(params Params) *GapFiller {
	return &GapFiller{params: params}
}

// SetProgressCallback sets a callback function to report progress.
func (g *GapFiller) SetProgressCallback(callback ProgressCallback) {
	g.progressCallback = callback
}

func (g *GapFiller) reportProgress(completed, total int, message string) {
	if g.progressCallback != nil {
		g.progressCallback(completed, total, message)
	}
}

// Fill estimates the NaN entries of values, laid out like v, along dim.
// values are decibels; v supplies dims and shape only. coord holds the
// positions along dim and may be nil to use sample indices.
//
// The returned slice is newly allocated; values is not modified and its
// non-NaN entries are carried over unchanged.
func (g *GapFiller) Fill(v *models.Variable, values []float64, dim string, coord []float64) ([]float64, Stats, error) {
	if len(values) != v.Size() {
		return nil, Stats{}, fmt.Errorf("values length %d does not match variable size %d", len(values), v.Size())
	}
	lineAxis := v.Axis(dim)
	if lineAxis < 0 {
		return nil, Stats{}, fmt.Errorf("%w: %q not in %v", ErrInvalidAxis, dim, v.Dims)
	}
	chAxis := v.Axis(models.ChannelDim)
	if chAxis < 0 {
		return nil, Stats{}, fmt.Errorf("%w: variable has no %q dimension", ErrInvalidAxis, models.ChannelDim)
	}
	if chAxis == lineAxis {
		return nil, Stats{}, fmt.Errorf("%w: cannot interpolate along %q", ErrInvalidAxis, dim)
	}

	out := decibel.ToLinear(values)
	n := v.Shape[lineAxis]
	stride := v.Strides()[lineAxis]
	pos := Positions(coord, n)
	lines := models.ChannelLines(v.Shape, chAxis, lineAxis)
	nChannels := len(lines)

	g.reportProgress(0, nChannels, fmt.Sprintf("Filling gaps along %s (%s, edge fill %t) in %d channels",
		dim, g.params.Method, g.params.EdgeFill, nChannels))

	perChannel := make([]int, nChannels)
	var mu sync.Mutex
	done := 0
	models.ForEachChannel(nChannels, g.params.Workers, func(c int) {
		buf := make([]float64, 0, n)
		filled := 0
		for _, start := range lines[c] {
			buf = models.Gather(out, start, stride, n, buf)
			if k := FillLine(pos, buf, g.params.Method, g.params.EdgeFill); k > 0 {
				models.Scatter(out, start, stride, buf)
				filled += k
			}
		}
		perChannel[c] = filled

		mu.Lock()
		done++
		g.reportProgress(done, nChannels, "")
		mu.Unlock()
	})

	for i, x := range values {
		if !math.IsNaN(x) {
			out[i] = x
		} else {
			out[i] = decibel.Decibel(out[i])
		}
	}

	stats := Stats{PerChannel: perChannel, Remaining: models.CountNaN(out)}
	for _, k := range perChannel {
		stats.Filled += k
	}
	return out, stats, nil
}
