package regrid

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"svinterp/internal/models"
)

// ErrUngriddableChannel is returned when a channel's echo range cannot
// produce a finite, positive sample spacing.
var ErrUngriddableChannel = errors.New("channel range cannot be gridded")

// SpacingPolicy selects the spacing of the common range grid.
type SpacingPolicy int

const (
	// Finest uses the smallest channel spacing so no channel is down-sampled.
	Finest SpacingPolicy = iota
	// Coarsest uses the largest channel spacing.
	Coarsest
	// Fixed uses a caller supplied spacing.
	Fixed
)

func (p SpacingPolicy) String() string {
	switch p {
	case Finest:
		return "finest"
	case Coarsest:
		return "coarsest"
	case Fixed:
		return "fixed"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseSpacingPolicy converts "finest", "coarsest" or "fixed" to a policy.
// The empty string selects Finest.
func ParseSpacingPolicy(s string) (SpacingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "finest":
		return Finest, nil
	case "coarsest":
		return Coarsest, nil
	case "fixed":
		return Fixed, nil
	default:
		return 0, fmt.Errorf("unknown spacing policy %q (want finest, coarsest or fixed)", s)
	}
}

// echoRange returns the echo range variable, checked to span channel and
// range_sample.
func echoRange(ds *models.Dataset) (*models.Variable, []float64, error) {
	er, ok := ds.Var(models.EchoRangeVar)
	if !ok {
		return nil, nil, fmt.Errorf("%w: variable %q", models.ErrMissingField, models.EchoRangeVar)
	}
	if !er.HasDim(models.ChannelDim) || !er.HasDim(models.RangeSampleDim) {
		return nil, nil, fmt.Errorf("%w: %q must span %q and %q, has %v",
			models.ErrMissingField, models.EchoRangeVar, models.ChannelDim, models.RangeSampleDim, er.Dims)
	}
	data, ok := er.AsFloats()
	if !ok {
		return nil, nil, fmt.Errorf("%q is not numeric (%s)", models.EchoRangeVar, er.DType())
	}
	return er, data, nil
}

// firstPingRanges returns each channel's echo range at the first index of
// every other dimension, normally the first ping.
func firstPingRanges(er *models.Variable, data []float64) [][]float64 {
	chAxis := er.Axis(models.ChannelDim)
	rAxis := er.Axis(models.RangeSampleDim)
	strides := er.Strides()
	n := er.Shape[rAxis]
	out := make([][]float64, er.Shape[chAxis])
	for c := range out {
		out[c] = models.Gather(data, c*strides[chAxis], strides[rAxis], n, make([]float64, 0, n))
	}
	return out
}

// rangeLines locates the echo range line that positions a line of a
// range-dependent variable: same channel, same ping and so on. Dimensions
// the variable lacks are taken at index 0.
type rangeLines struct {
	er   *models.Variable
	data []float64
}

// all returns the valid prefix of every echo range line.
func (rl rangeLines) all() [][]float64 {
	rAxis := rl.er.Axis(models.RangeSampleDim)
	stride := rl.er.Strides()[rAxis]
	n := rl.er.Shape[rAxis]
	var out [][]float64
	for _, start := range models.Lines(rl.er.Shape, rAxis) {
		out = append(out, validPrefix(models.Gather(rl.data, start, stride, n, make([]float64, 0, n))))
	}
	return out
}

// check reports dimensions whose length differs between v and echo range.
func (rl rangeLines) check(v *models.Variable) error {
	for a, d := range rl.er.Dims {
		if d == models.RangeSampleDim {
			continue
		}
		if va := v.Axis(d); va >= 0 && v.Shape[va] != rl.er.Shape[a] {
			return fmt.Errorf("dimension %q has length %d but %d in %q",
				d, v.Shape[va], rl.er.Shape[a], models.EchoRangeVar)
		}
	}
	return nil
}

// at returns the valid prefix of the echo range line matching the line of
// v that starts at offset start.
func (rl rangeLines) at(v *models.Variable, start int) []float64 {
	vStrides := v.Strides()
	erStrides := rl.er.Strides()
	rAxis := rl.er.Axis(models.RangeSampleDim)
	off := 0
	for a, d := range rl.er.Dims {
		if a == rAxis {
			continue
		}
		if va := v.Axis(d); va >= 0 {
			off += (start / vStrides[va] % v.Shape[va]) * erStrides[a]
		}
	}
	n := rl.er.Shape[rAxis]
	return validPrefix(models.Gather(rl.data, off, erStrides[rAxis], n, make([]float64, 0, n)))
}

// meanDiff returns the mean increment between consecutive finite samples,
// or NaN when there is none.
func meanDiff(r []float64) float64 {
	var diffs []float64
	for i := 1; i < len(r); i++ {
		d := r[i] - r[i-1]
		if !math.IsNaN(d) && !math.IsInf(d, 0) {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return math.NaN()
	}
	return stat.Mean(diffs, nil)
}

// validPrefix returns the leading finite, strictly increasing part of r.
func validPrefix(r []float64) []float64 {
	n := 0
	for n < len(r) {
		x := r[n]
		if math.IsNaN(x) || math.IsInf(x, 0) || (n > 0 && x <= r[n-1]) {
			break
		}
		n++
	}
	return r[:n]
}

func channelLabel(ds *models.Dataset, c int) string {
	if v, ok := ds.Coords[models.ChannelDim]; ok && c < v.Size() {
		switch data := v.Data.(type) {
		case []string:
			return data[c]
		case []int64:
			return fmt.Sprint(data[c])
		case []float64:
			return fmt.Sprint(data[c])
		}
	}
	return fmt.Sprint(c)
}

// ChannelSpacing returns the mean echo range increment of every channel at
// the first ping. Later pings only widen the grid extent. A channel whose range has fewer than two samples, is not
// strictly increasing, or yields a non-finite or non-positive spacing is
// reported with ErrUngriddableChannel.
func ChannelSpacing(ds *models.Dataset) ([]float64, error) {
	er, data, err := echoRange(ds)
	if err != nil {
		return nil, err
	}
	ranges := firstPingRanges(er, data)
	out := make([]float64, len(ranges))
	for c, r := range ranges {
		prefix := validPrefix(r)
		if len(prefix) < 2 {
			return nil, fmt.Errorf("%w: channel %s has %d increasing range samples, need at least 2",
				ErrUngriddableChannel, channelLabel(ds, c), len(prefix))
		}
		if len(prefix) < len(r) && !allNaN(r[len(prefix):]) {
			return nil, fmt.Errorf("%w: channel %s range is not increasing after sample %d",
				ErrUngriddableChannel, channelLabel(ds, c), len(prefix)-1)
		}
		d := meanDiff(r)
		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return nil, fmt.Errorf("%w: channel %s spacing %v", ErrUngriddableChannel, channelLabel(ds, c), d)
		}
		out[c] = d
	}
	return out, nil
}

func allNaN(x []float64) bool {
	for _, v := range x {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Grid is a common range grid together with the per-channel information it
// was derived from.
type Grid struct {
	Values   []float64 // Range of each output sample, ascending
	Spacing  float64   // Increment between consecutive Values
	Channels []float64 // Mean spacing of every input channel
}

// CommonGrid derives the common range grid: spacing from the policy and an
// extent covering the union of every channel's range over all pings.
func CommonGrid(ds *models.Dataset, params Params) (*Grid, error) {
	spacings, err := ChannelSpacing(ds)
	if err != nil {
		return nil, err
	}
	if len(spacings) == 0 {
		return nil, fmt.Errorf("%w: dataset has no channels", models.ErrMissingField)
	}

	var step float64
	switch params.Policy {
	case Finest:
		step = floats.Min(spacings)
	case Coarsest:
		step = floats.Max(spacings)
	case Fixed:
		step = params.Spacing
		if math.IsNaN(step) || math.IsInf(step, 0) || step <= 0 {
			return nil, fmt.Errorf("fixed spacing must be finite and positive, got %v", step)
		}
	default:
		return nil, fmt.Errorf("unknown spacing policy %v", params.Policy)
	}

	er, data, _ := echoRange(ds)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, prefix := range (rangeLines{er: er, data: data}).all() {
		if len(prefix) == 0 {
			continue
		}
		lo = math.Min(lo, prefix[0])
		hi = math.Max(hi, prefix[len(prefix)-1])
	}

	n := int(math.Floor((hi-lo)/step+1e-9)) + 1
	values := make([]float64, n)
	for k := range values {
		values[k] = lo + float64(k)*step
	}
	return &Grid{Values: values, Spacing: step, Channels: spacings}, nil
}

// RangeSampleBins converts a vertical bin size in metres to a number of
// range samples: per channel binMeters divided by its mean spacing,
// truncated, and the minimum over all channels.
func RangeSampleBins(ds *models.Dataset, binMeters float64) (int, error) {
	er, data, err := echoRange(ds)
	if err != nil {
		return 0, err
	}
	ranges := firstPingRanges(er, data)
	if len(ranges) == 0 {
		return 0, fmt.Errorf("%w: dataset has no channels", models.ErrMissingField)
	}
	best := math.MaxInt
	for c, r := range ranges {
		d := meanDiff(r)
		if math.IsNaN(d) {
			return 0, fmt.Errorf("%w: channel %s mean spacing is NaN, pass the bin count explicitly",
				ErrUngriddableChannel, channelLabel(ds, c))
		}
		if k := int(binMeters / d); k < best {
			best = k
		}
	}
	return best, nil
}
