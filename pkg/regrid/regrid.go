// Package regrid moves multi-channel echosounder data with heterogeneous
// range sampling onto one common range grid.
package regrid

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/interp"

	"svinterp/internal/models"
	"svinterp/pkg/decibel"
	"svinterp/pkg/interpolation"
)

// ProgressCallback reports progress during regridding; completed and total
// count variables.
type ProgressCallback func(completed, total int, message string)

// Params holds the parameters of a regrid run.
type Params struct {
	Policy  SpacingPolicy        // How the common spacing is chosen
	Spacing float64              // Grid spacing in metres when Policy is Fixed
	Method  interpolation.Method // Resampling of float variables
	Workers int                  // Maximum concurrent channels; <= 0 uses runtime.NumCPU

	// PowerVariables lists decibel variables resampled in linear power.
	// nil selects DefaultPowerVariables.
	PowerVariables []string
}

// DefaultPowerVariables are the decibel quantities resampled in linear power
// unless Params.PowerVariables says otherwise.
var DefaultPowerVariables = []string{models.SvVar, models.SvVar + models.InterpolatedSuffix}

// DefaultParams returns the finest-spacing policy with linear resampling.
func DefaultParams() Params {
	return Params{Policy: Finest, Method: interpolation.Linear}
}

// Regridder resamples every range-dependent variable of a dataset onto a
// common range grid.
type Regridder struct {
	params           Params
	progressCallback ProgressCallback
}

// NewRegridder creates a regridder with the given parameters.
func NewRegridder(params Params) *Regridder {
	return &Regridder{params: params}
}

// SetProgressCallback sets a callback function to report progress.
func (r *Regridder) SetProgressCallback(callback ProgressCallback) {
	r.progressCallback = callback
}

func (r *Regridder) reportProgress(completed, total int, message string) {
	if r.progressCallback != nil {
		r.progressCallback(completed, total, message)
	}
}

// Regrid is shorthand for NewRegridder(params).Regrid(ds).
func Regrid(ds *models.Dataset, params Params) (*models.Dataset, *Grid, error) {
	return NewRegridder(params).Regrid(ds)
}

// Regrid returns a copy of ds in which every variable indexed by
// range_sample is resampled onto the common grid. echo_range holds the grid
// itself and the range_sample coordinate is renumbered. Dimension names,
// variable names and attributes are carried over; ds is not modified.
func (r *Regridder) Regrid(ds *models.Dataset) (*models.Dataset, *Grid, error) {
	grid, err := CommonGrid(ds, r.params)
	if err != nil {
		return nil, nil, err
	}
	er, data, _ := echoRange(ds)
	sources := rangeLines{er: er, data: data}

	power := r.params.PowerVariables
	if power == nil {
		power = DefaultPowerVariables
	}

	out := ds.Copy()
	var names []string
	for _, name := range ds.VariableNames() {
		if v, _ := ds.Var(name); v.HasDim(models.RangeSampleDim) {
			names = append(names, name)
		}
	}
	r.reportProgress(0, len(names), fmt.Sprintf("Regridding %d variables onto %d range samples (spacing %.4g m, %s)",
		len(names), len(grid.Values), grid.Spacing, r.params.Policy))

	for i, name := range names {
		v, _ := ds.Var(name)
		var nv *models.Variable
		switch {
		case name == models.EchoRangeVar:
			nv = broadcastGrid(v, grid.Values)
		case name == models.RangeSampleDim && len(v.Dims) == 1:
			nv = renumber(v, len(grid.Values))
		default:
			nv, err = r.resample(v, sources, grid.Values, contains(power, name))
			if err != nil {
				return nil, nil, fmt.Errorf("regrid %q: %w", name, err)
			}
		}
		if _, ok := out.Coords[name]; ok {
			out.Coords[name] = nv
		} else {
			out.DataVars[name] = nv
		}
		r.reportProgress(i+1, len(names), "")
	}
	return out, grid, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func resizedShape(v *models.Variable, axis, n int) []int {
	shape := append([]int(nil), v.Shape...)
	shape[axis] = n
	return shape
}

func sizeOf(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// broadcastGrid builds the new echo range: grid values along range_sample
// repeated over every other dimension.
func broadcastGrid(v *models.Variable, grid []float64) *models.Variable {
	axis := v.Axis(models.RangeSampleDim)
	shape := resizedShape(v, axis, len(grid))
	data := make([]float64, sizeOf(shape))
	stride := models.Strides(shape)[axis]
	for _, start := range models.Lines(shape, axis) {
		models.Scatter(data, start, stride, grid)
	}
	nv := models.NewFloatVariable(append([]string(nil), v.Dims...), shape, data)
	nv.Attrs = models.CloneAttrs(v.Attrs)
	return nv
}

// renumber replaces a range_sample index coordinate with 0..n-1.
func renumber(v *models.Variable, n int) *models.Variable {
	var nv *models.Variable
	if v.DType() == models.Float64 {
		data := make([]float64, n)
		for i := range data {
			data[i] = float64(i)
		}
		nv = models.NewFloatVariable(append([]string(nil), v.Dims...), []int{n}, data)
	} else {
		data := make([]int64, n)
		for i := range data {
			data[i] = int64(i)
		}
		nv = models.NewIntVariable(append([]string(nil), v.Dims...), []int{n}, data)
	}
	nv.Attrs = models.CloneAttrs(v.Attrs)
	return nv
}

// lineGroups pairs input and output line offsets by channel. A variable
// without a channel dimension forms one group.
func lineGroups(v *models.Variable, outShape []int) (in, out [][]int) {
	rAxis := v.Axis(models.RangeSampleDim)
	if chAxis := v.Axis(models.ChannelDim); chAxis >= 0 {
		return models.ChannelLines(v.Shape, chAxis, rAxis), models.ChannelLines(outShape, chAxis, rAxis)
	}
	return [][]int{models.Lines(v.Shape, rAxis)}, [][]int{models.Lines(outShape, rAxis)}
}

// nearestIndex maps every grid point to the closest source sample, ties to
// the lower one, or -1 outside the source extent.
func nearestIndex(xs, grid []float64, tol float64) []int {
	idx := make([]int, len(grid))
	for k, g := range grid {
		if len(xs) == 0 || g < xs[0]-tol || g > xs[len(xs)-1]+tol {
			idx[k] = -1
			continue
		}
		j := sort.SearchFloat64s(xs, g)
		switch {
		case j == 0:
			idx[k] = 0
		case j == len(xs):
			idx[k] = len(xs) - 1
		case g-xs[j-1] <= xs[j]-g:
			idx[k] = j - 1
		default:
			idx[k] = j
		}
	}
	return idx
}

func takeNearest[T any](src, dst []T, inStart, inStride, outStart, outStride int, idx []int, fill T) {
	for k, j := range idx {
		if j < 0 {
			dst[outStart+k*outStride] = fill
		} else {
			dst[outStart+k*outStride] = src[inStart+j*inStride]
		}
	}
}

// resample moves every range_sample line of v onto grid. Each line is
// positioned by its own echo range line, so pings with different sampling
// land at the right range.
func (r *Regridder) resample(v *models.Variable, sources rangeLines, grid []float64, power bool) (*models.Variable, error) {
	if err := sources.check(v); err != nil {
		return nil, err
	}
	rAxis := v.Axis(models.RangeSampleDim)
	nIn := v.Shape[rAxis]
	outShape := resizedShape(v, rAxis, len(grid))
	inStride := v.Strides()[rAxis]
	outStride := models.Strides(outShape)[rAxis]
	inLines, outLines := lineGroups(v, outShape)

	tol := 1e-9
	if len(grid) > 1 {
		tol = 1e-9 * (grid[1] - grid[0])
	}
	// Source positions are truncated to the range samples the variable has.
	xsFor := func(start int) []float64 {
		xs := sources.at(v, start)
		if len(xs) > nIn {
			xs = xs[:nIn]
		}
		return xs
	}
	nearest := lineMapper{
		inLines: inLines, outLines: outLines,
		inStride: inStride, outStride: outStride,
		workers: r.params.Workers,
		index: func(start int) []int {
			return nearestIndex(xsFor(start), grid, tol)
		},
	}

	nv := &models.Variable{
		Dims:  append([]string(nil), v.Dims...),
		Shape: outShape,
		Attrs: models.CloneAttrs(v.Attrs),
	}
	size := sizeOf(outShape)

	switch data := v.Data.(type) {
	case []float64:
		dst := make([]float64, size)
		nv.Data = dst
		if r.params.Method == interpolation.Nearest {
			mapNearest(nearest, data, dst, math.NaN())
			break
		}
		var mu sync.Mutex
		var firstErr error
		models.ForEachChannel(len(inLines), r.params.Workers, func(c int) {
			line := make([]float64, 0, nIn)
			for i, start := range inLines[c] {
				xs := xsFor(start)
				line = models.Gather(data, start, inStride, len(xs), line)
				if power {
					decibel.ToLinearInPlace(line)
				}
				res, err := resampleLinear(xs, line, grid, tol)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("channel %d: %w", c, err)
					}
					mu.Unlock()
					return
				}
				if power {
					decibel.ToDecibelInPlace(res)
				}
				models.Scatter(dst, outLines[c][i], outStride, res)
			}
		})
		if firstErr != nil {
			return nil, firstErr
		}
	case []int64:
		dst := make([]int64, size)
		nv.Data = dst
		mapNearest(nearest, data, dst, 0)
	case []bool:
		dst := make([]bool, size)
		nv.Data = dst
		mapNearest(nearest, data, dst, false)
	case []string:
		dst := make([]string, size)
		nv.Data = dst
		mapNearest(nearest, data, dst, "")
	default:
		return nil, fmt.Errorf("unsupported data type %T", v.Data)
	}
	return nv, nil
}

// lineMapper carries the line layout shared by nearest-sample resampling
// of every element type.
type lineMapper struct {
	inLines, outLines   [][]int
	inStride, outStride int
	workers             int
	index               func(start int) []int
}

func mapNearest[T any](m lineMapper, src, dst []T, fill T) {
	models.ForEachChannel(len(m.inLines), m.workers, func(c int) {
		for i, start := range m.inLines[c] {
			takeNearest(src, dst, start, m.inStride, m.outLines[c][i], m.outStride, m.index(start), fill)
		}
	})
}

// resampleLinear evaluates the piecewise-linear interpolant through (xs, ys)
// at every grid point. Points outside the xs extent are NaN.
func resampleLinear(xs, ys, grid []float64, tol float64) ([]float64, error) {
	res := make([]float64, len(grid))
	if len(xs) < 2 {
		for k, g := range grid {
			res[k] = math.NaN()
			if len(xs) == 1 && math.Abs(g-xs[0]) <= tol {
				res[k] = ys[0]
			}
		}
		return res, nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, err
	}
	lo, hi := xs[0], xs[len(xs)-1]
	for k, g := range grid {
		switch {
		case g < lo-tol || g > hi+tol:
			res[k] = math.NaN()
		case g <= lo:
			res[k] = ys[0]
		case g >= hi:
			res[k] = ys[len(ys)-1]
		default:
			res[k] = pl.Predict(g)
		}
	}
	return res, nil
}
