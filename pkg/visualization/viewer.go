// Package visualization renders echograms of dataset variables: PNG images
// through gonum/plot and an interactive HTML report through go-echarts.
package visualization

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"svinterp/internal/models"
	"svinterp/pkg/interpolation"
)

// ErrNoData is returned when an echogram holds no finite value.
var ErrNoData = errors.New("echogram has no finite values")

// Echogram is one channel of a variable laid out as ping_time columns by
// range rows. It implements plotter.GridXYZ.
type Echogram struct {
	Name    string
	Channel string

	values []float64
	pings  []float64
	ranges []float64
	min    float64
	max    float64
}

// Dims returns the number of pings and range samples.
func (e *Echogram) Dims() (c, r int) { return len(e.pings), len(e.ranges) }

// Z returns the value at ping c and range sample r.
func (e *Echogram) Z(c, r int) float64 { return e.values[c*len(e.ranges)+r] }

// X returns the position of ping c.
func (e *Echogram) X(c int) float64 { return e.pings[c] }

// Y returns the position of range sample r.
func (e *Echogram) Y(r int) float64 { return e.ranges[r] }

// Min returns the smallest finite value, or NaN.
func (e *Echogram) Min() float64 { return e.min }

// Max returns the largest finite value, or NaN.
func (e *Echogram) Max() float64 { return e.max }

// Viewer extracts and saves echograms from a dataset.
type Viewer struct {
	ds *models.Dataset

	// Width and Height size saved images.
	Width  vg.Length
	Height vg.Length

	// Colors is the palette size.
	Colors int
}

// NewViewer creates a viewer over ds.
func NewViewer(ds *models.Dataset) *Viewer {
	return &Viewer{
		ds:     ds,
		Width:  10 * vg.Inch,
		Height: 5 * vg.Inch,
		Colors: 64,
	}
}

// Channels returns the number of channels in the dataset.
func (v *Viewer) Channels() int {
	return v.ds.Dims()[models.ChannelDim]
}

// ExtractEchogram lays out channel ch of variable name. The variable must
// span channel and ping_time, and may span range_sample.
func (v *Viewer) ExtractEchogram(name string, ch int) (*Echogram, error) {
	variable, ok := v.ds.Var(name)
	if !ok {
		return nil, fmt.Errorf("%w: variable %q", models.ErrMissingField, name)
	}
	data, ok := variable.AsFloats()
	if !ok {
		return nil, fmt.Errorf("variable %q is not numeric", name)
	}
	cAxis, pAxis, rAxis := variable.Axis(models.ChannelDim), variable.Axis(models.PingTimeDim), variable.Axis(models.RangeSampleDim)
	if cAxis < 0 || pAxis < 0 {
		return nil, fmt.Errorf("variable %q needs %s and %s dims, has %v",
			name, models.ChannelDim, models.PingTimeDim, variable.Dims)
	}
	known := 2
	if rAxis >= 0 {
		known++
	}
	if len(variable.Dims) != known {
		return nil, fmt.Errorf("variable %q has unsupported dims %v", name, variable.Dims)
	}
	if ch < 0 || ch >= variable.Shape[cAxis] {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", ch, variable.Shape[cAxis])
	}

	strides := variable.Strides()
	nPing := variable.Shape[pAxis]
	nRange, rStride := 1, 0
	if rAxis >= 0 {
		nRange, rStride = variable.Shape[rAxis], strides[rAxis]
	}

	e := &Echogram{
		Name:    name,
		Channel: v.channelLabel(ch),
		values:  make([]float64, nPing*nRange),
		min:     math.Inf(1),
		max:     math.Inf(-1),
	}
	pingCoord, _ := v.ds.CoordFloats(models.PingTimeDim)
	e.pings = interpolation.Positions(pingCoord, nPing)
	if rAxis >= 0 {
		rangeCoord, _ := v.ds.CoordFloats(models.RangeSampleDim)
		e.ranges = interpolation.Positions(rangeCoord, nRange)
	} else {
		e.ranges = []float64{0}
	}

	for p := 0; p < nPing; p++ {
		base := ch*strides[cAxis] + p*strides[pAxis]
		for r := 0; r < nRange; r++ {
			x := data[base+r*rStride]
			e.values[p*nRange+r] = x
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			e.min = math.Min(e.min, x)
			e.max = math.Max(e.max, x)
		}
	}
	if math.IsInf(e.min, 1) {
		e.min, e.max = math.NaN(), math.NaN()
	}
	return e, nil
}

func (v *Viewer) channelLabel(ch int) string {
	coord, ok := v.ds.Coords[models.ChannelDim]
	if ok && coord.Len() > ch {
		switch d := coord.Data.(type) {
		case []string:
			return d[ch]
		case []int64:
			return fmt.Sprint(d[ch])
		case []float64:
			return fmt.Sprint(d[ch])
		}
	}
	return fmt.Sprint(ch)
}

// SaveEchogram renders e as a heat map with range increasing downwards.
// The image format follows the file extension.
func (v *Viewer) SaveEchogram(e *Echogram, filename string) error {
	if math.IsNaN(e.min) {
		return fmt.Errorf("%s channel %s: %w", e.Name, e.Channel, ErrNoData)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - channel %s", e.Name, e.Channel)
	p.X.Label.Text = models.PingTimeDim
	p.Y.Label.Text = models.RangeSampleDim
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	hm := plotter.NewHeatMap(e, palette.Heat(v.Colors, 1))
	hm.NaN = color.Transparent
	if e.min == e.max {
		hm.Min, hm.Max = e.min-0.5, e.max+0.5
	}
	p.Add(hm)

	if err := p.Save(v.Width, v.Height, filename); err != nil {
		return fmt.Errorf("failed to save echogram: %w", err)
	}
	return nil
}

// SaveEchogramSequence extracts and saves one image per channel of
// variable name into outputDir and returns the file paths.
func (v *Viewer) SaveEchogramSequence(name string, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var files []string
	for ch := 0; ch < v.Channels(); ch++ {
		e, err := v.ExtractEchogram(name, ch)
		if err != nil {
			return files, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_ch%02d.png", name, ch))
		if err := v.SaveEchogram(e, filename); err != nil {
			if errors.Is(err, ErrNoData) {
				continue
			}
			return files, err
		}
		files = append(files, filename)
	}
	return files, nil
}
