package visualization

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echogramColors is the viridis ramp used for HTML echograms.
var echogramColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// HeatMap builds an interactive heat map of e. NaN cells are left empty.
func (v *Viewer) HeatMap(e *Echogram) *charts.HeatMap {
	nPing, nRange := e.Dims()
	xs := make([]string, nPing)
	for i := range xs {
		xs[i] = strconv.FormatFloat(e.X(i), 'g', 6, 64)
	}
	ys := make([]string, nRange)
	for j := range ys {
		ys[j] = strconv.FormatFloat(e.Y(j), 'g', 6, 64)
	}

	data := make([]opts.HeatMapData, 0, nPing*nRange)
	for i := 0; i < nPing; i++ {
		for j := 0; j < nRange; j++ {
			var z interface{} = "-"
			if x := e.Z(i, j); !math.IsNaN(x) && !math.IsInf(x, 0) {
				z = x
			}
			data = append(data, opts.HeatMapData{Value: []interface{}{i, j, z}})
		}
	}

	lo, hi := e.Min(), e.Max()
	if math.IsNaN(lo) {
		lo, hi = 0, 0
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: e.Name, Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: e.Name, Subtitle: fmt.Sprintf("channel=%s pings=%d samples=%d", e.Channel, nPing, nRange)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "ping_time"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "range", Data: ys, Inverse: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: echogramColors},
		}),
	)
	hm.SetXAxis(xs).AddSeries(e.Name, data)
	return hm
}

// WriteReport renders one heat map per channel of each named variable as a
// single HTML page.
func (v *Viewer) WriteReport(w io.Writer, names ...string) error {
	page := components.NewPage()
	page.SetPageTitle("Sv echograms")
	for _, name := range names {
		for ch := 0; ch < v.Channels(); ch++ {
			e, err := v.ExtractEchogram(name, ch)
			if err != nil {
				return err
			}
			page.AddCharts(v.HeatMap(e))
		}
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// SaveReport writes the WriteReport page to filename.
func (v *Viewer) SaveReport(filename string, names ...string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := v.WriteReport(f, names...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
