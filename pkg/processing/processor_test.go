package processing

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svinterp/internal/logging"
	"svinterp/internal/models"
	"svinterp/pkg/interpolation"
	"svinterp/pkg/mask"
	"svinterp/pkg/regrid"
	"svinterp/pkg/store"
)

var nan = math.NaN()

// scenarioDataset is Sv = [[10, 20], [30, 40]] over (ping_time, channel)
// with the diagonal flagged by mask_transient.
func scenarioDataset() *models.Dataset {
	ds := models.NewDataset()
	ds.Coords[models.PingTimeDim] = models.NewFloatVariable([]string{models.PingTimeDim}, []int{2}, []float64{1, 2})
	ds.Coords[models.ChannelDim] = models.NewIntVariable([]string{models.ChannelDim}, []int{2}, []int64{1, 2})
	dims := []string{models.PingTimeDim, models.ChannelDim}
	ds.DataVars[models.SvVar] = models.NewFloatVariable(dims, []int{2, 2}, []float64{10, 20, 30, 40})
	m := models.NewBoolVariable(dims, []int{2, 2}, []bool{true, false, false, true})
	m.Attrs[mask.TypeAttr] = "transient"
	ds.DataVars["mask_transient"] = m
	ds.Attrs["title"] = "scenario"
	return ds
}

// surveyDataset is a 2-channel, 6-ping, 3-sample grid with scattered
// masked samples and echo ranges at two resolutions.
func surveyDataset() *models.Dataset {
	ds := models.NewDataset()
	dims := []string{models.ChannelDim, models.PingTimeDim, models.RangeSampleDim}
	shape := []int{2, 6, 3}
	ds.Coords[models.ChannelDim] = models.NewStringVariable([]string{models.ChannelDim}, []int{2}, []string{"38k", "120k"})
	ds.Coords[models.PingTimeDim] = models.NewFloatVariable([]string{models.PingTimeDim}, []int{6}, []float64{0, 1, 2, 3, 4, 5})
	ds.Coords[models.RangeSampleDim] = models.NewIntVariable([]string{models.RangeSampleDim}, []int{3}, []int64{0, 1, 2})

	sv := make([]float64, 36)
	er := make([]float64, 36)
	noise := make([]bool, 36)
	for c := 0; c < 2; c++ {
		for p := 0; p < 6; p++ {
			for r := 0; r < 3; r++ {
				i := c*18 + p*3 + r
				sv[i] = -60 - float64(10*c+2*r) - 0.5*float64(p)
				er[i] = float64(r) * (0.5 + 0.5*float64(c))
				noise[i] = (p+r+c)%4 == 0
			}
		}
	}
	ds.DataVars[models.SvVar] = models.NewFloatVariable(dims, shape, sv)
	ds.DataVars[models.SvVar].Attrs["units"] = "dB"
	ds.DataVars[models.EchoRangeVar] = models.NewFloatVariable(dims, shape, er)
	m := models.NewBoolVariable(dims, shape, noise)
	m.Attrs[mask.TypeAttr] = "impulse"
	ds.DataVars["mask_impulse"] = m
	ds.DataVars["temperature"] = models.NewFloatVariable([]string{models.PingTimeDim}, []int{6}, []float64{8, 8, 8, 9, 9, 9})
	ds.Attrs["platform"] = "RV Test"
	return ds
}

func quietParams() Params {
	params := DefaultParams()
	params.Logger = logging.Discard()
	return params
}

func TestScenarioKeepsSvAndAddsInterpolated(t *testing.T) {
	ds := scenarioDataset()
	out, err := InterpolateSv(ds, quietParams())
	require.NoError(t, err)

	require.Contains(t, out.DataVars, "Sv_interpolated")
	sv, _ := out.DataVars[models.SvVar].Floats()
	assert.Equal(t, []float64{10, 20, 30, 40}, sv, "Sv is left untouched")
	assert.False(t, math.IsNaN(sv[0]))

	// Without edge fill the masked corners have a neighbour on one side only.
	got, _ := out.DataVars["Sv_interpolated"].Floats()
	assert.True(t, math.IsNaN(got[0]), "leading gap stays NaN, got %v", got[0])
	assert.True(t, math.IsNaN(got[3]), "trailing gap stays NaN, got %v", got[3])
	assert.Equal(t, 20.0, got[1])
	assert.Equal(t, 30.0, got[2])
}

func TestScenarioIntegerSv(t *testing.T) {
	ds := scenarioDataset()
	sv := ds.DataVars[models.SvVar]
	ds.DataVars[models.SvVar] = models.NewIntVariable(sv.Dims, sv.Shape, []int64{10, 20, 30, 40})

	params := quietParams()
	params.EdgeFill = true
	out, err := InterpolateSv(ds, params)
	require.NoError(t, err)

	assert.Equal(t, models.Int64, out.DataVars[models.SvVar].DType(), "Sv keeps its type")
	result := out.DataVars["Sv_interpolated"]
	require.Equal(t, models.Float64, result.DType())
	got, _ := result.Floats()
	assert.InDelta(t, 30, got[0], 1e-9)
	assert.Equal(t, 20.0, got[1])
	assert.Equal(t, 30.0, got[2])
	assert.InDelta(t, 20, got[3], 1e-9)
}

func TestScenarioEdgeFillReachesMaskedCorner(t *testing.T) {
	params := quietParams()
	params.EdgeFill = true
	out, err := InterpolateSv(scenarioDataset(), params)
	require.NoError(t, err)

	got, _ := out.DataVars["Sv_interpolated"].Floats()
	// (ping_time=1, channel=1) takes its only neighbour along ping_time.
	assert.InDelta(t, 30, got[0], 1e-9)
	assert.InDelta(t, 20, got[3], 1e-9)
	assert.Equal(t, 20.0, got[1])
	assert.Equal(t, 30.0, got[2])
}

func TestAllNaNStaysNaN(t *testing.T) {
	ds := surveyDataset()
	sv, _ := ds.DataVars[models.SvVar].Floats()
	for i := range sv {
		sv[i] = nan
	}
	for _, edge := range []bool{false, true} {
		params := quietParams()
		params.EdgeFill = edge
		out, err := InterpolateSv(ds, params)
		require.NoError(t, err)
		got, _ := out.DataVars["Sv_interpolated"].Floats()
		for i, x := range got {
			assert.True(t, math.IsNaN(x), "edge=%t index %d", edge, i)
		}
	}
}

func TestInterpolationIsDeterministic(t *testing.T) {
	ds := surveyDataset()
	a, err := InterpolateSv(ds.Copy(), quietParams())
	require.NoError(t, err)
	params := quietParams()
	params.Workers = 1
	b, err := InterpolateSv(ds.Copy(), params)
	require.NoError(t, err)

	if diff := cmp.Diff(a.DataVars["Sv_interpolated"], b.DataVars["Sv_interpolated"], cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("Sv_interpolated differs between copies (-a +b):\n%s", diff)
	}
}

func TestInterpolationPreservesEverythingElse(t *testing.T) {
	ds := surveyDataset()
	before := ds.Copy()

	out, err := InterpolateSv(ds, quietParams())
	require.NoError(t, err)

	if diff := cmp.Diff(before, ds, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("input modified (-before +after):\n%s", diff)
	}
	stripped := out.Copy()
	delete(stripped.DataVars, "Sv_interpolated")
	if diff := cmp.Diff(before, stripped, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("existing content changed (-before +after):\n%s", diff)
	}
	assert.Equal(t, "dB", out.DataVars["Sv_interpolated"].Attrs["units"])
}

func TestEdgeFillEnlargesValidSet(t *testing.T) {
	ds := surveyDataset()
	plain, err := InterpolateSv(ds, quietParams())
	require.NoError(t, err)
	params := quietParams()
	params.EdgeFill = true
	edged, err := InterpolateSv(ds, params)
	require.NoError(t, err)

	p, _ := plain.DataVars["Sv_interpolated"].Floats()
	e, _ := edged.DataVars["Sv_interpolated"].Floats()
	gained := 0
	for i := range p {
		if !math.IsNaN(p[i]) {
			assert.False(t, math.IsNaN(e[i]), "index %d lost its value", i)
		} else if !math.IsNaN(e[i]) {
			gained++
		}
	}
	assert.Positive(t, gained)
}

func TestMetrics(t *testing.T) {
	p := NewProcessor(quietParams())
	_, err := p.Interpolate(surveyDataset())
	require.NoError(t, err)

	m := p.GetMetrics()
	// (p+r+c)%4 == 0 holds for 4 samples per channel.
	assert.Equal(t, 8, m.Masked)
	assert.Equal(t, 8, m.Missing)
	assert.Equal(t, m.Missing, m.Filled+m.Remaining)
	assert.Len(t, m.FilledPerChannel, 2)
	assert.Equal(t, 0.0, m.RMSE)
	assert.False(t, math.IsNaN(m.MaskedRMSE))
	assert.Less(t, m.MaskedRMSE, 3.0)
	assert.InDelta(t, float64(m.Filled)/8, m.FillRatio(), 1e-12)
}

func TestMaskTypeFilter(t *testing.T) {
	params := quietParams()
	params.MaskTypes = []string{"seabed"}
	p := NewProcessor(params)
	out, err := p.Interpolate(surveyDataset())
	require.NoError(t, err)
	assert.Equal(t, 0, p.GetMetrics().Masked)

	sv, _ := out.DataVars[models.SvVar].Floats()
	got, _ := out.DataVars["Sv_interpolated"].Floats()
	assert.Equal(t, sv, got)
}

func TestInterpolateAlongRangeSample(t *testing.T) {
	params := quietParams()
	params.Dim = models.RangeSampleDim
	params.Method = interpolation.Nearest
	out, err := InterpolateSv(surveyDataset(), params)
	require.NoError(t, err)
	assert.Contains(t, out.DataVars, "Sv_interpolated")
}

func TestInterpolateErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := InterpolateSv(store.Path(filepath.Join(t.TempDir(), "missing.nc")), quietParams())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("plain string", func(t *testing.T) {
		_, err := InterpolateSv(store.Path("invalid_input"), quietParams())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("missing Sv", func(t *testing.T) {
		ds := surveyDataset()
		delete(ds.DataVars, models.SvVar)
		_, err := InterpolateSv(ds, quietParams())
		assert.ErrorIs(t, err, store.ErrMissingField)
	})

	t.Run("missing channel", func(t *testing.T) {
		ds := models.NewDataset()
		ds.DataVars[models.SvVar] = models.NewFloatVariable([]string{models.PingTimeDim}, []int{2}, []float64{1, 2})
		_, err := InterpolateSv(ds, quietParams())
		assert.ErrorIs(t, err, store.ErrMissingField)
	})

	t.Run("unknown dimension", func(t *testing.T) {
		params := quietParams()
		params.Dim = "depth"
		_, err := InterpolateSv(surveyDataset(), params)
		assert.ErrorIs(t, err, interpolation.ErrInvalidAxis)
	})

	t.Run("channel dimension", func(t *testing.T) {
		params := quietParams()
		params.Dim = models.ChannelDim
		_, err := InterpolateSv(surveyDataset(), params)
		assert.ErrorIs(t, err, interpolation.ErrInvalidAxis)
	})
}

func TestInterpolateFromZarrPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "survey.zarr")
	require.NoError(t, store.SaveZarr(surveyDataset(), p))

	fromPath, err := InterpolateSv(store.Path(p), quietParams())
	require.NoError(t, err)
	fromMemory, err := InterpolateSv(surveyDataset(), quietParams())
	require.NoError(t, err)
	if diff := cmp.Diff(fromMemory, fromPath, cmpopts.EquateNaNs(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("path and in-memory results differ (-memory +path):\n%s", diff)
	}
}

func TestInterpolateFromHDF5Path(t *testing.T) {
	small := func() *models.Dataset {
		ds := models.NewDataset()
		ds.Coords[models.ChannelDim] = models.NewIntVariable([]string{models.ChannelDim}, []int{2}, []int64{1, 2})
		ds.Coords[models.PingTimeDim] = models.NewFloatVariable([]string{models.PingTimeDim}, []int{3}, []float64{0, 1, 2})
		dims := []string{models.PingTimeDim, models.ChannelDim}
		ds.DataVars[models.SvVar] = models.NewFloatVariable(dims, []int{3, 2}, []float64{-60, -70, -65, -75, -62, -72})
		m := models.NewBoolVariable(dims, []int{3, 2}, []bool{false, false, true, false, false, false})
		m.Attrs[mask.TypeAttr] = "impulse"
		ds.DataVars["mask_impulse"] = m
		return ds
	}

	for name, build := range map[string]func() *models.Dataset{
		"survey": surveyDataset,
		"small":  small,
	} {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), name+".nc")
			require.NoError(t, store.SaveHDF5(build(), p))

			fromPath, err := InterpolateSv(store.Path(p), quietParams())
			require.NoError(t, err)
			fromMemory, err := InterpolateSv(build(), quietParams())
			require.NoError(t, err)
			if diff := cmp.Diff(fromMemory, fromPath, cmpopts.EquateNaNs(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("path and in-memory results differ (-memory +path):\n%s", diff)
			}
		})
	}
}

func TestRunLogsCarryRunID(t *testing.T) {
	var buf bytes.Buffer
	params := DefaultParams()
	params.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewProcessor(params)
	_, err := p.Interpolate(surveyDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, p.RunID(), rec["run_id"])
		assert.Equal(t, "interpolate", rec["operation"])
	}
}

func TestRegridDatasetPreservesStructure(t *testing.T) {
	ds := surveyDataset()
	params := DefaultRegridParams()
	params.Logger = logging.Discard()
	out, err := RegridDataset(ds, params)
	require.NoError(t, err)

	assert.Equal(t, ds.DimNames(), out.DimNames())
	assert.Equal(t, ds.VariableNames(), out.VariableNames())
	assert.Equal(t, ds.Attrs, out.Attrs)
	// 0.5 m and 1 m channels over 0..2 m at the finest spacing.
	assert.Equal(t, 5, out.Dims()[models.RangeSampleDim])
	assert.Equal(t, ds.DataVars["temperature"], out.DataVars["temperature"])
}

func TestRegridAfterInterpolation(t *testing.T) {
	interpolated, err := InterpolateSv(surveyDataset(), quietParams())
	require.NoError(t, err)

	params := DefaultRegridParams()
	params.Logger = logging.Discard()
	params.Policy = regrid.Coarsest
	out, err := RegridDataset(interpolated, params)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6, 3}, out.DataVars["Sv_interpolated"].Shape)
}

func TestRegridUngriddable(t *testing.T) {
	ds := surveyDataset()
	er, _ := ds.DataVars[models.EchoRangeVar].Floats()
	for i := range er {
		er[i] = 1
	}
	params := DefaultRegridParams()
	params.Logger = logging.Discard()
	_, err := RegridDataset(ds, params)
	assert.ErrorIs(t, err, regrid.ErrUngriddableChannel)
}
