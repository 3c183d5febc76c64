package visualization

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svinterp/internal/models"
)

// echogramDataset builds Sv over (channel, ping_time, range_sample) with a
// NaN in channel 0 and an all-NaN channel 1 in Sv_interpolated.
func echogramDataset() *models.Dataset {
	ds := models.NewDataset()
	dims := []string{models.ChannelDim, models.PingTimeDim, models.RangeSampleDim}
	shape := []int{2, 4, 3}
	ds.Coords[models.ChannelDim] = models.NewStringVariable([]string{models.ChannelDim}, []int{2}, []string{"38k", "120k"})
	ds.Coords[models.RangeSampleDim] = models.NewFloatVariable([]string{models.RangeSampleDim}, []int{3}, []float64{0.5, 1, 1.5})

	sv := make([]float64, 24)
	for i := range sv {
		sv[i] = -90 + float64(i)
	}
	sv[4] = math.NaN()
	ds.DataVars[models.SvVar] = models.NewFloatVariable(dims, shape, sv)

	interp := append([]float64(nil), sv...)
	for i := 12; i < 24; i++ {
		interp[i] = math.NaN()
	}
	ds.DataVars["Sv_interpolated"] = models.NewFloatVariable(dims, shape, interp)
	ds.DataVars["label"] = models.NewStringVariable([]string{models.ChannelDim}, []int{2}, []string{"a", "b"})
	return ds
}

func TestExtractEchogram(t *testing.T) {
	v := NewViewer(echogramDataset())
	require.Equal(t, 2, v.Channels())

	e, err := v.ExtractEchogram(models.SvVar, 1)
	require.NoError(t, err)
	c, r := e.Dims()
	assert.Equal(t, 4, c)
	assert.Equal(t, 3, r)
	assert.Equal(t, "120k", e.Channel)
	// ping 2, sample 1 of channel 1 is flat index 12 + 2*3 + 1.
	assert.Equal(t, -90.0+19, e.Z(2, 1))
	assert.Equal(t, 2.0, e.X(2), "ping positions fall back to indices")
	assert.Equal(t, 1.5, e.Y(2), "range positions follow the coordinate")
	assert.Equal(t, -78.0, e.Min())
	assert.Equal(t, -67.0, e.Max())

	e0, err := v.ExtractEchogram(models.SvVar, 0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(e0.Z(1, 1)))
	assert.Equal(t, -90.0, e0.Min())
}

func TestExtractEchogramTwoDimensional(t *testing.T) {
	ds := models.NewDataset()
	ds.DataVars[models.SvVar] = models.NewFloatVariable(
		[]string{models.PingTimeDim, models.ChannelDim}, []int{3, 2}, []float64{1, 2, 3, 4, 5, 6})
	e, err := NewViewer(ds).ExtractEchogram(models.SvVar, 1)
	require.NoError(t, err)
	c, r := e.Dims()
	assert.Equal(t, 3, c)
	assert.Equal(t, 1, r)
	assert.Equal(t, []float64{2, 4, 6}, []float64{e.Z(0, 0), e.Z(1, 0), e.Z(2, 0)})
}

func TestExtractEchogramErrors(t *testing.T) {
	v := NewViewer(echogramDataset())

	_, err := v.ExtractEchogram("missing", 0)
	assert.ErrorIs(t, err, models.ErrMissingField)

	_, err = v.ExtractEchogram(models.SvVar, 2)
	assert.Error(t, err)

	_, err = v.ExtractEchogram("label", 0)
	assert.Error(t, err)
}

func TestSaveEchogramSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	v := NewViewer(echogramDataset())

	files, err := v.SaveEchogramSequence(models.SvVar, dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, name := range files {
		f, err := os.Open(name)
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(f)
		f.Close()
		require.NoError(t, err, name)
		assert.Positive(t, cfg.Width)
	}

	// The all-NaN channel is skipped.
	files, err = v.SaveEchogramSequence("Sv_interpolated", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "Sv_interpolated_ch00.png")}, files)
}

func TestSaveEchogramNoData(t *testing.T) {
	v := NewViewer(echogramDataset())
	e, err := v.ExtractEchogram("Sv_interpolated", 1)
	require.NoError(t, err)
	err = v.SaveEchogram(e, filepath.Join(t.TempDir(), "empty.png"))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestWriteReport(t *testing.T) {
	v := NewViewer(echogramDataset())
	var buf bytes.Buffer
	require.NoError(t, v.WriteReport(&buf, models.SvVar, "Sv_interpolated"))

	html := buf.String()
	assert.Contains(t, html, "echarts")
	assert.Equal(t, 4, strings.Count(html, "echarts.init("))
	assert.Contains(t, html, "Sv_interpolated")

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, v.SaveReport(path, models.SvVar))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
