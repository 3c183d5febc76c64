package interpolation

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svinterp/internal/models"
	"svinterp/pkg/decibel"
)

var nan = math.NaN()

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"", Linear, false},
		{"linear", Linear, false},
		{" Nearest ", Nearest, false},
		{"cubic", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Method {
	t.Helper()
	m, err := ParseMethod(s)
	require.NoError(t, err)
	return m
}

func TestPositions(t *testing.T) {
	assert.Equal(t, []float64{0, 1, 2}, Positions(nil, 3))
	assert.Equal(t, []float64{0.5, 1, 4}, Positions([]float64{0.5, 1, 4}, 3))
	assert.Equal(t, []float64{0, 1, 2}, Positions([]float64{3, 2, 1}, 3), "decreasing coordinate falls back to indices")
	assert.Equal(t, []float64{0, 1, 2}, Positions([]float64{0, nan, 2}, 3))
	assert.Equal(t, []float64{0, 1, 2}, Positions([]float64{0, 1}, 3), "length mismatch")
}

func TestFillLine(t *testing.T) {
	idx := func(n int) []float64 { return Positions(nil, n) }
	tests := []struct {
		name       string
		x, y       []float64
		method     Method
		edgeFill   bool
		want       []float64
		wantFilled int
	}{
		{"linear interior", idx(4), []float64{1, nan, nan, 4}, Linear, false, []float64{1, 2, 3, 4}, 2},
		{"linear uses coordinates", []float64{0, 1, 4}, []float64{0, nan, 4}, Linear, false, []float64{0, 1, 4}, 1},
		{"nearest tie goes to preceding", idx(3), []float64{1, nan, 3}, Nearest, false, []float64{1, 1, 3}, 1},
		{"nearest picks closer", idx(4), []float64{1, nan, nan, 4}, Nearest, false, []float64{1, 1, 4, 4}, 2},
		{"edges stay without edge fill", idx(3), []float64{nan, 2, nan}, Linear, false, []float64{nan, 2, nan}, 0},
		{"edge fill extends constant", idx(5), []float64{nan, 2, nan, 4, nan}, Linear, true, []float64{2, 2, 3, 4, 4}, 3},
		{"nearest edge fill", idx(3), []float64{nan, nan, 5}, Nearest, true, []float64{5, 5, 5}, 2},
		{"all NaN untouched", idx(3), []float64{nan, nan, nan}, Linear, true, []float64{nan, nan, nan}, 0},
		{"nothing to fill", idx(2), []float64{1, 2}, Linear, true, []float64{1, 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := append([]float64(nil), tt.y...)
			filled := FillLine(tt.x, y, tt.method, tt.edgeFill)
			assert.Equal(t, tt.wantFilled, filled)
			if diff := cmp.Diff(tt.want, y, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("FillLine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// pingChannel is the 2x2 (ping_time, channel) grid with its diagonal masked.
func pingChannel() (*models.Variable, []float64) {
	v := models.NewFloatVariable([]string{models.PingTimeDim, models.ChannelDim}, []int{2, 2}, []float64{10, 20, 30, 40})
	return v, []float64{nan, 20, 30, nan}
}

func TestFillWithoutEdgeFillLeavesBoundaryGaps(t *testing.T) {
	v, values := pingChannel()
	out, stats, err := NewGapFiller(DefaultParams()).Fill(v, values, models.PingTimeDim, nil)
	require.NoError(t, err)

	if diff := cmp.Diff([]float64{nan, 20, 30, nan}, out, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("Fill() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, stats.Filled)
	assert.Equal(t, 2, stats.Remaining)
	assert.Equal(t, []float64{nan, 20, 30, nan}[1:3], values[1:3], "input is not modified")
	assert.True(t, math.IsNaN(values[0]))
}

func TestFillWithEdgeFill(t *testing.T) {
	v, values := pingChannel()
	params := DefaultParams()
	params.EdgeFill = true
	out, stats, err := NewGapFiller(params).Fill(v, values, models.PingTimeDim, nil)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{30, 20, 30, 20}, out, 1e-9)
	assert.Equal(t, 20.0, out[1], "valid samples are carried over exactly")
	assert.Equal(t, 2, stats.Filled)
	assert.Equal(t, 0, stats.Remaining)
	assert.Equal(t, []int{1, 1}, stats.PerChannel)
}

func TestFillInterpolatesInLinearDomain(t *testing.T) {
	// channel x ping_time x range_sample = 2 x 3 x 2
	v := models.NewFloatVariable(
		[]string{models.ChannelDim, models.PingTimeDim, models.RangeSampleDim},
		[]int{2, 3, 2}, make([]float64, 12))
	values := []float64{
		-60, -50,
		nan, nan,
		-40, -30,

		-70, nan,
		-71, -72,
		-72, -73,
	}
	out, stats, err := NewGapFiller(DefaultParams()).Fill(v, values, models.PingTimeDim, nil)
	require.NoError(t, err)

	mid := func(a, b float64) float64 {
		return decibel.Decibel((decibel.Linear(a) + decibel.Linear(b)) / 2)
	}
	assert.InDelta(t, mid(-60, -40), out[2], 1e-9)
	assert.InDelta(t, mid(-50, -30), out[3], 1e-9)
	assert.NotEqual(t, -50.0, out[2], "result is not the dB midpoint")
	assert.True(t, math.IsNaN(out[7]), "leading gap of channel 1 stays NaN")
	assert.Equal(t, []int{2, 0}, stats.PerChannel)
	assert.Equal(t, 1, stats.Remaining)
}

func TestFillAlongRangeSample(t *testing.T) {
	v := models.NewFloatVariable(
		[]string{models.ChannelDim, models.PingTimeDim, models.RangeSampleDim},
		[]int{1, 2, 3}, make([]float64, 6))
	values := []float64{-20, nan, -20, nan, nan, nan}
	out, _, err := NewGapFiller(DefaultParams()).Fill(v, values, models.RangeSampleDim, nil)
	require.NoError(t, err)
	assert.InDelta(t, -20, out[1], 1e-9)
	for _, x := range out[3:] {
		assert.True(t, math.IsNaN(x), "all-NaN line stays NaN")
	}
}

func TestFillIsDeterministicAcrossWorkerCounts(t *testing.T) {
	const nCh, nPing, nRange = 5, 7, 3
	v := models.NewFloatVariable(
		[]string{models.ChannelDim, models.PingTimeDim, models.RangeSampleDim},
		[]int{nCh, nPing, nRange}, make([]float64, nCh*nPing*nRange))
	values := make([]float64, v.Size())
	for i := range values {
		values[i] = -80 + float64(i%11)
		if i%4 == 1 || i%9 == 0 {
			values[i] = nan
		}
	}

	var results [][]float64
	for _, workers := range []int{1, 2, 8} {
		params := Params{Method: Linear, Workers: workers}
		out, _, err := NewGapFiller(params).Fill(v, values, models.PingTimeDim, nil)
		require.NoError(t, err)
		results = append(results, out)
	}
	for i := 1; i < len(results); i++ {
		if diff := cmp.Diff(results[0], results[i], cmpopts.EquateNaNs()); diff != "" {
			t.Errorf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestEdgeFillIsSuperset(t *testing.T) {
	v := models.NewFloatVariable(
		[]string{models.ChannelDim, models.PingTimeDim}, []int{3, 5}, make([]float64, 15))
	values := []float64{
		nan, -10, nan, -12, nan,
		nan, nan, nan, nan, nan,
		-30, nan, nan, nan, nan,
	}
	for _, method := range []Method{Linear, Nearest} {
		t.Run(method.String(), func(t *testing.T) {
			plain, _, err := NewGapFiller(Params{Method: method}).Fill(v, values, models.PingTimeDim, nil)
			require.NoError(t, err)
			edged, _, err := NewGapFiller(Params{Method: method, EdgeFill: true}).Fill(v, values, models.PingTimeDim, nil)
			require.NoError(t, err)
			for i := range plain {
				if !math.IsNaN(plain[i]) {
					assert.False(t, math.IsNaN(edged[i]), "index %d", i)
					assert.Equal(t, plain[i], edged[i], "index %d", i)
				}
			}
			for _, x := range edged[5:10] {
				assert.True(t, math.IsNaN(x), "all-NaN channel stays NaN")
			}
		})
	}
}

func TestFillCoordinateAware(t *testing.T) {
	v := models.NewFloatVariable([]string{models.ChannelDim, models.PingTimeDim}, []int{1, 3}, make([]float64, 3))
	values := []float64{-10, nan, -20}
	pings := []float64{0, 1, 4}
	out, _, err := NewGapFiller(Params{Method: Nearest}).Fill(v, values, models.PingTimeDim, pings)
	require.NoError(t, err)
	assert.InDelta(t, -10, out[1], 1e-9, "closer to the first ping in time")
}

func TestFillErrors(t *testing.T) {
	v, values := pingChannel()
	g := NewGapFiller(DefaultParams())

	_, _, err := g.Fill(v, values, models.RangeSampleDim, nil)
	assert.ErrorIs(t, err, ErrInvalidAxis)

	_, _, err = g.Fill(v, values, models.ChannelDim, nil)
	assert.ErrorIs(t, err, ErrInvalidAxis)

	noChannel := models.NewFloatVariable([]string{models.PingTimeDim}, []int{4}, make([]float64, 4))
	_, _, err = g.Fill(noChannel, values, models.PingTimeDim, nil)
	assert.ErrorIs(t, err, ErrInvalidAxis)

	_, _, err = g.Fill(v, values[:3], models.PingTimeDim, nil)
	assert.Error(t, err)
}

func TestFillReportsProgress(t *testing.T) {
	v := models.NewFloatVariable([]string{models.ChannelDim, models.PingTimeDim}, []int{4, 2}, make([]float64, 8))
	values := []float64{1, nan, 2, nan, 3, nan, 4, nan}

	var mu sync.Mutex
	var messages []string
	maxDone := 0
	g := NewGapFiller(Params{Method: Linear, Workers: 2, EdgeFill: true})
	g.SetProgressCallback(func(completed, total int, message string) {
		mu.Lock()
		defer mu.Unlock()
		if message != "" {
			messages = append(messages, message)
			return
		}
		assert.Equal(t, 4, total)
		if completed > maxDone {
			maxDone = completed
		}
	})
	_, stats, err := g.Fill(v, values, models.PingTimeDim, nil)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, 4, maxDone)
	assert.Equal(t, 4, stats.Filled)
}
