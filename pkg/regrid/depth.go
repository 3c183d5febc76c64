package regrid

import (
	"fmt"
	"math"

	"svinterp/internal/models"
)

// DepthParams describes the transducer geometry used to turn echo range
// into depth.
type DepthParams struct {
	Offset   float64 // Transducer depth below the surface in metres
	Tilt     float64 // Beam tilt from vertical in degrees
	Downward bool    // Beam points down; depth grows with range
}

// AddDepth returns a copy of ds whose range_sample coordinate holds depth in
// metres, derived from the first channel's echo range at the first ping:
// sign * range * cos(tilt) + offset.
func AddDepth(ds *models.Dataset, params DepthParams) (*models.Dataset, error) {
	er, data, err := echoRange(ds)
	if err != nil {
		return nil, err
	}
	ranges := firstPingRanges(er, data)
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: dataset has no channels", models.ErrMissingField)
	}

	mult := 1.0
	if !params.Downward {
		mult = -1
	}
	cosTilt := math.Cos(params.Tilt / 180 * math.Pi)
	depth := make([]float64, len(ranges[0]))
	for i, r := range ranges[0] {
		depth[i] = mult*r*cosTilt + params.Offset
	}

	out := ds.Copy()
	coord := models.NewFloatVariable([]string{models.RangeSampleDim}, []int{len(depth)}, depth)
	if old, ok := ds.Coords[models.RangeSampleDim]; ok {
		coord.Attrs = models.CloneAttrs(old.Attrs)
	}
	coord.Attrs["long_name"] = "Depth"
	coord.Attrs["units"] = "m"
	out.Coords[models.RangeSampleDim] = coord
	return out, nil
}
