package interpolation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// Method selects how a missing sample is estimated from its valid neighbours.
type Method int

const (
	// Linear interpolates between the nearest valid samples on each side.
	Linear Method = iota
	// Nearest copies the closest valid sample; ties go to the preceding one.
	Nearest
)

// ErrUnknownMethod is returned by ParseMethod for unsupported names.
var ErrUnknownMethod = errors.New("unknown interpolation method")

// String returns the method name as accepted by ParseMethod.
func (m Method) String() string {
	switch m {
	case Linear:
		return "linear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod converts "linear" or "nearest" (case-insensitive) to a Method.
// The empty string selects Linear.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return Linear, nil
	case "nearest":
		return Nearest, nil
	default:
		return 0, fmt.Errorf("%w: %q (want linear or nearest)", ErrUnknownMethod, s)
	}
}

// Positions returns the abscissae used along an axis of length n: coord when
// it is finite and strictly increasing, otherwise the sample indices.
func Positions(coord []float64, n int) []float64 {
	if len(coord) == n && strictlyIncreasing(coord) {
		return coord
	}
	pos := make([]float64, n)
	for i := range pos {
		pos[i] = float64(i)
	}
	return pos
}

func strictlyIncreasing(x []float64) bool {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if i > 0 && v <= x[i-1] {
			return false
		}
	}
	return true
}

// FillLine replaces NaN entries of y in place and returns how many were
// filled. x holds the strictly increasing position of each sample.
//
// A NaN with valid samples on both sides is estimated with method. A NaN
// run touching either end of the line stays NaN unless edgeFill is set, in
// which case it takes the value of the nearest valid sample. A line with no
// valid sample is left untouched.
func FillLine(x, y []float64, method Method, edgeFill bool) int {
	n := len(y)
	validX := make([]float64, 0, n)
	validY := make([]float64, 0, n)
	for i, v := range y {
		if !math.IsNaN(v) {
			validX = append(validX, x[i])
			validY = append(validY, v)
		}
	}
	if len(validY) == 0 || len(validY) == n {
		return 0
	}

	var pl interp.PiecewiseLinear
	if method == Linear && len(validX) >= 2 {
		if err := pl.Fit(validX, validY); err != nil {
			// unreachable with two or more strictly increasing points
			return 0
		}
	}

	// prev[i] / next[i] index the nearest valid sample at or before / after i.
	prev := make([]int, n)
	last := -1
	for i := 0; i < n; i++ {
		if !math.IsNaN(y[i]) {
			last = i
		}
		prev[i] = last
	}
	next := make([]int, n)
	last = -1
	for i := n - 1; i >= 0; i-- {
		if !math.IsNaN(y[i]) {
			last = i
		}
		next[i] = last
	}

	filled := 0
	for i := 0; i < n; i++ {
		if !math.IsNaN(y[i]) {
			continue
		}
		p, q := prev[i], next[i]
		switch {
		case p >= 0 && q >= 0:
			if method == Nearest {
				if x[i]-x[p] <= x[q]-x[i] {
					y[i] = y[p]
				} else {
					y[i] = y[q]
				}
			} else {
				y[i] = pl.Predict(x[i])
			}
		case !edgeFill:
			continue
		case p >= 0:
			y[i] = y[p]
		default:
			y[i] = y[q]
		}
		filled++
	}
	return filled
}
