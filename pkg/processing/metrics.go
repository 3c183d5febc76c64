package processing

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarises one interpolation run.
type Metrics struct {
	// Masked is the number of valid samples invalidated by masks.
	Masked int

	// Missing is the number of NaN samples handed to the gap filler,
	// masked or already missing.
	Missing int

	// Filled is the number of missing samples that received an estimate.
	Filled int

	// Remaining is the number of NaN samples in the output.
	Remaining int

	// FilledPerChannel breaks Filled down by channel index.
	FilledPerChannel []int

	// RMSE compares the input and output over samples that were valid and
	// unmasked. Those samples are carried over, so anything but zero is a
	// defect.
	RMSE float64

	// MaskedRMSE compares the input and output over masked samples that
	// were originally valid and received an estimate: the error of
	// reconstructing what the masks hid, in dB. NaN when there is none.
	MaskedRMSE float64
}

// FillRatio returns Filled / Missing, or 1 when nothing was missing.
func (m Metrics) FillRatio() float64 {
	if m.Missing == 0 {
		return 1
	}
	return float64(m.Filled) / float64(m.Missing)
}

// calculateMetrics compares the original values, the masked values handed
// to the gap filler and the filled output.
func calculateMetrics(original, masked, filled []float64) Metrics {
	var m Metrics
	var keptOrig, keptOut, hiddenOrig, hiddenOut []float64
	for i := range original {
		if math.IsNaN(masked[i]) {
			m.Missing++
			if !math.IsNaN(original[i]) {
				m.Masked++
				if !math.IsNaN(filled[i]) {
					hiddenOrig = append(hiddenOrig, original[i])
					hiddenOut = append(hiddenOut, filled[i])
				}
			}
			if !math.IsNaN(filled[i]) {
				m.Filled++
			}
		} else {
			keptOrig = append(keptOrig, original[i])
			keptOut = append(keptOut, filled[i])
		}
		if math.IsNaN(filled[i]) {
			m.Remaining++
		}
	}
	m.RMSE = calculateRMSE(keptOrig, keptOut)
	m.MaskedRMSE = math.NaN()
	if len(hiddenOrig) > 0 {
		m.MaskedRMSE = calculateRMSE(hiddenOrig, hiddenOut)
	}
	return m
}

// calculateRMSE computes the root mean square error.
func calculateRMSE(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}
	sq := make([]float64, n)
	for i := range original {
		d := original[i] - reconstructed[i]
		sq[i] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil))
}
