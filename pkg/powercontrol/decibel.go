package powercontrol

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DbToLinear converts a power level in dB (or dBm) to the linear domain
func DbToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// LinearToDb converts a linear power to dB; non-positive powers map to -Inf
func LinearToDb(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(p)
}

// AverageDb averages power levels given in dB in the linear domain and returns
// the result in dB. An empty input yields NaN.
func AverageDb(levels []float64) float64 {
	if len(levels) == 0 {
		return math.NaN()
	}
	lin := make([]float64, len(levels))
	for i, l := range levels {
		lin[i] = DbToLinear(l)
	}
	return LinearToDb(floats.Sum(lin) / float64(len(lin)))
}
