package models

import (
	"github.com/paulmach/orb"
)

// Sample is a single point measurement of the received-power field
type Sample struct {
	// Location is the planar (x, y) position of the measurement in meters
	Location orb.Point

	// Value is the measured received power in dB (dBm for absolute levels)
	Value float64
}

// Samples is an ordered set of measurements used for both model fitting and kriging
type Samples []Sample

// Locations returns the sample positions in order
func (s Samples) Locations() []orb.Point {
	pts := make([]orb.Point, len(s))
	for i := range s {
		pts[i] = s[i].Location
	}
	return pts
}

// Values returns the sample values in order
func (s Samples) Values() []float64 {
	vals := make([]float64, len(s))
	for i := range s {
		vals[i] = s[i].Value
	}
	return vals
}

// NewSamples zips coordinate and value arrays into Samples.
// The three slices must have the same length; extra entries are ignored.
func NewSamples(x, y, values []float64) Samples {
	n := min(len(x), len(y), len(values))
	s := make(Samples, n)
	for i := 0; i < n; i++ {
		s[i] = Sample{Location: orb.Point{x[i], y[i]}, Value: values[i]}
	}
	return s
}

// SemivariogramPoint is one non-empty distance bin of an empirical semivariogram
type SemivariogramPoint struct {
	// Lag is the mean pair distance of the bin
	Lag float64

	// Semivariance is the mean of 0.5*(v_i-v_j)^2 over the pairs in the bin
	Semivariance float64

	// Pairs is the number of sample pairs that fell into the bin
	Pairs int
}

// KrigingResult is the outcome of an ordinary kriging query
type KrigingResult struct {
	// Estimate is the best linear unbiased estimate at the query location
	Estimate float64

	// Variance is the kriging (estimation) variance at the query location
	Variance float64

	// Weights are the kriging weights of the samples used, in sample order.
	// They sum to one.
	Weights []float64

	// Lagrange is the multiplier of the unbiasedness constraint
	Lagrange float64
}
