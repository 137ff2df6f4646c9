package interpolation

import (
	"fmt"

	"github.com/paulmach/orb/planar"

	"krigingpower/internal/models"
)

// EmpiricalSemivariogram bins all sample pairs by distance and averages their
// half squared differences.
//
// The interval [0, maxLag] is split into bins equal-width bins. A pair at
// exactly maxLag falls into the last bin; pairs farther apart are ignored.
// Each returned point carries the mean pair distance of its bin as the lag.
// Bins that receive no pairs are left out, so the result may be shorter
// than bins.
//
// The cost is O(n^2) in the number of samples.
func EmpiricalSemivariogram(samples models.Samples, maxLag float64, bins int) ([]models.SemivariogramPoint, error) {
	if len(samples) < 2 {
		return nil, &InsufficientDataError{Have: len(samples), Need: 2}
	}
	if !(maxLag > 0) {
		return nil, fmt.Errorf("max lag must be positive, got %g", maxLag)
	}
	if bins < 1 {
		return nil, fmt.Errorf("bin count must be at least 1, got %d", bins)
	}

	width := maxLag / float64(bins)
	lagSum := make([]float64, bins)
	semiSum := make([]float64, bins)
	count := make([]int, bins)

	n := len(samples)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			h := planar.Distance(samples[i].Location, samples[j].Location)
			if h > maxLag {
				continue
			}
			b := int(h / width)
			if b >= bins {
				b = bins - 1
			}
			diff := samples[i].Value - samples[j].Value
			lagSum[b] += h
			semiSum[b] += 0.5 * diff * diff
			count[b]++
		}
	}

	points := make([]models.SemivariogramPoint, 0, bins)
	for b := 0; b < bins; b++ {
		if count[b] == 0 {
			continue
		}
		c := float64(count[b])
		points = append(points, models.SemivariogramPoint{
			Lag:          lagSum[b] / c,
			Semivariance: semiSum[b] / c,
			Pairs:        count[b],
		})
	}

	return points, nil
}
