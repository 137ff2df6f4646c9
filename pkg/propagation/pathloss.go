// Package propagation provides the radio-environment collaborators of the
// kriging pipeline: deterministic path loss, measurement geometry and spatially
// correlated log-normal shadowing.
package propagation

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PathLossModel converts a link distance into a deterministic loss in dB
type PathLossModel interface {
	LossDb(distance float64) float64
}

// LogDistance is the log-distance path loss model
//
//	L(d) = 10 * Exponent * log10(d) + ReferenceLossDb
//
// Distances below MinDistance are clamped to MinDistance so that co-located
// nodes do not produce an infinite gain.
type LogDistance struct {
	Exponent        float64
	ReferenceLossDb float64
	MinDistance     float64
}

// NewLogDistance returns a model with the given exponent, no reference loss
// and a 1 m minimum distance
func NewLogDistance(exponent float64) LogDistance {
	return LogDistance{Exponent: exponent, MinDistance: 1}
}

func (m LogDistance) LossDb(distance float64) float64 {
	d := math.Max(distance, m.MinDistance)
	if d <= 0 {
		return m.ReferenceLossDb
	}
	return 10*m.Exponent*math.Log10(d) + m.ReferenceLossDb
}

// LinkLossDb evaluates model between two points
func LinkLossDb(model PathLossModel, from, to orb.Point) float64 {
	return model.LossDb(planar.Distance(from, to))
}
