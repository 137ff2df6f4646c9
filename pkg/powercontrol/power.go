// Package powercontrol converts a kriged received-power estimate at the primary
// receiver into the maximum transmit power a secondary user may radiate while
// keeping the primary link's outage probability below a target.
package powercontrol

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"krigingpower/internal/models"
)

// InvalidProbabilityError is returned when the target outage probability is
// not strictly between 0 and 1
type InvalidProbabilityError struct {
	P float64
}

func (e *InvalidProbabilityError) Error() string {
	return fmt.Sprintf("invalid outage probability %v: must be in (0, 1)", e.P)
}

// Rule is the interference power constraint of the primary receiver
type Rule struct {
	// TargetOutage is the tolerated probability that the primary SIR falls
	// below SIRThresholdDb
	TargetOutage float64

	// SIRThresholdDb is the minimum signal-to-interference ratio of the
	// primary link
	SIRThresholdDb float64

	// ShadowStdDb is the standard deviation of the secondary link's shadowing,
	// treated as independent of the kriging error
	ShadowStdDb float64
}

// Limit is the result of applying a Rule to one kriging estimate
type Limit struct {
	// InterferenceDb is the maximum interference power at the primary receiver
	InterferenceDb float64

	// TransmitPowerDb is the corresponding maximum secondary transmit power
	TransmitPowerDb float64
}

// Validate checks the target outage probability
func (r Rule) Validate() error {
	p := r.TargetOutage
	if math.IsNaN(p) || p <= 0 || p >= 1 {
		return &InvalidProbabilityError{P: p}
	}
	if r.ShadowStdDb < 0 || math.IsNaN(r.ShadowStdDb) {
		return fmt.Errorf("invalid shadowing standard deviation %v", r.ShadowStdDb)
	}
	return nil
}

// Margin returns the quantile of the combined kriging and shadowing error at
// the target outage probability. It is negative for p < 0.5.
func (r Rule) Margin(krigingVariance float64) (float64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	total := math.Max(krigingVariance, 0) + r.ShadowStdDb*r.ShadowStdDb
	if total == 0 {
		return 0, nil
	}
	// sqrt(2*total)*erfinv(2p-1) is the p-quantile of N(0, total)
	return distuv.Normal{Mu: 0, Sigma: math.Sqrt(total)}.Quantile(r.TargetOutage), nil
}

// Limit computes the interference and transmit power limits from the kriged
// received power at the primary receiver and the path loss between the
// secondary transmitter and that receiver
func (r Rule) Limit(res models.KrigingResult, lossDb float64) (Limit, error) {
	margin, err := r.Margin(res.Variance)
	if err != nil {
		return Limit{}, err
	}
	interference := res.Estimate - r.SIRThresholdDb + margin
	return Limit{
		InterferenceDb:  interference,
		TransmitPowerDb: interference + lossDb,
	}, nil
}
