package simulation

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krigingpower/pkg/powercontrol"
)

func outcome(sir, kvar, errDb, ptx float64) TrialOutcome {
	return TrialOutcome{SIRDb: sir, KrigingVariance: kvar, ErrorDb: errDb, Limit: powercontrol.Limit{TransmitPowerDb: ptx}}
}

// TestAccumulatorMetrics checks the four statistics on hand-computed values
func TestAccumulatorMetrics(t *testing.T) {
	acc := newAccumulator()
	acc.add(outcome(5, 4, 1, 0), 10)
	acc.add(outcome(12, 16, -3, 10), 10)
	acc.fail("fit_convergence")

	m := acc.metrics()
	assert.Equal(t, 2, m.Trials)
	assert.Equal(t, 1, m.Failed)
	assert.Equal(t, 0.5, m.OutageProbability)
	assert.InDelta(t, 3.0, m.AvgKrigingStdDb, 1e-12)
	assert.InDelta(t, math.Sqrt(5), m.RMSEDb, 1e-12)
	assert.InDelta(t, 10*math.Log10(5.5), m.AvgTransmitPowerDbm, 1e-12)
	assert.InDelta(t, -1.0, m.MeanErrorDb, 1e-12)
}

// TestAccumulatorMerge verifies merging equals accumulating everything in one
func TestAccumulatorMerge(t *testing.T) {
	outs := []TrialOutcome{
		outcome(3, 1, 0.5, 12), outcome(15, 9, -2, 8), outcome(9.9, 2, 1.5, 11), outcome(20, 0, 0, 7),
	}

	whole := newAccumulator()
	a, b := newAccumulator(), newAccumulator()
	for i, o := range outs {
		whole.add(o, 10)
		if i%2 == 0 {
			a.add(o, 10)
		} else {
			b.add(o, 10)
		}
	}
	a.fail("singular_system")
	b.fail("singular_system")
	whole.fail("singular_system")
	whole.fail("singular_system")

	merged := newAccumulator()
	merged.merge(b)
	merged.merge(a)

	want, got := whole.metrics(), merged.metrics()
	assert.Equal(t, want.Trials, got.Trials)
	assert.Equal(t, want.OutageProbability, got.OutageProbability)
	assert.Equal(t, want.Failures, got.Failures)
	assert.InDelta(t, want.RMSEDb, got.RMSEDb, 1e-12)
	assert.InDelta(t, want.AvgTransmitPowerDbm, got.AvgTransmitPowerDbm, 1e-12)
	assert.InDelta(t, want.ErrorStdDb, got.ErrorStdDb, 1e-12)
}

func TestAccumulatorEmpty(t *testing.T) {
	m := newAccumulator().metrics()
	assert.Zero(t, m.Trials)
	assert.True(t, math.IsNaN(m.OutageProbability))
	assert.True(t, math.IsNaN(m.RMSEDb))
}

func TestMetricsReport(t *testing.T) {
	m := Metrics{
		Trials:              1000,
		Failed:              3,
		Failures:            map[string]int{"singular_system": 1, "fit_convergence": 2},
		OutageProbability:   0.1,
		AvgKrigingStdDb:     4.2,
		RMSEDb:              4.5,
		AvgTransmitPowerDbm: 12.25,
	}

	var buf bytes.Buffer
	require.NoError(t, m.Report(&buf))
	out := buf.String()
	assert.Contains(t, out, "Outage Probability: 0.1000")
	assert.Contains(t, out, "Average Kriging Standard Deviation: 4.2000 [dB]")
	assert.Contains(t, out, "RMSE: 4.5000 [dB]")
	assert.Contains(t, out, "Average Secondary Transmission Power: 12.2500 [dBm]")
	assert.Contains(t, out, "Trials: 1000 (failed attempts: 3)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("fit_convergence")), bytes.Index(buf.Bytes(), []byte("singular_system")))
}
