package simulation

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"krigingpower/pkg/powercontrol"
)

// Metrics holds the run statistics reported at the end of a simulation
type Metrics struct {
	// RunID identifies the run in logs
	RunID string

	// Trials is the number of successful trials the statistics are based on
	Trials int

	// Failed is the number of trial attempts that failed and were discarded
	Failed int

	// Failures counts failed attempts by error kind (see FailureKind)
	Failures map[string]int

	// OutageProbability is the fraction of trials whose realised SIR fell
	// below the threshold
	OutageProbability float64

	// AvgKrigingStdDb is the mean of the kriging standard deviation
	AvgKrigingStdDb float64

	// RMSEDb is the root mean square interpolation error at the receiver
	RMSEDb float64

	// MeanErrorDb and ErrorStdDb describe the interpolation error distribution
	MeanErrorDb float64
	ErrorStdDb  float64

	// AvgTransmitPowerDbm is the secondary transmit power averaged in the
	// linear domain
	AvgTransmitPowerDbm float64

	Duration time.Duration
}

// accumulator collects per-worker sums. All fields combine by addition, so
// merging worker accumulators in any order gives the same totals.
type accumulator struct {
	trials      int
	outages     int
	sumStd      float64
	sumSqErr    float64
	sumLinPower float64
	errs        []float64
	failures    map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{failures: map[string]int{}}
}

func (a *accumulator) add(o TrialOutcome, sirThresholdDb float64) {
	a.trials++
	if o.SIRDb < sirThresholdDb {
		a.outages++
	}
	a.sumStd += math.Sqrt(math.Max(o.KrigingVariance, 0))
	a.sumSqErr += o.ErrorDb * o.ErrorDb
	a.sumLinPower += powercontrol.DbToLinear(o.Limit.TransmitPowerDb)
	a.errs = append(a.errs, o.ErrorDb)
}

func (a *accumulator) fail(kind string) {
	a.failures[kind]++
}

func (a *accumulator) merge(b *accumulator) {
	a.trials += b.trials
	a.outages += b.outages
	a.sumStd += b.sumStd
	a.sumSqErr += b.sumSqErr
	a.sumLinPower += b.sumLinPower
	a.errs = append(a.errs, b.errs...)
	for k, v := range b.failures {
		a.failures[k] += v
	}
}

func (a *accumulator) metrics() Metrics {
	m := Metrics{Trials: a.trials, Failures: map[string]int{}}
	for k, v := range a.failures {
		m.Failures[k] = v
		m.Failed += v
	}
	if a.trials == 0 {
		nan := math.NaN()
		m.OutageProbability, m.AvgKrigingStdDb, m.RMSEDb = nan, nan, nan
		m.MeanErrorDb, m.ErrorStdDb, m.AvgTransmitPowerDbm = nan, nan, nan
		return m
	}

	n := float64(a.trials)
	m.OutageProbability = float64(a.outages) / n
	m.AvgKrigingStdDb = a.sumStd / n
	m.RMSEDb = math.Sqrt(a.sumSqErr / n)
	m.AvgTransmitPowerDbm = powercontrol.LinearToDb(a.sumLinPower / n)
	if len(a.errs) > 1 {
		m.MeanErrorDb, m.ErrorStdDb = stat.MeanStdDev(a.errs, nil)
	} else {
		m.MeanErrorDb = a.errs[0]
	}
	return m
}

// Report writes the run statistics in human readable form
func (m Metrics) Report(w io.Writer) error {
	lines := []string{
		fmt.Sprintf("Outage Probability: %.4f", m.OutageProbability),
		fmt.Sprintf("Average Kriging Standard Deviation: %.4f [dB]", m.AvgKrigingStdDb),
		fmt.Sprintf("RMSE: %.4f [dB]", m.RMSEDb),
		fmt.Sprintf("Average Secondary Transmission Power: %.4f [dBm]", m.AvgTransmitPowerDbm),
		fmt.Sprintf("Trials: %d (failed attempts: %d)", m.Trials, m.Failed),
	}

	kinds := make([]string, 0, len(m.Failures))
	for k := range m.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		lines = append(lines, fmt.Sprintf("  %s: %d", k, m.Failures[k]))
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
