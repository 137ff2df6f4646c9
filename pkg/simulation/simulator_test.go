package simulation

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"krigingpower/pkg/config"
	"krigingpower/pkg/interpolation"
)

// testParams returns the default scenario with a reduced number of trials
func testParams(t *testing.T, trials int) *Params {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Run.Trials = trials
	cfg.Run.Workers = 4
	cfg.Run.Seed = 2024
	p, err := ParamsFromConfig(cfg)
	require.NoError(t, err)
	return p
}

func TestParamsFromConfig(t *testing.T) {
	p := testParams(t, 10)
	assert.Equal(t, "exponential", p.Family.Name())
	assert.Equal(t, 50, p.Samples)
	assert.Equal(t, FailSkip, p.FailurePolicy)
	assert.Equal(t, 0.1, p.Rule.TargetOutage)
	assert.Equal(t, 8.0, p.Rule.ShadowStdDb)

	cfg := config.DefaultConfig()
	cfg.Semivariogram.Family = "cubic"
	_, err := ParamsFromConfig(cfg)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Kriging.Solver = "cholesky"
	_, err = ParamsFromConfig(cfg)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Geometry.Layout = "square"
	_, err = ParamsFromConfig(cfg)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Trial.TargetOutage = 1
	_, err = ParamsFromConfig(cfg)
	assert.Error(t, err)
}

func TestNewRejectsInvalidParams(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	p := testParams(t, 10)
	p.Family = nil
	_, err = New(p)
	assert.Error(t, err)
}

// TestMeasure checks the sample geometry and the joint draw at the receiver
func TestMeasure(t *testing.T) {
	sim, err := New(testParams(t, 1))
	require.NoError(t, err)

	samples, truth, err := sim.Measure(rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, samples, 50)
	for _, s := range samples {
		assert.LessOrEqual(t, planar.Distance(s.Location, sim.Params().Receiver), 100.0+1e-9)
	}

	// 30 dBm - 35*log10(1100) is about -76.5 dBm before shadowing
	assert.InDelta(t, -76.5, truth, 40)
	assert.False(t, math.IsNaN(truth))
}

// TestRunTrial runs one trial and checks the power rule was applied
func TestRunTrial(t *testing.T) {
	sim, err := New(testParams(t, 1))
	require.NoError(t, err)

	out, err := sim.RunTrial(rand.New(rand.NewSource(8)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.KrigingVariance, 0.0)
	assert.False(t, math.IsNaN(out.ErrorDb))
	assert.False(t, math.IsNaN(out.SIRDb))

	lossSU := 35 * math.Log10(900)
	assert.InDelta(t, out.Limit.InterferenceDb+lossSU, out.Limit.TransmitPowerDb, 1e-9)
}

func TestSnapshot(t *testing.T) {
	sim, err := New(testParams(t, 1))
	require.NoError(t, err)

	field, out, err := sim.Snapshot(77)
	require.NoError(t, err)
	require.NotNil(t, field.Kriging)
	assert.Len(t, field.Samples, 50)
	assert.NotEmpty(t, field.Semivariogram)
	assert.NoError(t, field.Fit.Model.Validate())

	res, err := field.Kriging.Estimate(sim.Params().Receiver)
	require.NoError(t, err)
	assert.InDelta(t, field.TruePowerDbm+out.ErrorDb, res.Estimate, 1e-9)

	again, _, err := sim.Snapshot(77)
	require.NoError(t, err)
	assert.Equal(t, field.Samples, again.Samples)
}

// TestRunDeterministic verifies that the worker count does not change results
func TestRunDeterministic(t *testing.T) {
	run := func(workers int) *Metrics {
		p := testParams(t, 40)
		p.Workers = workers
		sim, err := New(p)
		require.NoError(t, err)
		m, err := sim.Run(context.Background())
		require.NoError(t, err)
		return m
	}

	a, b := run(1), run(4)
	assert.Equal(t, 40, a.Trials)
	assert.Equal(t, a.Trials, b.Trials)
	assert.Equal(t, a.OutageProbability, b.OutageProbability)
	assert.Equal(t, a.Failed, b.Failed)
	assert.InDelta(t, a.RMSEDb, b.RMSEDb, 1e-9)
	assert.InDelta(t, a.AvgKrigingStdDb, b.AvgKrigingStdDb, 1e-9)
	assert.InDelta(t, a.AvgTransmitPowerDbm, b.AvgTransmitPowerDbm, 1e-9)
	assert.NotEqual(t, a.RunID, b.RunID)
}

// sparseParams makes fits fail often: four samples rarely fill all three bins
func sparseParams(t *testing.T, trials int) *Params {
	p := testParams(t, trials)
	p.Samples = 4
	p.Bins = 3
	p.MaxRetries = 200
	return p
}

// TestRunSkipPolicy replaces failed trials and counts the failures by kind
func TestRunSkipPolicy(t *testing.T) {
	sim, err := New(sparseParams(t, 20))
	require.NoError(t, err)

	m, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, m.Trials)
	assert.Positive(t, m.Failed)
	assert.Positive(t, m.Failures["fit_convergence"])

	sum := 0
	for _, n := range m.Failures {
		sum += n
	}
	assert.Equal(t, m.Failed, sum)
}

func TestRunAbortPolicy(t *testing.T) {
	p := sparseParams(t, 20)
	p.FailurePolicy = FailAbort
	sim, err := New(p)
	require.NoError(t, err)

	m, err := sim.Run(context.Background())
	assert.Error(t, err)
	assert.Nil(t, m)
}

// TestRunRetriesExhausted stops the run when a trial keeps failing
func TestRunRetriesExhausted(t *testing.T) {
	p := testParams(t, 5)
	p.FitOptions = []interpolation.FitOption{interpolation.WithMaxIterations(2)}
	p.MaxRetries = 2
	sim, err := New(p)
	require.NoError(t, err)

	_, err = sim.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed 3 times")

	var convergence *interpolation.FitConvergenceError
	assert.True(t, errors.As(err, &convergence))
	assert.Equal(t, "fit_convergence", FailureKind(err))
}

// TestRunCancellation stops handing out trials once the context is cancelled
func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := testParams(t, 1000)
	p.Workers = 2
	p.Progress = func(completed, total int, message string) {
		if completed == 5 {
			cancel()
		}
	}
	sim, err := New(p)
	require.NoError(t, err)

	m, err := sim.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, m)
	assert.GreaterOrEqual(t, m.Trials, 5)
	assert.Less(t, m.Trials, 1000)
}

// TestRunLogging checks run events carry the run identifier
func TestRunLogging(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	p := testParams(t, 4)
	p.Logger = logger
	sim, err := New(p)
	require.NoError(t, err)

	m, err := sim.Run(context.Background())
	require.NoError(t, err)

	entries := hook.AllEntries()
	require.NotEmpty(t, entries)
	last := hook.LastEntry()
	assert.Equal(t, "simulation finished", last.Message)
	assert.Equal(t, m.RunID, last.Data["run_id"])
	assert.Equal(t, "starting simulation", entries[0].Message)
}

// TestEndToEndScenario runs the reference scenario and checks the outage
// probability is held near its target
func TestEndToEndScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end scenario in short mode")
	}

	p := testParams(t, 1000)
	p.Workers = 0
	sim, err := New(p)
	require.NoError(t, err)

	m, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1000, m.Trials)
	assert.InDelta(t, 0.10, m.OutageProbability, 0.03)
	assert.Positive(t, m.RMSEDb)
	assert.Less(t, m.RMSEDb, 8.0)
	assert.Positive(t, m.AvgKrigingStdDb)
	assert.False(t, math.IsNaN(m.AvgTransmitPowerDbm))

	var buf bytes.Buffer
	require.NoError(t, m.Report(&buf))
	assert.Contains(t, buf.String(), "Outage Probability:")
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "insufficient_data",
		FailureKind(errors.Wrap(&interpolation.InsufficientDataError{Have: 1, Need: 2}, "semivariogram")))
	assert.Equal(t, "singular_system",
		FailureKind(errors.Wrapf(&interpolation.SingularSystemError{Size: 3}, "trial %d", 4)))
	assert.Equal(t, "other", FailureKind(errors.New("boom")))
}

func TestTrialSeed(t *testing.T) {
	seen := map[uint64]bool{}
	for trial := 0; trial < 100; trial++ {
		for attempt := 0; attempt < 5; attempt++ {
			s := trialSeed(1, trial, attempt)
			assert.False(t, seen[s], "trial %d attempt %d", trial, attempt)
			seen[s] = true
		}
	}
	assert.NotEqual(t, trialSeed(1, 0, 0), trialSeed(2, 0, 0))
}
