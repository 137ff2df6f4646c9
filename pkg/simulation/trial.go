package simulation

import (
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"krigingpower/internal/models"
	"krigingpower/pkg/interpolation"
	"krigingpower/pkg/powercontrol"
	"krigingpower/pkg/propagation"
)

// TrialOutcome is what one successful trial contributes to the run statistics
type TrialOutcome struct {
	// SIRDb is the realised SIR at the primary receiver
	SIRDb float64

	// KrigingVariance is the kriging variance at the receiver in dB^2
	KrigingVariance float64

	// ErrorDb is the kriged minus the true received power at the receiver
	ErrorDb float64

	// Limit is the power limit the rule derived for this trial
	Limit powercontrol.Limit
}

// Field is one realisation of the measured environment together with the
// model trained on it
type Field struct {
	Samples models.Samples

	// TruePowerDbm is the received power at the receiver, never shown to the
	// estimator
	TruePowerDbm float64

	Semivariogram []models.SemivariogramPoint
	Fit           *interpolation.FitResult
	Kriging       *interpolation.OrdinaryKriging
}

// Measure draws measurement locations, a correlated shadowing realisation and
// the resulting received powers. The receiver is drawn jointly with the
// samples so its true power is correlated with them.
func (s *Simulator) Measure(rng *rand.Rand) (models.Samples, float64, error) {
	p := s.params
	locs, err := propagation.Locations(rng, p.Layout, p.Samples, p.Receiver, p.Radius)
	if err != nil {
		return nil, 0, err
	}
	locs = append(locs, p.Receiver)

	cov := propagation.ShadowingCovariance(locs, p.CorrelationDistance, p.PrimaryStdDb)
	z, err := propagation.CorrelatedShadowing(cov, rng)
	if err != nil {
		return nil, 0, errors.Wrap(err, "shadowing")
	}

	samples := make(models.Samples, p.Samples)
	for i := range samples {
		samples[i] = models.Sample{Location: locs[i], Value: s.receivedPower(locs[i], z[i])}
	}
	truth := s.receivedPower(p.Receiver, z[p.Samples])
	return samples, truth, nil
}

func (s *Simulator) receivedPower(at orb.Point, shadowDb float64) float64 {
	return s.params.TransmitPowerDbm - propagation.LinkLossDb(s.params.PathLoss, s.params.PrimaryTx, at) + shadowDb
}

// Train estimates the semivariogram of samples, fits the model family and
// builds the kriging predictor
func (s *Simulator) Train(samples models.Samples) (*Field, error) {
	p := s.params
	points, err := interpolation.EmpiricalSemivariogram(samples, p.MaxLag, p.Bins)
	if err != nil {
		return nil, errors.Wrap(err, "semivariogram")
	}

	fit, err := interpolation.NewFitter(p.Family, p.MaxLag, p.FitOptions...).Fit(points)
	if err != nil {
		return nil, errors.Wrap(err, "model fit")
	}

	ok, err := interpolation.NewOrdinaryKriging(samples, fit.Model, p.KrigingOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "kriging")
	}

	return &Field{
		Samples:       samples,
		Semivariogram: points,
		Fit:           fit,
		Kriging:       ok,
	}, nil
}

// RunTrial performs one complete trial: measure, train, krige at the
// receiver, derive the power limit and evaluate the realised SIR
func (s *Simulator) RunTrial(rng *rand.Rand) (TrialOutcome, error) {
	outcome, _, err := s.runTrial(rng)
	return outcome, err
}

func (s *Simulator) runTrial(rng *rand.Rand) (TrialOutcome, *Field, error) {
	p := s.params
	samples, truth, err := s.Measure(rng)
	if err != nil {
		return TrialOutcome{}, nil, err
	}

	field, err := s.Train(samples)
	if err != nil {
		return TrialOutcome{}, nil, err
	}
	field.TruePowerDbm = truth

	res, err := field.Kriging.Estimate(p.Receiver)
	if err != nil {
		return TrialOutcome{}, nil, errors.Wrap(err, "kriging")
	}

	lossSU := propagation.LinkLossDb(p.PathLoss, p.SecondaryTx, p.Receiver)
	limit, err := p.Rule.Limit(res, lossSU)
	if err != nil {
		return TrialOutcome{}, nil, errors.Wrap(err, "power limit")
	}

	interference := limit.TransmitPowerDb - lossSU + propagation.Shadowing(p.SecondaryStdDb, rng)
	return TrialOutcome{
		SIRDb:           truth - interference,
		KrigingVariance: res.Variance,
		ErrorDb:         res.Estimate - truth,
		Limit:           limit,
	}, field, nil
}

// Snapshot runs a single trial with its own seed and returns the trained field
// alongside the outcome, for radio map rendering and inspection
func (s *Simulator) Snapshot(seed uint64) (*Field, TrialOutcome, error) {
	rng := rand.New(rand.NewSource(seed))
	outcome, field, err := s.runTrial(rng)
	if err != nil {
		return nil, TrialOutcome{}, err
	}
	return field, outcome, nil
}

// FailureKind classifies a trial error for the run's failure counters
func FailureKind(err error) string {
	var (
		insufficient *interpolation.InsufficientDataError
		convergence  *interpolation.FitConvergenceError
		singular     *interpolation.SingularSystemError
		probability  *powercontrol.InvalidProbabilityError
	)
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_data"
	case errors.As(err, &convergence):
		return "fit_convergence"
	case errors.As(err, &singular):
		return "singular_system"
	case errors.As(err, &probability):
		return "invalid_probability"
	}
	return "other"
}
