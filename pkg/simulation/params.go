package simulation

import (
	"runtime"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"krigingpower/pkg/config"
	"krigingpower/pkg/interpolation"
	"krigingpower/pkg/powercontrol"
	"krigingpower/pkg/propagation"
)

// FailurePolicy decides what happens to a trial whose pipeline fails
type FailurePolicy string

const (
	// FailSkip discards the failed trial and draws a fresh one in its place
	FailSkip FailurePolicy = "skip"

	// FailAbort stops the whole run with the trial's error
	FailAbort FailurePolicy = "abort"
)

// ProgressCallback is a function that reports progress during a run.
// Calls are serialized.
type ProgressCallback func(completed, total int, message string)

// Params holds everything a Simulator needs. It is built once, typically from
// a config.Config, and never modified by the simulator.
type Params struct {
	// Receiver is the primary receiver, the kriging query location
	Receiver orb.Point

	// PrimaryTx is the transmitter whose received power is measured
	PrimaryTx orb.Point

	// SecondaryTx is the transmitter whose power is being limited
	SecondaryTx orb.Point

	// Radius and Layout describe where measurements are taken around Receiver
	Radius float64
	Layout propagation.Layout

	// Shadowing of the measured field and of the secondary link
	CorrelationDistance float64
	PrimaryStdDb        float64
	SecondaryStdDb      float64

	TransmitPowerDbm float64
	PathLoss         propagation.PathLossModel

	// Semivariogram estimation and fit
	MaxLag     float64
	Bins       int
	Family     interpolation.Family
	FitOptions []interpolation.FitOption

	KrigingOptions []interpolation.KrigingOption

	// Samples is the number of measurements per trial
	Samples int

	Rule powercontrol.Rule

	// Run control
	Trials        int
	Workers       int
	Seed          uint64
	FailurePolicy FailurePolicy
	MaxRetries    int

	// Logger receives run and trial events; nil discards them
	Logger logrus.FieldLogger

	// Progress is called after every completed trial; nil disables it
	Progress ProgressCallback
}

// ParamsFromConfig resolves a configuration into simulator parameters
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	layout, err := propagation.ParseLayout(cfg.Geometry.Layout)
	if err != nil {
		return nil, errors.Wrap(err, "geometry.layout")
	}
	family, err := interpolation.FamilyByName(cfg.Semivariogram.Family)
	if err != nil {
		return nil, errors.Wrap(err, "semivariogram.family")
	}
	solver, ok := interpolation.SolverByName(cfg.Kriging.Solver, cfg.Kriging.ConditionLimit)
	if !ok {
		return nil, errors.Errorf("kriging.solver: unknown solver %q (want lu or qr)", cfg.Kriging.Solver)
	}

	pathLoss := propagation.NewLogDistance(cfg.Link.PathLossExponent)
	pathLoss.ReferenceLossDb = cfg.Link.ReferenceLossDb

	p := &Params{
		Receiver:            orb.Point{cfg.Geometry.Receiver.X, cfg.Geometry.Receiver.Y},
		PrimaryTx:           orb.Point{cfg.Geometry.PrimaryTx.X, cfg.Geometry.PrimaryTx.Y},
		SecondaryTx:         orb.Point{cfg.Geometry.SecondaryTx.X, cfg.Geometry.SecondaryTx.Y},
		Radius:              cfg.Geometry.Radius,
		Layout:              layout,
		CorrelationDistance: cfg.Shadowing.CorrelationDistance,
		PrimaryStdDb:        cfg.Shadowing.PrimaryStdDb,
		SecondaryStdDb:      cfg.Shadowing.SecondaryStdDb,
		TransmitPowerDbm:    cfg.Link.TransmitPowerDbm,
		PathLoss:            pathLoss,
		MaxLag:              cfg.Semivariogram.MaxLag,
		Bins:                cfg.Semivariogram.Bins,
		Family:              family,
		FitOptions: []interpolation.FitOption{
			interpolation.WithPairWeighting(cfg.Semivariogram.PairWeighting),
			interpolation.WithMaxIterations(cfg.Semivariogram.MaxIterations),
		},
		KrigingOptions: []interpolation.KrigingOption{
			interpolation.WithSolver(solver),
			interpolation.WithMaxNeighbors(cfg.Kriging.MaxNeighbors),
		},
		Samples: cfg.Trial.Samples,
		Rule: powercontrol.Rule{
			TargetOutage:   cfg.Trial.TargetOutage,
			SIRThresholdDb: cfg.Trial.SIRThresholdDb,
			ShadowStdDb:    cfg.Shadowing.SecondaryStdDb,
		},
		Trials:        cfg.Run.Trials,
		Workers:       cfg.Run.Workers,
		Seed:          cfg.Run.Seed,
		FailurePolicy: FailurePolicy(cfg.Run.FailurePolicy),
		MaxRetries:    cfg.Run.MaxRetries,
	}
	return p, p.Validate()
}

// Validate checks the parameters a run cannot start without
func (p *Params) Validate() error {
	switch {
	case p.PathLoss == nil:
		return errors.New("path loss model is required")
	case p.Family == nil:
		return errors.New("semivariogram family is required")
	case p.Radius <= 0:
		return errors.Errorf("measurement radius must be positive, got %v", p.Radius)
	case p.CorrelationDistance <= 0:
		return errors.Errorf("correlation distance must be positive, got %v", p.CorrelationDistance)
	case p.Samples < 2:
		return errors.Errorf("at least 2 samples per trial are required, got %d", p.Samples)
	case p.Trials < 1:
		return errors.Errorf("at least 1 trial is required, got %d", p.Trials)
	case p.MaxRetries < 0:
		return errors.Errorf("max retries must not be negative, got %d", p.MaxRetries)
	case p.FailurePolicy != FailSkip && p.FailurePolicy != FailAbort:
		return errors.Errorf("unknown failure policy %q", p.FailurePolicy)
	}
	return p.Rule.Validate()
}

func (p *Params) workers() int {
	n := p.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > p.Trials {
		n = p.Trials
	}
	return n
}
