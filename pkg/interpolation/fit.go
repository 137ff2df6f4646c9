package interpolation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"krigingpower/internal/models"
)

const (
	// minFitBins is the smallest number of non-empty bins a 3-parameter fit accepts
	minFitBins = 3

	defaultRangeFraction = 0.25
	defaultRangeLimit    = 10.0 // multiples of the max lag
	defaultMaxIterations = 5000
)

// FitOption configures a Fitter
type FitOption func(*Fitter)

// WithPairWeighting weights each bin's squared residual by its pair count
// instead of treating all bins equally
func WithPairWeighting(enabled bool) FitOption {
	return func(f *Fitter) {
		f.pairWeighted = enabled
	}
}

// WithInitialRangeFraction sets the initial range guess as a fraction of the max lag
func WithInitialRangeFraction(frac float64) FitOption {
	return func(f *Fitter) {
		if frac > 0 {
			f.rangeFraction = frac
		}
	}
}

// WithMaxIterations bounds the number of optimizer iterations; hitting the
// bound is reported as a convergence failure
func WithMaxIterations(n int) FitOption {
	return func(f *Fitter) {
		if n > 0 {
			f.maxIterations = n
		}
	}
}

// Fitter fits a semivariogram model of a fixed family to empirical points by
// nonlinear least squares
type Fitter struct {
	family        Family
	maxLag        float64
	pairWeighted  bool
	rangeFraction float64
	rangeLimit    float64
	maxIterations int
}

// FitResult is a fitted model with goodness-of-fit diagnostics
type FitResult struct {
	Model Model

	// RSquared is the coefficient of determination of the model against the bins
	RSquared float64

	// Evaluations is the number of objective evaluations used by the optimizer
	Evaluations int

	// Status is the optimizer's termination status
	Status optimize.Status
}

// NewFitter creates a fitter for the given family. maxLag is the largest lag
// used when the empirical semivariogram was built; it scales the initial and
// maximum range.
func NewFitter(family Family, maxLag float64, opts ...FitOption) *Fitter {
	f := &Fitter{
		family:        family,
		maxLag:        maxLag,
		rangeFraction: defaultRangeFraction,
		rangeLimit:    defaultRangeLimit * maxLag,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit minimizes the (optionally pair-weighted) sum of squared residuals between
// the model and the empirical points, subject to nugget >= 0, sill >= 0 and
// 0 < range <= 10 * maxLag.
//
// The constraints are enforced by reparameterization: nugget = a^2,
// sill = b^2 and range = limit * logistic(c), and (a, b, c) is searched with
// Nelder-Mead. Initial guesses are nugget = min semivariance,
// sill = max - min and range = maxLag * initial range fraction.
func (f *Fitter) Fit(points []models.SemivariogramPoint) (*FitResult, error) {
	if len(points) < minFitBins {
		return nil, &FitConvergenceError{
			Bins:   len(points),
			Reason: fmt.Sprintf("need at least %d non-empty bins", minFitBins),
		}
	}
	if f.family == nil {
		return nil, fmt.Errorf("fitter has no semivariogram family")
	}
	if !(f.maxLag > 0) {
		return nil, fmt.Errorf("max lag must be positive, got %g", f.maxLag)
	}

	lags := make([]float64, len(points))
	semis := make([]float64, len(points))
	weights := make([]float64, len(points))
	minSemi, maxSemi := math.Inf(1), math.Inf(-1)
	totalPairs := 0
	for i, p := range points {
		lags[i] = p.Lag
		semis[i] = p.Semivariance
		minSemi = math.Min(minSemi, p.Semivariance)
		maxSemi = math.Max(maxSemi, p.Semivariance)
		totalPairs += p.Pairs
	}
	for i, p := range points {
		weights[i] = 1
		if f.pairWeighted && totalPairs > 0 {
			weights[i] = float64(p.Pairs) * float64(len(points)) / float64(totalPairs)
		}
	}

	toModel := func(x []float64) Model {
		return Model{
			Family: f.family,
			Nugget: x[0] * x[0],
			Sill:   x[1] * x[1],
			Range:  f.rangeLimit / (1 + math.Exp(-x[2])),
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			m := toModel(x)
			if !(m.Range > 0) {
				return math.Inf(1)
			}
			sum := 0.0
			for i := range lags {
				r := m.Gamma(lags[i]) - semis[i]
				sum += weights[i] * r * r
			}
			return sum
		},
	}

	r0 := f.rangeFraction * f.maxLag / f.rangeLimit
	init := []float64{
		math.Sqrt(math.Max(minSemi, 0)),
		math.Sqrt(math.Max(maxSemi-minSemi, 0)),
		math.Log(r0 / (1 - r0)),
	}

	settings := &optimize.Settings{
		MajorIterations: f.maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 200,
		},
	}
	method := &optimize.NelderMead{SimplexSize: 0.25}

	result, err := optimize.Minimize(problem, init, settings, method)
	if err != nil {
		return nil, &FitConvergenceError{Bins: len(points), Reason: "optimizer error", Err: err}
	}
	if result.Status.Early() {
		return nil, &FitConvergenceError{
			Bins:   len(points),
			Reason: fmt.Sprintf("optimizer stopped early: %v", result.Status),
			Err:    result.Status.Err(),
		}
	}

	model := toModel(result.X)
	if err := model.Validate(); err != nil {
		return nil, &FitConvergenceError{Bins: len(points), Reason: "invalid fitted parameters", Err: err}
	}

	fitted := make([]float64, len(lags))
	for i, h := range lags {
		fitted[i] = model.Gamma(h)
	}

	return &FitResult{
		Model:       model,
		RSquared:    stat.RSquaredFrom(fitted, semis, weights),
		Evaluations: result.Stats.FuncEvaluations,
		Status:      result.Status,
	}, nil
}
