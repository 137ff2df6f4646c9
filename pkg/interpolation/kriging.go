package interpolation

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"

	"krigingpower/internal/models"
)

// negativeVarianceTolerance is the relative roundoff below zero that is still
// reported as a variance of exactly 0
const negativeVarianceTolerance = 1e-9

// KrigingOption configures an OrdinaryKriging instance
type KrigingOption func(*OrdinaryKriging)

// WithSolver replaces the default LU solver
func WithSolver(s LinearSolver) KrigingOption {
	return func(k *OrdinaryKriging) {
		if s != nil {
			k.solver = s
		}
	}
}

// WithMaxNeighbors limits each query to its k nearest samples. Values <= 0 or
// >= the number of samples mean global kriging with all samples.
func WithMaxNeighbors(k int) KrigingOption {
	return func(ok *OrdinaryKriging) {
		ok.maxNeighbors = k
	}
}

// OrdinaryKriging is a trained ordinary kriging predictor: a fixed sample set
// and semivariogram model. It is immutable after construction and safe for
// concurrent queries.
type OrdinaryKriging struct {
	samples      models.Samples
	model        Model
	solver       LinearSolver
	maxNeighbors int

	// system is the bordered (n+1)x(n+1) covariance matrix of the full sample
	// set, built once
	system *mat.Dense
	index  *neighborIndex
}

// NewOrdinaryKriging builds the kriging system for samples under model
func NewOrdinaryKriging(samples models.Samples, model Model, opts ...KrigingOption) (*OrdinaryKriging, error) {
	if len(samples) < 1 {
		return nil, &InsufficientDataError{Have: len(samples), Need: 1}
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	k := &OrdinaryKriging{
		samples: samples,
		model:   model,
		solver:  LUSolver{},
	}
	for _, opt := range opts {
		opt(k)
	}

	if k.local() {
		k.index = newNeighborIndex(samples.Locations())
	} else {
		k.system = buildSystem(samples, model, nil)
	}

	return k, nil
}

// Model returns the semivariogram model the predictor was built with
func (k *OrdinaryKriging) Model() Model {
	return k.model
}

func (k *OrdinaryKriging) local() bool {
	return k.maxNeighbors > 0 && k.maxNeighbors < len(k.samples)
}

// Estimate computes the kriging estimate and variance at q.
//
// It solves M w = b where M is the bordered covariance matrix and
// b = [C(q, s_1) ... C(q, s_n), 1]. The last entry of w is the Lagrange
// multiplier mu. The estimate is sum(w_i v_i) and the variance is
// C(0) - sum(w_i C(q, s_i)) - mu.
func (k *OrdinaryKriging) Estimate(q orb.Point) (models.KrigingResult, error) {
	var idx []int
	system := k.system
	if k.local() {
		idx = k.index.nearest(q, k.maxNeighbors)
		system = buildSystem(k.samples, k.model, idx)
	}

	n := len(k.samples)
	if idx != nil {
		n = len(idx)
	}
	sample := func(i int) models.Sample {
		if idx != nil {
			return k.samples[idx[i]]
		}
		return k.samples[i]
	}

	rhs := mat.NewVecDense(n+1, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, k.model.Covariance(planar.Distance(q, sample(i).Location)))
	}
	rhs.SetVec(n, 1)

	w, err := k.solver.Solve(system, rhs)
	if err != nil {
		return models.KrigingResult{}, err
	}

	res := models.KrigingResult{
		Weights:  make([]float64, n),
		Lagrange: w.AtVec(n),
	}
	explained := 0.0
	for i := 0; i < n; i++ {
		wi := w.AtVec(i)
		res.Weights[i] = wi
		res.Estimate += wi * sample(i).Value
		explained += wi * rhs.AtVec(i)
	}

	total := k.model.TotalVariance()
	variance := total - explained - res.Lagrange
	if variance < 0 {
		if variance < -negativeVarianceTolerance*math.Max(total, 1) {
			return models.KrigingResult{}, &SingularSystemError{
				Size:      n + 1,
				Condition: math.NaN(),
				Reason:    "negative kriging variance",
			}
		}
		variance = 0
	}
	res.Variance = variance

	return res, nil
}

// buildSystem fills the bordered covariance matrix for the samples selected
// by idx, or for all samples when idx is nil
func buildSystem(samples models.Samples, model Model, idx []int) *mat.Dense {
	n := len(samples)
	if idx != nil {
		n = len(idx)
	}
	at := func(i int) orb.Point {
		if idx != nil {
			return samples[idx[i]].Location
		}
		return samples[i].Location
	}

	m := mat.NewDense(n+1, n+1, nil)
	c0 := model.TotalVariance()
	for i := 0; i < n; i++ {
		m.Set(i, i, c0)
		for j := 0; j < i; j++ {
			c := model.Covariance(planar.Distance(at(i), at(j)))
			m.Set(i, j, c)
			m.Set(j, i, c)
		}
		// unbiasedness constraint: weights sum to 1
		m.Set(i, n, 1)
		m.Set(n, i, 1)
	}
	return m
}

// LeaveOneOut cross-validates a model on samples: each sample is predicted
// from all the others and the RMSE of the prediction errors is returned
func LeaveOneOut(samples models.Samples, model Model, opts ...KrigingOption) (float64, error) {
	n := len(samples)
	if n < 2 {
		return 0, &InsufficientDataError{Have: n, Need: 2}
	}

	sumSq := 0.0
	rest := make(models.Samples, 0, n-1)
	for i := 0; i < n; i++ {
		rest = rest[:0]
		rest = append(rest, samples[:i]...)
		rest = append(rest, samples[i+1:]...)

		ok, err := NewOrdinaryKriging(rest, model, opts...)
		if err != nil {
			return 0, err
		}
		res, err := ok.Estimate(samples[i].Location)
		if err != nil {
			return 0, err
		}
		e := res.Estimate - samples[i].Value
		sumSq += e * e
	}

	return math.Sqrt(sumSq / float64(n)), nil
}
