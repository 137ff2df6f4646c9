package propagation

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// ShadowingCovariance builds the covariance matrix of log-normal shadowing at
// the given points using Gudmundson's exponential model
//
//	Cov(i, j) = sigma^2 * exp(-d_ij * ln2 / corrDist)
//
// so the correlation drops to 0.5 at the correlation distance.
func ShadowingCovariance(points []orb.Point, corrDist, sigmaDb float64) *mat.SymDense {
	n := len(points)
	cov := mat.NewSymDense(n, nil)
	variance := sigmaDb * sigmaDb
	for i := 0; i < n; i++ {
		cov.SetSym(i, i, variance)
		for j := 0; j < i; j++ {
			d := planar.Distance(points[i], points[j])
			cov.SetSym(i, j, variance*math.Exp(-d*math.Ln2/corrDist))
		}
	}
	return cov
}

// CorrelatedShadowing draws one zero-mean Gaussian vector with covariance cov
func CorrelatedShadowing(cov mat.Symmetric, src rand.Source) ([]float64, error) {
	n := cov.SymmetricDim()
	mvn, ok := distmv.NewNormal(make([]float64, n), cov, src)
	if !ok {
		return nil, errors.New("shadowing covariance is not positive definite")
	}
	return mvn.Rand(nil), nil
}

// Shadowing draws a single independent shadowing value N(0, sigma^2) in dB
func Shadowing(sigmaDb float64, src rand.Source) float64 {
	if sigmaDb <= 0 {
		return 0
	}
	return distuv.Normal{Mu: 0, Sigma: sigmaDb, Src: src}.Rand()
}
