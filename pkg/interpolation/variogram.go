package interpolation

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Family is the shape of a semivariogram model, normalized to a unit sill and
// unit range. Shape must be non-decreasing with Shape(0) = 0 and Shape(r) -> 1
// as r -> infinity. The range is the practical range: the lag at which the
// structured part has reached about 95% of the sill.
type Family interface {
	// Name identifies the family in configuration files
	Name() string

	// Shape evaluates the normalized structure at r = h / range (r >= 0)
	Shape(r float64) float64
}

// ExponentialFamily is gamma(r) = 1 - exp(-3r)
type ExponentialFamily struct{}

func (ExponentialFamily) Name() string { return "exponential" }

func (ExponentialFamily) Shape(r float64) float64 {
	return 1 - math.Exp(-3*r)
}

// SphericalFamily reaches the sill exactly at r = 1
type SphericalFamily struct{}

func (SphericalFamily) Name() string { return "spherical" }

func (SphericalFamily) Shape(r float64) float64 {
	if r >= 1 {
		return 1
	}
	return 1.5*r - 0.5*r*r*r
}

// GaussianFamily is gamma(r) = 1 - exp(-3r^2), parabolic near the origin
type GaussianFamily struct{}

func (GaussianFamily) Name() string { return "gaussian" }

func (GaussianFamily) Shape(r float64) float64 {
	return 1 - math.Exp(-3*r*r)
}

var families = map[string]Family{
	"exponential": ExponentialFamily{},
	"spherical":   SphericalFamily{},
	"gaussian":    GaussianFamily{},
}

// RegisterFamily makes a custom family available to FamilyByName.
// It is meant to be called from init functions.
func RegisterFamily(f Family) {
	families[strings.ToLower(f.Name())] = f
}

// FamilyByName resolves a family from its configuration name
func FamilyByName(name string) (Family, error) {
	if f, ok := families[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown semivariogram family %q (known: %s)", name, strings.Join(FamilyNames(), ", "))
}

// FamilyNames lists the registered family names in sorted order
func FamilyNames() []string {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model is a fitted semivariogram: a family scaled by nugget, sill and range.
//
// Gamma(0) is exactly 0 and Gamma(h) -> Nugget as h -> 0+, so the nugget shows
// up as a discontinuity at the origin. This keeps kriging an exact interpolator
// at the sample locations.
type Model struct {
	Family Family
	Nugget float64
	Sill   float64
	Range  float64
}

// Gamma evaluates the semivariogram at lag h
func (m Model) Gamma(h float64) float64 {
	if h <= 0 {
		return 0
	}
	return m.Nugget + m.Sill*m.Family.Shape(h/m.Range)
}

// TotalVariance is the asymptotic semivariance Nugget + Sill, which is also the
// covariance at zero lag
func (m Model) TotalVariance() float64 {
	return m.Nugget + m.Sill
}

// Covariance is C(h) = Nugget + Sill - Gamma(h)
func (m Model) Covariance(h float64) float64 {
	return m.TotalVariance() - m.Gamma(h)
}

// Validate checks the parameter constraints nugget >= 0, sill >= 0, range > 0
func (m Model) Validate() error {
	switch {
	case m.Family == nil:
		return fmt.Errorf("semivariogram model has no family")
	case !(m.Nugget >= 0) || math.IsInf(m.Nugget, 0):
		return fmt.Errorf("invalid nugget %g", m.Nugget)
	case !(m.Sill >= 0) || math.IsInf(m.Sill, 0):
		return fmt.Errorf("invalid sill %g", m.Sill)
	case !(m.Range > 0) || math.IsInf(m.Range, 0):
		return fmt.Errorf("invalid range %g", m.Range)
	}
	return nil
}

func (m Model) String() string {
	name := "<nil>"
	if m.Family != nil {
		name = m.Family.Name()
	}
	return fmt.Sprintf("%s(nugget=%.4g, sill=%.4g, range=%.4g)", name, m.Nugget, m.Sill, m.Range)
}
