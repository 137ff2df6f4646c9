package interpolation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultConditionLimit is the largest condition number a solver accepts
// before reporting the system as singular
const DefaultConditionLimit = 1e12

// LinearSolver solves a dense square system a x = b.
//
// Implementations must not invert a explicitly and must not modify a or b.
// A singular or ill-conditioned system is reported as *SingularSystemError.
type LinearSolver interface {
	Solve(a mat.Matrix, b mat.Vector) (*mat.VecDense, error)
}

// LUSolver solves with an LU decomposition with partial pivoting.
// The bordered kriging matrix is symmetric but indefinite, so Cholesky does
// not apply.
type LUSolver struct {
	// ConditionLimit overrides DefaultConditionLimit when positive
	ConditionLimit float64
}

func (s LUSolver) Solve(a mat.Matrix, b mat.Vector) (*mat.VecDense, error) {
	n, _ := a.Dims()

	var lu mat.LU
	lu.Factorize(a)

	cond := lu.Cond()
	if err := checkCondition(n, cond, s.ConditionLimit); err != nil {
		return nil, err
	}

	x := mat.NewVecDense(n, nil)
	if err := lu.SolveVecTo(x, false, b); err != nil {
		return nil, &SingularSystemError{Size: n, Condition: cond, Reason: "LU solve", Err: err}
	}
	return x, nil
}

// QRSolver solves with a QR decomposition. It is slower than LUSolver but
// somewhat more robust for nearly collinear sample layouts.
type QRSolver struct {
	// ConditionLimit overrides DefaultConditionLimit when positive
	ConditionLimit float64
}

func (s QRSolver) Solve(a mat.Matrix, b mat.Vector) (*mat.VecDense, error) {
	n, _ := a.Dims()

	var qr mat.QR
	qr.Factorize(a)

	cond := qr.Cond()
	if err := checkCondition(n, cond, s.ConditionLimit); err != nil {
		return nil, err
	}

	x := mat.NewVecDense(n, nil)
	if err := qr.SolveVecTo(x, false, b); err != nil {
		return nil, &SingularSystemError{Size: n, Condition: cond, Reason: "QR solve", Err: err}
	}
	return x, nil
}

// SolverByName maps a configuration name ("lu" or "qr") to a solver
func SolverByName(name string, conditionLimit float64) (LinearSolver, bool) {
	switch name {
	case "", "lu":
		return LUSolver{ConditionLimit: conditionLimit}, true
	case "qr":
		return QRSolver{ConditionLimit: conditionLimit}, true
	}
	return nil, false
}

func checkCondition(n int, cond, limit float64) error {
	if limit <= 0 {
		limit = DefaultConditionLimit
	}
	if math.IsNaN(cond) || math.IsInf(cond, 0) || cond > limit {
		return &SingularSystemError{Size: n, Condition: cond, Reason: "condition number exceeds limit"}
	}
	return nil
}
