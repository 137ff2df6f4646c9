package interpolation

import "fmt"

// InsufficientDataError is returned when too few samples are available to
// estimate a semivariogram
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d samples, need at least %d", e.Have, e.Need)
}

// FitConvergenceError is returned when a semivariogram model cannot be fitted,
// either because there are too few non-empty bins or because the optimizer
// did not converge
type FitConvergenceError struct {
	Bins   int
	Reason string
	Err    error
}

func (e *FitConvergenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("semivariogram fit failed (%d bins): %s: %v", e.Bins, e.Reason, e.Err)
	}
	return fmt.Sprintf("semivariogram fit failed (%d bins): %s", e.Bins, e.Reason)
}

func (e *FitConvergenceError) Unwrap() error {
	return e.Err
}

// SingularSystemError is returned when the kriging system is singular or too
// badly conditioned to solve, typically because of duplicate sample locations
type SingularSystemError struct {
	Size      int
	Condition float64
	Reason    string
	Err       error
}

func (e *SingularSystemError) Error() string {
	msg := fmt.Sprintf("singular kriging system (%dx%d, cond=%.3g)", e.Size, e.Size, e.Condition)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SingularSystemError) Unwrap() error {
	return e.Err
}
