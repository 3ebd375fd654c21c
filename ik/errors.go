package ik

import (
	"errors"
	"fmt"
)

// ErrLegSolveDivergence matches every *LegSolveError via errors.Is.
var ErrLegSolveDivergence = errors.New("leg solve diverged")

// LegSolveError reports a leg whose constraint residuals never dropped below
// tolerance.
type LegSolveError struct {
	Leg        int
	Residual   float64
	Iterations int
	Reason     string
}

func (e *LegSolveError) Error() string {
	msg := fmt.Sprintf("leg %d: %v after %d iterations (residual %.3g)",
		e.Leg, ErrLegSolveDivergence, e.Iterations, e.Residual)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is lets errors.Is(err, ErrLegSolveDivergence) match.
func (e *LegSolveError) Is(target error) bool {
	return target == ErrLegSolveDivergence
}
