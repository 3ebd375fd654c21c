package ik

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SolverOptions tune the per-leg root finder.
type SolverOptions struct {
	// Seed is the starting (sigmaA, sigmaB) in normalized units.
	Seed          [2]float64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Tolerance     float64    `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	MaxIterations int        `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

// DefaultSolverOptions seeds at (5, 5) with a 1e-9 residual tolerance.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		Seed:          [2]float64{5, 5},
		Tolerance:     1e-9,
		MaxIterations: 100,
	}
}

// WithDefaults fills zero fields from DefaultSolverOptions.
func (o SolverOptions) WithDefaults() SolverOptions {
	d := DefaultSolverOptions()
	if o.Seed == [2]float64{} {
		o.Seed = d.Seed
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	return o
}

// LegSolution is a pair of normalized actuator-segment lengths that satisfies
// both leg constraints. Only SolveLeg creates non-zero values.
type LegSolution struct {
	sigmaA, sigmaB float64
	residual       float64
	iterations     int
}

// SigmaA is the normalized length of the first actuator segment.
func (s LegSolution) SigmaA() float64 { return s.sigmaA }

// SigmaB is the normalized length of the second actuator segment.
func (s LegSolution) SigmaB() float64 { return s.sigmaB }

// Residual is the largest absolute constraint residual at the solution.
func (s LegSolution) Residual() float64 { return s.residual }

// Iterations is the number of Newton steps taken from the seed that converged.
func (s LegSolution) Iterations() int { return s.iterations }

// Positive reports whether both segments have positive length. Near the top
// of the workspace one segment can solve slightly negative; ActuatorLimits
// saturates such lengths to the end of travel.
func (s LegSolution) Positive() bool { return s.sigmaA > 0 && s.sigmaB > 0 }

// Lengths scales the solution to physical units.
func (s LegSolution) Lengths(l float64) (float64, float64) {
	return l * s.sigmaA, l * s.sigmaB
}

// legEquations carries the per-leg constants of both constraint equations.
type legEquations struct {
	x, y     float64
	k3       float64
	cos, sin float64
	cos2     float64
	scissor  float64 // 0.25·(1 − (1/k1)²)
	reach    float64 // 1 − (x² + k3² − 2y·k3 + y² + z²)
}

func newLegEquations(t LegTarget, m Mechanism) legEquations {
	s, c := math.Sincos(m.K2)
	return legEquations{
		x:       t.X,
		y:       t.Y,
		k3:      m.K3,
		cos:     c,
		sin:     s,
		cos2:    math.Cos(2 * m.K2),
		scissor: 0.25 * (1 - math.Pow(1/m.K1, 2)),
		reach:   1 - (t.X*t.X + m.K3*m.K3 - 2*t.Y*m.K3 + t.Y*t.Y + t.Z*t.Z),
	}
}

// lhs is the sigmaA side shared by both equations.
func (e legEquations) lhs(a float64) float64 {
	return a*a - 2*e.x*a*e.cos + 2*(e.k3-e.y)*a*e.sin
}

func (e legEquations) residuals(a, b float64) (float64, float64) {
	l := e.lhs(a)
	eq1 := l - (b*b + 2*e.x*b*e.cos + 2*(e.k3-e.y)*b*e.sin)
	// The sigmaA² term appears twice; that is the constraint as derived for
	// the hardware.
	eq2 := l - (e.reach + e.scissor*(a*a+a*a+2*a*b*e.cos2))
	return eq1, eq2
}

func (e legEquations) jacobian(a, b float64) *mat.Dense {
	dl := 2*a - 2*e.x*e.cos + 2*(e.k3-e.y)*e.sin
	return mat.NewDense(2, 2, []float64{
		dl, -(2*b + 2*e.x*e.cos + 2*(e.k3-e.y)*e.sin),
		dl - e.scissor*(4*a+2*b*e.cos2), -e.scissor * 2 * a * e.cos2,
	})
}

// Residuals evaluates both leg constraint equations at (sigmaA, sigmaB).
func Residuals(t LegTarget, m Mechanism, sigmaA, sigmaB float64) (float64, float64) {
	return newLegEquations(t, m).residuals(sigmaA, sigmaB)
}

func maxAbs(a, b float64) float64 {
	return math.Max(math.Abs(a), math.Abs(b))
}

// fallbackSeeds are tried in order when Newton iteration from the configured
// seed stalls in a local minimum of the residual. Near the corners of the
// workspace the roots lie within a few tenths of the origin.
var fallbackSeeds = [][2]float64{
	{0.3, 0.3},
	{-0.3, 0.3},
	{0.3, -0.3},
	{-0.3, -0.3},
}

// SolveLeg finds (sigmaA, sigmaB) for one leg with damped Newton iteration.
// It starts from opts.Seed and retries from fallbackSeeds if that attempt
// fails. When every attempt fails the error describes the first one. The leg
// index only labels errors.
func SolveLeg(leg int, t LegTarget, m Mechanism, opts SolverOptions) (LegSolution, error) {
	opts = opts.WithDefaults()
	eqs := newLegEquations(t, m)

	sol, firstErr := eqs.solveFrom(leg, opts.Seed, opts)
	if firstErr == nil {
		return sol, nil
	}
	for _, seed := range fallbackSeeds {
		if seed == opts.Seed {
			continue
		}
		if sol, err := eqs.solveFrom(leg, seed, opts); err == nil {
			return sol, nil
		}
	}
	return LegSolution{}, firstErr
}

// solveFrom runs damped Newton iteration from one seed. It gives up when a
// full step cannot be shortened enough to reduce the residual.
func (e legEquations) solveFrom(leg int, seed [2]float64, opts SolverOptions) (LegSolution, error) {
	a, b := seed[0], seed[1]
	f1, f2 := e.residuals(a, b)
	res := maxAbs(f1, f2)

	fail := func(iter int, reason string) (LegSolution, error) {
		return LegSolution{}, &LegSolveError{Leg: leg, Residual: res, Iterations: iter, Reason: reason}
	}

	for iter := 0; ; iter++ {
		if math.IsNaN(res) || math.IsInf(res, 0) {
			return fail(iter, "residual is not finite")
		}
		if res < opts.Tolerance {
			return LegSolution{sigmaA: a, sigmaB: b, residual: res, iterations: iter}, nil
		}
		if iter >= opts.MaxIterations {
			return fail(iter, "iteration limit reached")
		}

		var step mat.VecDense
		if err := step.SolveVec(e.jacobian(a, b), mat.NewVecDense(2, []float64{f1, f2})); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
				return fail(iter, "singular jacobian")
			}
		}
		da, db := step.AtVec(0), step.AtVec(1)

		norm := math.Hypot(f1, f2)
		scale := 1.0
		reduced := false
		var na, nb, n1, n2 float64
		for half := 0; half < maxStepHalvings; half++ {
			na, nb = a-scale*da, b-scale*db
			n1, n2 = e.residuals(na, nb)
			if math.Hypot(n1, n2) < norm {
				reduced = true
				break
			}
			scale /= 2
		}
		if !reduced {
			return fail(iter, "stalled in a local minimum")
		}
		a, b, f1, f2 = na, nb, n1, n2
		res = maxAbs(f1, f2)
	}
}

const maxStepHalvings = 30
