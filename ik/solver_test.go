package ik

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// centeredSigma is the root of the constraints for a leg whose target sits on
// its own axis, where both segments share a length.
func centeredSigma(m Mechanism, z float64) float64 {
	k := 0.25 * (1 - math.Pow(1/m.K1, 2))
	qa := 1 - k*(2+2*math.Cos(2*m.K2))
	qb := 2 * m.K3 * math.Sin(m.K2)
	qc := m.K3*m.K3 + z*z - 1
	return (-qb + math.Sqrt(qb*qb-4*qa*qc)) / (2 * qa)
}

func TestSolveLegCentered(t *testing.T) {
	m := DefaultMechanism()
	for _, height := range []float64{12.75, 30, 48, 63.75} {
		targets := Project(Pose{Z: height}, m)
		want := centeredSigma(m, targets[0].Z)
		for i, tgt := range targets {
			sol, err := SolveLeg(i, tgt, m, SolverOptions{})
			require.NoError(t, err)
			assert.InDelta(t, want, sol.SigmaA(), 1e-9, "z=%v leg %d", height, i)
			assert.InDelta(t, want, sol.SigmaB(), 1e-9, "z=%v leg %d", height, i)
		}
	}
	assert.InDelta(t, 0.23443610320039873, centeredSigma(m, (48-m.HT-m.HB)/m.L), 1e-12)
}

func TestSolveLegResidualsAcrossWorkspace(t *testing.T) {
	m := DefaultMechanism()
	ws := DefaultWorkspace()
	rng := rand.New(rand.NewSource(42))
	pick := func(r Range) float64 { return r.Min + rng.Float64()*(r.Max-r.Min) }

	for n := 0; n < 500; n++ {
		p := Pose{
			X: pick(ws.X), Y: pick(ws.Y), Z: pick(ws.Z),
			Yaw: pick(ws.Angle), Pitch: pick(ws.Angle), Roll: pick(ws.Angle),
		}
		for i, tgt := range Project(p, m) {
			sol, err := SolveLeg(i, tgt, m, SolverOptions{})
			if err != nil {
				t.Fatalf("pose %v leg %d: %v", p, i, err)
			}
			f1, f2 := Residuals(tgt, m, sol.SigmaA(), sol.SigmaB())
			if math.Abs(f1) > 1e-6 || math.Abs(f2) > 1e-6 {
				t.Fatalf("pose %v leg %d: residuals %g, %g", p, i, f1, f2)
			}
			if sol.Iterations() > 20 {
				t.Errorf("pose %v leg %d took %d iterations", p, i, sol.Iterations())
			}
		}
	}
}

func TestSolveLegCustomSeed(t *testing.T) {
	m := DefaultMechanism()
	tgt := Project(Pose{X: 3, Y: -2, Z: 40, Pitch: 0.1}, m)[1]

	fromDefault, err := SolveLeg(1, tgt, m, SolverOptions{})
	require.NoError(t, err)
	fromNear, err := SolveLeg(1, tgt, m, SolverOptions{Seed: [2]float64{0.3, 0.3}})
	require.NoError(t, err)

	assert.InDelta(t, fromDefault.SigmaA(), fromNear.SigmaA(), 1e-9)
	assert.InDelta(t, fromDefault.SigmaB(), fromNear.SigmaB(), 1e-9)
}

func TestSolveLegTopCornerLeavesLocalMinimum(t *testing.T) {
	m := DefaultMechanism()
	p := Pose{X: 5.8098, Y: -4.6596, Z: 63.6293, Yaw: -0.3366, Pitch: -0.4551, Roll: -0.3175}
	tgt := Project(p, m)[0]

	_, err := newLegEquations(tgt, m).solveFrom(0, DefaultSolverOptions().Seed, DefaultSolverOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local minimum")

	sol, err := SolveLeg(0, tgt, m, SolverOptions{})
	require.NoError(t, err)
	f1, f2 := Residuals(tgt, m, sol.SigmaA(), sol.SigmaB())
	assert.Less(t, math.Abs(f1), 1e-9)
	assert.Less(t, math.Abs(f2), 1e-9)
	assert.InDelta(t, -0.173349, sol.SigmaA(), 1e-5)
	assert.InDelta(t, 0.203715, sol.SigmaB(), 1e-5)
	assert.False(t, sol.Positive())

	for i, tgt := range Project(p, m) {
		_, err := SolveLeg(i, tgt, m, SolverOptions{})
		assert.NoError(t, err, "leg %d", i)
	}
}

func TestSolveLegIterationLimit(t *testing.T) {
	m := DefaultMechanism()
	tgt := Project(Pose{Z: 48}, m)[2]

	_, err := SolveLeg(2, tgt, m, SolverOptions{MaxIterations: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLegSolveDivergence))

	var legErr *LegSolveError
	require.True(t, errors.As(err, &legErr))
	assert.Equal(t, 2, legErr.Leg)
	assert.Equal(t, 1, legErr.Iterations)
	assert.Greater(t, legErr.Residual, 1e-9)
}

func TestSolveLegNonFinite(t *testing.T) {
	m := DefaultMechanism()
	_, err := SolveLeg(0, LegTarget{X: math.NaN()}, m, SolverOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLegSolveDivergence))
	assert.Contains(t, err.Error(), "not finite")
}

func TestLegSolutionLengths(t *testing.T) {
	sol := LegSolution{sigmaA: 0.25, sigmaB: 0.5}
	a, b := sol.Lengths(68)
	assert.Equal(t, 17.0, a)
	assert.Equal(t, 34.0, b)
	assert.True(t, sol.Positive())
	assert.False(t, LegSolution{sigmaA: 0.1, sigmaB: -0.01}.Positive())
}
