package ik

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"golang.org/x/sync/errgroup"
)

// Config gathers everything the pipeline needs. Zero sections take defaults.
type Config struct {
	Mechanism Mechanism      `json:"mechanism,omitempty" yaml:"mechanism,omitempty"`
	Workspace *Workspace     `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	Actuators ActuatorLimits `json:"actuators,omitempty" yaml:"actuators,omitempty"`
	Solver    SolverOptions  `json:"solver,omitempty" yaml:"solver,omitempty"`
}

// Result is the outcome of one pose solve.
type Result struct {
	Requested       Pose               `json:"requested"`
	Pose            Pose               `json:"pose"` // after clamping
	PoseClamped     bool               `json:"pose_clamped"`
	Targets         [Legs]LegTarget    `json:"targets"`
	Legs            [Legs]LegSolution  `json:"-"`
	Lengths         [Actuators]float64 `json:"lengths"`
	TravelPositions [Actuators]float64 `json:"travel_positions"`
	Command         ActuatorCommand    `json:"command"`
	Saturated       bool               `json:"saturated"`
}

// Solver runs clamp, projection, the three leg solves and actuator mapping.
// It holds no mutable state and is safe for concurrent use.
type Solver struct {
	mech      Mechanism
	workspace Workspace
	limits    ActuatorLimits
	opts      SolverOptions
	logger    logging.Logger
}

// NewSolver validates cfg and fills defaults.
func NewSolver(cfg Config, logger logging.Logger) (*Solver, error) {
	s := &Solver{
		mech:      cfg.Mechanism.WithDefaults(),
		workspace: DefaultWorkspace(),
		limits:    cfg.Actuators.WithDefaults(),
		opts:      cfg.Solver.WithDefaults(),
		logger:    logger,
	}
	if cfg.Workspace != nil {
		s.workspace = *cfg.Workspace
	}
	if err := s.mech.Validate(); err != nil {
		return nil, err
	}
	if err := s.workspace.Validate(); err != nil {
		return nil, err
	}
	if err := s.limits.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Mechanism returns the geometry in use.
func (s *Solver) Mechanism() Mechanism { return s.mech }

// Workspace returns the clamp envelope in use.
func (s *Solver) Workspace() Workspace { return s.workspace }

// Limits returns the actuator limits in use.
func (s *Solver) Limits() ActuatorLimits { return s.limits }

// Solve maps a raw pose to an actuator command. Out-of-range poses and
// lengths are saturated silently; a leg that fails to converge aborts the
// solve with a *LegSolveError.
func (s *Solver) Solve(ctx context.Context, p Pose) (*Result, error) {
	clamped := s.workspace.Clamp(p)
	res := &Result{
		Requested:   p,
		Pose:        clamped,
		PoseClamped: clamped != p,
		Targets:     Project(clamped, s.mech),
	}
	if res.PoseClamped && s.logger != nil {
		s.logger.Debugf("pose %v clamped to %v", p, clamped)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range res.Targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sol, err := SolveLeg(i, res.Targets[i], s.mech, s.opts)
			if err != nil {
				return err
			}
			res.Legs[i] = sol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "solving pose %v", clamped)
	}

	res.Lengths = Lengths(res.Legs, s.mech.L)
	res.TravelPositions = s.limits.TravelPositions(res.Lengths)
	res.Command = s.limits.Map(res.Lengths)
	res.Saturated = s.limits.Saturated(res.Lengths)
	if res.Saturated && s.logger != nil {
		s.logger.Debugf("actuator lengths %v saturated to %v", res.Lengths, res.Command)
	}
	return res, nil
}
