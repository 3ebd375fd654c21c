package main

import (
	"context"

	"go.viam.com/rdk/logging"

	"tse/ik"
)

// runSolve prints the solution for one pose without a controller. Negative
// pose values must follow "--" so they are not read as flags.
func runSolve(ctx context.Context, args []string, logger logging.Logger) error {
	fs := newFlagSet("solve", solveUsage)
	configPath := fs.String("config", "", "extender config file (yaml or json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		return err
	}
	pose, err := parsePose(fs.Args())
	if err != nil {
		return err
	}

	solver, err := ik.NewSolver(cfg.IK(), logger)
	if err != nil {
		return err
	}
	res, err := solver.Solve(ctx, pose)
	if err != nil {
		return err
	}

	sigmas := make([][2]float64, len(res.Legs))
	for i, leg := range res.Legs {
		sigmas[i] = [2]float64{leg.SigmaA(), leg.SigmaB()}
		if !leg.Positive() {
			logger.Warnf("leg %d has a non-positive segment: %v", i, sigmas[i])
		}
	}
	return printJSON(map[string]interface{}{
		"result":      res,
		"sigmas":      sigmas,
		"transmitted": res.Command.Scale(cfg.UnitsScale),
	})
}

func runSend(ctx context.Context, args []string, logger logging.Logger) error {
	fs := newFlagSet("send", sendUsage)
	configPath := fs.String("config", "", "extender config file (yaml or json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		return err
	}
	pose, err := parsePose(fs.Args())
	if err != nil {
		return err
	}

	ext, err := openExtender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ext.Close(ctx)

	res, rep, err := ext.MoveToPose(ctx, pose)
	if err != nil {
		return err
	}
	logger.Infof("controller accepted %d values in %v", rep.Sent, rep.Duration)
	return printJSON(map[string]interface{}{
		"result": res,
		"report": rep,
	})
}
