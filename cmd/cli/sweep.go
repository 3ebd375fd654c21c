package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"tse/ik"
)

const (
	sweepPeriod    = 5 * time.Second
	sweepAmplitude = 30 * math.Pi / 180
)

// sweepPose tilts the platform around a circle: pitch follows a sine and roll
// a cosine of the elapsed time.
func sweepPose(elapsed time.Duration, z float64) ik.Pose {
	phase := 2 * math.Pi * elapsed.Seconds() / sweepPeriod.Seconds()
	return ik.Pose{
		Z:     z,
		Pitch: sweepAmplitude * math.Sin(phase),
		Roll:  sweepAmplitude * math.Cos(phase),
	}
}

func runSweep(ctx context.Context, args []string, logger logging.Logger) error {
	fs := newFlagSet("sweep", sweepUsage)
	configPath := fs.String("config", "", "extender config file (yaml or json)")
	duration := fs.Duration("duration", 20*time.Second, "how long to sweep, 0 to run until interrupted")
	rate := fs.Float64("rate", 20, "commands per second")
	z := fs.Float64("z", 48, "platform height")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", *rate)
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		return err
	}
	ext, err := openExtender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ext.Close(context.Background())

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	interval := time.Duration(float64(time.Second) / *rate)
	start := time.Now()
	var sent, failed int
	for {
		next := time.Now().Add(interval)
		pose := sweepPose(time.Since(start), *z)
		if _, _, err := ext.MoveToPose(ctx, pose); err != nil {
			if ctx.Err() != nil {
				break
			}
			failed++
			logger.Warnf("pose %v: %v", pose, err)
		} else {
			sent++
		}
		if !utils.SelectContextOrWait(ctx, time.Until(next)) {
			break
		}
	}

	logger.Infof("sweep finished: %d accepted, %d failed in %v", sent, failed, time.Since(start).Round(time.Millisecond))
	return nil
}
