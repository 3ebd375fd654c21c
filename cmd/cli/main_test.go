package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tse/ik"
)

func TestParsePose(t *testing.T) {
	p, err := parsePose([]string{"1", "-2", "48", "0.1", "0", "-0.2"})
	require.NoError(t, err)
	assert.Equal(t, ik.Pose{X: 1, Y: -2, Z: 48, Yaw: 0.1, Roll: -0.2}, p)

	_, err = parsePose([]string{"1", "2"})
	assert.Error(t, err)
	_, err = parsePose([]string{"1", "2", "x", "0", "0", "0"})
	assert.Error(t, err)
}

func TestSweepPose(t *testing.T) {
	p := sweepPose(0, 48)
	assert.Equal(t, 48.0, p.Z)
	assert.InDelta(t, 0, p.Pitch, 1e-12)
	assert.InDelta(t, math.Pi/6, p.Roll, 1e-12)

	p = sweepPose(sweepPeriod/4, 40)
	assert.InDelta(t, math.Pi/6, p.Pitch, 1e-12)
	assert.InDelta(t, 0, p.Roll, 1e-12)

	// Every sweep pose stays inside the default envelope.
	ws := ik.DefaultWorkspace()
	for d := time.Duration(0); d < sweepPeriod; d += 50 * time.Millisecond {
		assert.True(t, ws.Contains(sweepPose(d, 48)))
	}
}

func TestLoadConfigRequiresFileForTransport(t *testing.T) {
	_, err := loadConfig("", true)
	assert.Error(t, err)

	cfg, err := loadConfig("", false)
	require.NoError(t, err)
	assert.Equal(t, ik.DefaultMechanism(), cfg.Mechanism)
}
