package ik

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActuatorCommand(t *testing.T) {
	a := DefaultActuatorLimits()

	tests := []struct {
		name     string
		length   float64
		position float64
		command  float64
	}{
		{"in range passes through", 15, 5.6, 15},
		{"fully retracted", 20.6, 0, 20.6},
		{"fully extended", 8.6, 12, 8.6},
		{"too long", 25.59, 0, 20.6},
		{"too short", 2, 12, 8.6},
		{"negative length", -0.78, 12, 8.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.position, a.Position(tt.length), 1e-12)
			assert.InDelta(t, tt.command, a.Command(tt.length), 1e-12)
		})
	}
}

func TestActuatorMapBoundedAndIdempotent(t *testing.T) {
	a := DefaultActuatorLimits()
	rng := rand.New(rand.NewSource(3))
	for n := 0; n < 1000; n++ {
		var lengths [Actuators]float64
		for i := range lengths {
			lengths[i] = rng.Float64()*60 - 20
		}
		cmd := a.Map(lengths)
		for i, c := range cmd {
			if c < a.Offset-a.Travel || c > a.Offset {
				t.Fatalf("command %d = %v out of [%v, %v]", i, c, a.Offset-a.Travel, a.Offset)
			}
		}
		again := a.Map([Actuators]float64(cmd))
		for i := range cmd {
			if d := again[i] - cmd[i]; d > 1e-12 || d < -1e-12 {
				t.Fatalf("map not idempotent: %v then %v", cmd, again)
			}
		}
	}
}

func TestActuatorSaturated(t *testing.T) {
	a := DefaultActuatorLimits()
	assert.False(t, a.Saturated([Actuators]float64{10, 11, 12, 13, 14, 15}))
	assert.True(t, a.Saturated([Actuators]float64{10, 11, 25, 13, 14, 15}))
	assert.True(t, a.Saturated([Actuators]float64{10, 11, 12, 13, 14, 1}))
}

func TestActuatorLimitsDefaults(t *testing.T) {
	assert.Equal(t, DefaultActuatorLimits(), ActuatorLimits{}.WithDefaults())
	assert.Equal(t, ActuatorLimits{Offset: 30, Travel: 12}, ActuatorLimits{Offset: 30}.WithDefaults())
	assert.Error(t, ActuatorLimits{Offset: 20, Travel: -1}.Validate())
}

func TestActuatorCommandScale(t *testing.T) {
	cmd := ActuatorCommand{1, 2, 3, 4, 5, 6}
	scaled := cmd.Scale(25.4)
	assert.InDelta(t, 25.4, scaled[0], 1e-12)
	assert.InDelta(t, 152.4, scaled[5], 1e-12)
	assert.Equal(t, 1.0, cmd[0])
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, cmd.Slice())
}
