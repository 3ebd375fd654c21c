package ik

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func randomPose(rng *rand.Rand, spread float64) Pose {
	r := func() float64 { return (rng.Float64()*2 - 1) * spread }
	return Pose{X: r(), Y: r(), Z: 40 + r(), Yaw: r() / 10, Pitch: r() / 10, Roll: r() / 10}
}

func TestClampBounds(t *testing.T) {
	tests := []struct {
		name     string
		in       Pose
		expected Pose
	}{
		{
			name:     "inside workspace is untouched",
			in:       Pose{X: 1, Y: -2, Z: 48, Yaw: 0.1, Pitch: -0.2, Roll: 0.3},
			expected: Pose{X: 1, Y: -2, Z: 48, Yaw: 0.1, Pitch: -0.2, Roll: 0.3},
		},
		{
			name:     "everything above",
			in:       Pose{X: 10, Y: 7, Z: 100, Yaw: 1, Pitch: 2, Roll: 3},
			expected: Pose{X: 6, Y: 6, Z: 63.75, Yaw: math.Pi / 6, Pitch: math.Pi / 6, Roll: math.Pi / 6},
		},
		{
			name:     "everything below",
			in:       Pose{X: -10, Y: -7, Z: 0, Yaw: -1, Pitch: -2, Roll: -3},
			expected: Pose{X: -6, Y: -6, Z: 12.75, Yaw: -math.Pi / 6, Pitch: -math.Pi / 6, Roll: -math.Pi / 6},
		},
		{
			name:     "infinities saturate",
			in:       Pose{X: math.Inf(1), Y: math.Inf(-1), Z: math.Inf(1), Yaw: math.Inf(-1)},
			expected: Pose{X: 6, Y: -6, Z: 63.75, Yaw: -math.Pi / 6},
		},
		{
			name:     "NaN goes to the lower bound",
			in:       Pose{X: math.NaN(), Y: 0, Z: math.NaN(), Roll: math.NaN()},
			expected: Pose{X: -6, Y: 0, Z: 12.75, Roll: -math.Pi / 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clamp(tt.in))
		})
	}
}

func TestClampIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ws := DefaultWorkspace()
	for i := 0; i < 2000; i++ {
		p := randomPose(rng, 80)
		once := ws.Clamp(p)
		if !ws.Contains(once) {
			t.Fatalf("clamp(%v) = %v is outside the workspace", p, once)
		}
		if twice := ws.Clamp(once); twice != once {
			t.Fatalf("clamp not idempotent: %v then %v", once, twice)
		}
	}
}

func TestWorkspaceValidate(t *testing.T) {
	assert.NoError(t, DefaultWorkspace().Validate())

	ws := DefaultWorkspace()
	ws.Z = Range{Min: 10, Max: 5}
	assert.Error(t, ws.Validate())

	ws = DefaultWorkspace()
	ws.Angle.Max = math.NaN()
	assert.Error(t, ws.Validate())
}

func TestPoseFromSlice(t *testing.T) {
	p, err := PoseFromSlice([]float64{1, 2, 3, 4, 5, 6})
	assert.NoError(t, err)
	assert.Equal(t, Pose{X: 1, Y: 2, Z: 3, Yaw: 4, Pitch: 5, Roll: 6}, p)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, p.Slice())

	_, err = PoseFromSlice([]float64{1, 2})
	assert.Error(t, err)
}
