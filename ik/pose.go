package ik

import (
	"fmt"
	"math"
)

// Pose is a target end-effector pose. Translation is in the mechanism's length
// unit, angles in radians.
type Pose struct {
	X     float64 `json:"x" mapstructure:"x" yaml:"x"`
	Y     float64 `json:"y" mapstructure:"y" yaml:"y"`
	Z     float64 `json:"z" mapstructure:"z" yaml:"z"`
	Yaw   float64 `json:"yaw" mapstructure:"yaw" yaml:"yaw"`       // phi, about z
	Pitch float64 `json:"pitch" mapstructure:"pitch" yaml:"pitch"` // theta, about y
	Roll  float64 `json:"roll" mapstructure:"roll" yaml:"roll"`    // psi, about x
}

// PoseFromSlice builds a pose from the [x, y, z, yaw, pitch, roll] layout.
func PoseFromSlice(v []float64) (Pose, error) {
	if len(v) != 6 {
		return Pose{}, fmt.Errorf("pose needs 6 values, got %d", len(v))
	}
	return Pose{X: v[0], Y: v[1], Z: v[2], Yaw: v[3], Pitch: v[4], Roll: v[5]}, nil
}

// Slice returns the pose as [x, y, z, yaw, pitch, roll].
func (p Pose) Slice() []float64 {
	return []float64{p.X, p.Y, p.Z, p.Yaw, p.Pitch, p.Roll}
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f | yaw %.4f, pitch %.4f, roll %.4f)",
		p.X, p.Y, p.Z, p.Yaw, p.Pitch, p.Roll)
}

// Range is a closed interval.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Clamp saturates v into the range. NaN saturates to Min.
func (r Range) Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < r.Min:
		return r.Min
	case v > r.Max:
		return r.Max
	default:
		return v
	}
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Workspace is the reachable pose envelope.
type Workspace struct {
	X     Range `json:"x" yaml:"x"`
	Y     Range `json:"y" yaml:"y"`
	Z     Range `json:"z" yaml:"z"`
	Angle Range `json:"angle" yaml:"angle"` // applied to yaw, pitch and roll
}

// DefaultWorkspace returns the envelope of the built unit.
func DefaultWorkspace() Workspace {
	return Workspace{
		X:     Range{Min: -6, Max: 6},
		Y:     Range{Min: -6, Max: 6},
		Z:     Range{Min: 12.75, Max: 63.75},
		Angle: Range{Min: -math.Pi / 6, Max: math.Pi / 6},
	}
}

// Validate checks that every range is ordered.
func (w Workspace) Validate() error {
	for _, r := range []struct {
		name string
		r    Range
	}{{"x", w.X}, {"y", w.Y}, {"z", w.Z}, {"angle", w.Angle}} {
		if !(r.r.Min <= r.r.Max) {
			return fmt.Errorf("workspace %s range is empty: [%v, %v]", r.name, r.r.Min, r.r.Max)
		}
	}
	return nil
}

// Clamp saturates every field of p into the workspace. It never fails.
func (w Workspace) Clamp(p Pose) Pose {
	return Pose{
		X:     w.X.Clamp(p.X),
		Y:     w.Y.Clamp(p.Y),
		Z:     w.Z.Clamp(p.Z),
		Yaw:   w.Angle.Clamp(p.Yaw),
		Pitch: w.Angle.Clamp(p.Pitch),
		Roll:  w.Angle.Clamp(p.Roll),
	}
}

// Contains reports whether p is already inside the workspace.
func (w Workspace) Contains(p Pose) bool {
	return w.X.Contains(p.X) && w.Y.Contains(p.Y) && w.Z.Contains(p.Z) &&
		w.Angle.Contains(p.Yaw) && w.Angle.Contains(p.Pitch) && w.Angle.Contains(p.Roll)
}

// Clamp saturates p into DefaultWorkspace.
func Clamp(p Pose) Pose {
	return DefaultWorkspace().Clamp(p)
}
