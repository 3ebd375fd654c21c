package ik

import (
	"math"

	"github.com/golang/geo/r3"
)

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// RotX is a rotation of t radians about the x axis.
func RotX(t float64) Mat3 {
	s, c := math.Sincos(t)
	return Mat3{
		{1, 0, 0},
		{0, c, -s},
		{0, s, c},
	}
}

// RotY is a rotation of t radians about the y axis.
func RotY(t float64) Mat3 {
	s, c := math.Sincos(t)
	return Mat3{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}
}

// RotZ is a rotation of t radians about the z axis.
func RotZ(t float64) Mat3 {
	s, c := math.Sincos(t)
	return Mat3{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return out
}

// Apply returns m·v.
func (m Mat3) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Transpose returns mᵀ, which is the inverse of a rotation.
func (m Mat3) Transpose() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Orientation is Rx(roll)·Ry(pitch)·Rz(yaw). The order is fixed: the x
// rotation is applied last in the world frame.
func Orientation(p Pose) Mat3 {
	return RotX(p.Roll).Mul(RotY(p.Pitch)).Mul(RotZ(p.Yaw))
}

// Legs is the number of scissor legs.
const Legs = 3

// legBaseAngles are the fixed base-frame rotations of legs A, B and C.
var legBaseAngles = [Legs]float64{-math.Pi / 2, math.Pi / 6, 5 * math.Pi / 6}

// LegTarget is a top ball joint expressed in its leg's base frame,
// normalized by L and measured from the actuator ball-joint height.
type LegTarget struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// topJointOffset is ball joint i in the platform frame.
func topJointOffset(i int, m Mechanism) r3.Vector {
	a := 2 * math.Pi * float64(i) / Legs
	rT := m.TopRadius()
	return r3.Vector{X: rT * math.Cos(a), Y: rT * math.Sin(a), Z: -m.HT}
}

// TopJoints returns the three top ball joints in the world frame.
func TopJoints(p Pose, m Mechanism) [Legs]r3.Vector {
	R := Orientation(p)
	t := r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	var out [Legs]r3.Vector
	for i := range out {
		out[i] = t.Add(R.Apply(topJointOffset(i, m)))
	}
	return out
}

// Axes returns the end points of the end-effector x, y and z axes drawn with
// the given length, in the world frame.
func Axes(p Pose, length float64) [3]r3.Vector {
	R := Orientation(p)
	t := r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	return [3]r3.Vector{
		t.Add(R.Apply(r3.Vector{X: length})),
		t.Add(R.Apply(r3.Vector{Y: length})),
		t.Add(R.Apply(r3.Vector{Z: length})),
	}
}

// legBase returns the base rotation and base center of leg i.
func legBase(i int, m Mechanism) (Mat3, r3.Vector) {
	rz := RotZ(legBaseAngles[i])
	return rz, rz.Apply(r3.Vector{Y: m.K4 * m.L})
}

// Project maps a pose to the three per-leg local targets. The pose is used as
// given; clamp it first.
func Project(p Pose, m Mechanism) [Legs]LegTarget {
	tops := TopJoints(p, m)
	var out [Legs]LegTarget
	for i, w := range tops {
		rz, b := legBase(i, m)
		local := rz.Transpose().Apply(w.Sub(b))
		out[i] = LegTarget{
			X: local.X / m.L,
			Y: local.Y / m.L,
			Z: (local.Z - m.HB) / m.L,
		}
	}
	return out
}
