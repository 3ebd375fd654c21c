// Package ik computes actuator commands for a Triple Scissor Extender from a
// target platform pose.
package ik

import (
	"fmt"
	"math"
)

// Mechanism holds the static geometry of a Triple Scissor Extender.
// Ratios are relative to the total scissor length L.
type Mechanism struct {
	L  float64 `json:"l,omitempty" yaml:"l,omitempty"`   // total scissor length
	K1 float64 `json:"k1,omitempty" yaml:"k1,omitempty"` // l0/L
	K2 float64 `json:"k2,omitempty" yaml:"k2,omitempty"` // actuator angle eta, radians
	K3 float64 `json:"k3,omitempty" yaml:"k3,omitempty"` // rA/L
	K4 float64 `json:"k4,omitempty" yaml:"k4,omitempty"` // rT/L
	HT float64 `json:"ht,omitempty" yaml:"ht,omitempty"` // top surface to ball joint
	HB float64 `json:"hb,omitempty" yaml:"hb,omitempty"` // base surface to actuator ball joint
}

// DefaultMechanism returns the geometry of the built unit, in inches.
func DefaultMechanism() Mechanism {
	return Mechanism{
		L:  68.0,
		K1: 18.0 / 68.0,
		K2: math.Pi / 6,
		K3: 0.0371,
		K4: 8.0 / 68.0,
		HT: 2.125,
		HB: 3.5231,
	}
}

// WithDefaults fills zero fields from DefaultMechanism.
func (m Mechanism) WithDefaults() Mechanism {
	d := DefaultMechanism()
	if m.L == 0 {
		m.L = d.L
	}
	if m.K1 == 0 {
		m.K1 = d.K1
	}
	if m.K2 == 0 {
		m.K2 = d.K2
	}
	if m.K3 == 0 {
		m.K3 = d.K3
	}
	if m.K4 == 0 {
		m.K4 = d.K4
	}
	if m.HT == 0 {
		m.HT = d.HT
	}
	if m.HB == 0 {
		m.HB = d.HB
	}
	return m
}

// Validate rejects geometry the solver cannot work with.
func (m Mechanism) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"l", m.L}, {"k1", m.K1}, {"k2", m.K2}, {"k3", m.K3},
		{"k4", m.K4}, {"ht", m.HT}, {"hb", m.HB},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("mechanism %s must be finite, got %v", f.name, f.v)
		}
	}
	if m.L <= 0 {
		return fmt.Errorf("mechanism l must be positive, got %v", m.L)
	}
	if m.K1 <= 0 {
		return fmt.Errorf("mechanism k1 must be positive, got %v", m.K1)
	}
	if m.K4 <= 0 {
		return fmt.Errorf("mechanism k4 must be positive, got %v", m.K4)
	}
	return nil
}

// TopRadius is the radius of the top ball joints around the platform center.
func (m Mechanism) TopRadius() float64 {
	return m.K4 * m.L
}
