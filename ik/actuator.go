package ik

import "fmt"

// Actuators is the number of linear actuators, two per leg.
const Actuators = 2 * Legs

// ActuatorCommand holds one value per actuator, ordered
// sigmaA0, sigmaB0, sigmaA1, sigmaB1, sigmaA2, sigmaB2.
type ActuatorCommand [Actuators]float64

// Slice returns the command values as a slice.
func (c ActuatorCommand) Slice() []float64 {
	out := make([]float64, Actuators)
	copy(out, c[:])
	return out
}

// Scale returns every value multiplied by k, for unit conversion.
func (c ActuatorCommand) Scale(k float64) ActuatorCommand {
	for i := range c {
		c[i] *= k
	}
	return c
}

// ActuatorLimits describes the travel of one linear actuator. A segment length
// l maps to travel position Offset − l.
type ActuatorLimits struct {
	Offset float64 `json:"offset,omitempty" yaml:"offset,omitempty"`
	Travel float64 `json:"travel,omitempty" yaml:"travel,omitempty"`
}

// DefaultActuatorLimits are the measured constants of the built unit.
func DefaultActuatorLimits() ActuatorLimits {
	return ActuatorLimits{Offset: 20.6, Travel: 12}
}

// WithDefaults fills zero fields from DefaultActuatorLimits.
func (a ActuatorLimits) WithDefaults() ActuatorLimits {
	d := DefaultActuatorLimits()
	if a.Offset == 0 {
		a.Offset = d.Offset
	}
	if a.Travel == 0 {
		a.Travel = d.Travel
	}
	return a
}

// Validate checks the travel range is usable.
func (a ActuatorLimits) Validate() error {
	if !(a.Travel > 0) {
		return fmt.Errorf("actuator travel must be positive, got %v", a.Travel)
	}
	return nil
}

// Position is the travel position for segment length l, saturated to
// [0, Travel].
func (a ActuatorLimits) Position(l float64) float64 {
	return Range{Min: 0, Max: a.Travel}.Clamp(a.Offset - l)
}

// Command is the length actually sent for a requested length l: the length
// that corresponds to the saturated travel position.
func (a ActuatorLimits) Command(l float64) float64 {
	return a.Offset - a.Position(l)
}

// Lengths lays the physical segment lengths of three legs out in command
// order.
func Lengths(legs [Legs]LegSolution, l float64) [Actuators]float64 {
	var out [Actuators]float64
	for i, s := range legs {
		out[2*i], out[2*i+1] = s.Lengths(l)
	}
	return out
}

// Map converts solved segment lengths into the transmitted command.
func (a ActuatorLimits) Map(lengths [Actuators]float64) ActuatorCommand {
	var out ActuatorCommand
	for i, l := range lengths {
		out[i] = a.Command(l)
	}
	return out
}

// TravelPositions returns the saturated travel position of each actuator.
func (a ActuatorLimits) TravelPositions(lengths [Actuators]float64) [Actuators]float64 {
	var out [Actuators]float64
	for i, l := range lengths {
		out[i] = a.Position(l)
	}
	return out
}

// Saturated reports whether any length falls outside the actuator travel.
func (a ActuatorLimits) Saturated(lengths [Actuators]float64) bool {
	travel := Range{Min: 0, Max: a.Travel}
	for _, l := range lengths {
		if !travel.Contains(a.Offset - l) {
			return true
		}
	}
	return false
}
