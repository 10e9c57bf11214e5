package input

import (
	"math"
	"time"
)

// DefaultDeadband is the stick magnitude at or below which an axis reads as centered.
const DefaultDeadband = 0.1

// ControlSample is one normalized reading of the operator's controls.
type ControlSample struct {
	Drive         float64   `json:"drive"`
	Steer         float64   `json:"steer"`
	Boost         float64   `json:"boost"`
	EmergencyStop bool      `json:"emergency_stop"`
	Timestamp     time.Time `json:"ts"`
}

// State is a raw gamepad reading: axes nominally in [-1, 1], buttons as a bitmask.
type State struct {
	Axes    []float64
	Buttons uint32
}

// Axis returns axis i, or 0 if the device has no such axis.
func (s State) Axis(i int) float64 {
	if i < 0 || i >= len(s.Axes) {
		return 0
	}
	return s.Axes[i]
}

// Button reports whether button i is held.
func (s State) Button(i int) bool {
	if i < 0 || i >= 32 {
		return false
	}
	return s.Buttons&(1<<uint(i)) != 0
}

// Normalizer turns raw readings into control samples for one device layout.
type Normalizer struct {
	Layout   Layout
	Deadband float64
}

// NewNormalizer returns a normalizer with the default deadband.
func NewNormalizer(layout Layout) Normalizer {
	return Normalizer{Layout: layout, Deadband: DefaultDeadband}
}

// Normalize maps a raw reading onto a ControlSample. It has no side effects.
func (n Normalizer) Normalize(st State, now time.Time) ControlSample {
	l := n.Layout

	drive := st.Axis(l.DriveAxis)
	if l.InvertDrive {
		drive = -drive
	}
	steer := st.Axis(l.SteerAxis)
	if l.InvertSteer {
		steer = -steer
	}

	boost := st.Axis(l.TriggerAxis)
	if l.TriggerRange != TriggerUnit {
		boost = (boost + 1) / 2
	}

	return ControlSample{
		Drive:         applyDeadband(drive, n.Deadband),
		Steer:         applyDeadband(steer, n.Deadband),
		Boost:         boost,
		EmergencyStop: st.Button(l.StopButton),
		Timestamp:     now,
	}
}

// applyDeadband snaps values with magnitude at or below threshold to exactly zero.
func applyDeadband(v, threshold float64) float64 {
	if math.Abs(v) <= threshold {
		return 0
	}
	return v
}
