// Package motor defines the contract between the link core and the hardware that
// drives the vehicle's two motor channels.
//
// The core only ever calls Apply with powers in [-100, 100] and calls StopAll on every
// safety stop. Hardware and firmware differences live inside Actuator implementations.
package motor

import (
	"fmt"
	"log"
	"sync"
)

const (
	MaxPower = 100
	MinPower = -100
)

// Actuator drives the drive and steering motor channels.
type Actuator interface {
	Apply(drive, steer int8) error
	StopAll() error
}

// Versioned is implemented by actuators that report the hardware API they target.
type Versioned interface {
	Version() string
}

// VersionOf returns the actuator's reported version, or "unversioned".
func VersionOf(a Actuator) string {
	if v, ok := a.(Versioned); ok {
		return v.Version()
	}
	return "unversioned"
}

// CheckRange reports powers outside the range the core guarantees.
func CheckRange(drive, steer int8) error {
	if drive < MinPower || drive > MaxPower || steer < MinPower || steer > MaxPower {
		return fmt.Errorf("motor power out of range: drive=%d steer=%d", drive, steer)
	}
	return nil
}

// LogActuator is a dry-run actuator that only reports what it would do.
type LogActuator struct {
	mu     sync.Mutex
	logger *log.Logger
	drive  int8
	steer  int8
}

// NewLogActuator logs every change of motor power. A nil logger uses log.Default.
func NewLogActuator(logger *log.Logger) *LogActuator {
	if logger == nil {
		logger = log.Default()
	}
	return &LogActuator{logger: logger}
}

func (a *LogActuator) Apply(drive, steer int8) error {
	if err := CheckRange(drive, steer); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if drive == a.drive && steer == a.steer {
		return nil
	}
	a.drive, a.steer = drive, steer
	a.logger.Printf("motors: drive=%d steer=%d", drive, steer)
	return nil
}

func (a *LogActuator) StopAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drive, a.steer = 0, 0
	a.logger.Printf("motors: stop")
	return nil
}

// Power returns the last applied powers.
func (a *LogActuator) Power() (drive, steer int8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drive, a.steer
}

func (a *LogActuator) Version() string {
	return "dry-run"
}
