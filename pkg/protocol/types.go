package protocol

import (
	"errors"
	"fmt"
)

const (
	// MessageSize is the exact length of a command on the wire.
	MessageSize = 3

	MaxPower = 100
	MinPower = -100

	// BasePower is the drive power scale with no boost applied.
	BasePower = 0.3
	// SteerLimit caps steering below full power to protect the steering gear.
	SteerLimit = 0.7
)

// ErrWrongLength reports a message that is not exactly MessageSize bytes.
var ErrWrongLength = errors.New("wrong message length")

// DecodeError describes a rejected message. It matches ErrWrongLength with errors.Is.
type DecodeError struct {
	Len int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode command: got %d bytes want %d", e.Len, MessageSize)
}

func (e *DecodeError) Unwrap() error {
	return ErrWrongLength
}

// MotorCommand mirrors the hub payload layout: struct { int8 drive, steer; uint8 reserved; }.
type MotorCommand struct {
	Drive    int8  `json:"drive"`
	Steer    int8  `json:"steer"`
	Reserved uint8 `json:"reserved"`
}

// Stop halts both motors.
var Stop = MotorCommand{}

func (c MotorCommand) String() string {
	return fmt.Sprintf("drive=%d steer=%d", c.Drive, c.Steer)
}

// IsStop reports whether the command leaves both motors unpowered.
func (c MotorCommand) IsStop() bool {
	return c.Drive == 0 && c.Steer == 0
}
