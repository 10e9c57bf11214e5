package protocol

import "math"

// PowerScale maps the boost trigger onto the drive power multiplier:
// BasePower with no boost, full power with the trigger fully pressed.
func PowerScale(boost float64) float64 {
	boost = clampUnit(boost)
	// Interpolated so both endpoints are exact.
	return BasePower*(1-boost) + boost
}

// Encode converts normalized stick values into a wire-ready command.
// Out-of-range inputs are clamped, so encoding never fails.
func Encode(drive, steer, boost float64) MotorCommand {
	return MotorCommand{
		Drive: clampPower(clampSigned(drive) * PowerScale(boost) * 100),
		Steer: clampPower(clampSigned(steer) * SteerLimit * 100),
	}
}

// Bytes returns the 3-byte wire representation.
func (c MotorCommand) Bytes() []byte {
	return c.AppendBytes(make([]byte, 0, MessageSize))
}

// AppendBytes appends the wire representation to b.
func (c MotorCommand) AppendBytes(b []byte) []byte {
	return append(b, byte(c.Drive), byte(c.Steer), c.Reserved)
}

// Decode parses a wire message. A buffer of the right size always decodes;
// drive and steer are clamped into the valid power range, the reserved byte is kept as is.
func Decode(b []byte) (MotorCommand, error) {
	if len(b) != MessageSize {
		return MotorCommand{}, &DecodeError{Len: len(b)}
	}
	return MotorCommand{
		Drive:    clampPowerInt(int(int8(b[0]))),
		Steer:    clampPowerInt(int(int8(b[1]))),
		Reserved: b[2],
	}, nil
}

// Delta returns the largest per-axis power difference between two commands.
func Delta(a, b MotorCommand) int {
	return max(absInt(int(a.Drive)-int(b.Drive)), absInt(int(a.Steer)-int(b.Steer)))
}

func clampPower(v float64) int8 {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	if r > MaxPower {
		return MaxPower
	}
	if r < MinPower {
		return MinPower
	}
	return int8(r)
}

func clampPowerInt(v int) int8 {
	return int8(min(max(v, MinPower), MaxPower))
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampSigned bounds a stick value to [-1, 1] so SteerLimit holds for any input.
func clampSigned(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(-1, min(v, 1))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
