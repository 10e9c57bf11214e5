package input

import (
	"github.com/0xcafed00d/joystick"
	"github.com/pkg/errors"
)

// Source is a polled controller.
type Source interface {
	Name() string
	Poll() (State, error)
	Close() error
}

// axisMax is the magnitude the joystick driver reports at full deflection.
const axisMax = 32767.0

// JoystickSource reads a gamepad through the OS joystick interface.
type JoystickSource struct {
	js   joystick.Joystick
	name string
}

// OpenJoystick opens joystick device index.
func OpenJoystick(index int) (*JoystickSource, error) {
	js, err := joystick.Open(index)
	if err != nil {
		return nil, errors.Wrapf(err, "open joystick %d", index)
	}
	return &JoystickSource{js: js, name: js.Name()}, nil
}

// FindJoystick opens the first available joystick among the first limit indices.
func FindJoystick(limit int) (*JoystickSource, error) {
	if limit <= 0 {
		limit = 4
	}
	var lastErr error
	for i := 0; i < limit; i++ {
		src, err := OpenJoystick(i)
		if err == nil {
			return src, nil
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "no controller found")
}

func (j *JoystickSource) Name() string {
	return j.name
}

// Poll reads the current device state, scaling axes into [-1, 1].
func (j *JoystickSource) Poll() (State, error) {
	st, err := j.js.Read()
	if err != nil {
		return State{}, errors.Wrap(err, "read joystick")
	}
	axes := make([]float64, len(st.AxisData))
	for i, v := range st.AxisData {
		axes[i] = scaleAxis(v)
	}
	return State{Axes: axes, Buttons: st.Buttons}, nil
}

func (j *JoystickSource) Close() error {
	j.js.Close()
	return nil
}

func scaleAxis(v int) float64 {
	f := float64(v) / axisMax
	if f > 1 {
		return 1
	}
	if f < -1 {
		return -1
	}
	return f
}
