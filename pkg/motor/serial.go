package motor

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const (
	// Motor-controller frame: start | drive | steer | end.
	frameStart = 0xA8
	frameEnd   = 0x15
	frameSize  = 4

	DefaultBaudRate = 9600
)

// SerialActuator forwards motor powers to a motor-controller MCU over a serial port.
type SerialActuator struct {
	mu   sync.Mutex
	port io.WriteCloser
	buf  [frameSize]byte
}

// OpenSerialActuator opens the motor controller on portName.
func OpenSerialActuator(portName string, baud int) (*SerialActuator, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open motor controller %s", portName)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, errors.Wrap(err, "set motor controller read timeout")
	}
	return NewSerialActuator(port), nil
}

// NewSerialActuator wraps an already open port.
func NewSerialActuator(port io.WriteCloser) *SerialActuator {
	return &SerialActuator{port: port}
}

func (a *SerialActuator) Apply(drive, steer int8) error {
	if err := CheckRange(drive, steer); err != nil {
		return err
	}
	return a.write(drive, steer)
}

func (a *SerialActuator) StopAll() error {
	return a.write(0, 0)
}

func (a *SerialActuator) write(drive, steer int8) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = [frameSize]byte{frameStart, byte(drive), byte(steer), frameEnd}
	if _, err := a.port.Write(a.buf[:]); err != nil {
		return errors.Wrap(err, "write motor frame")
	}
	return nil
}

func (a *SerialActuator) Close() error {
	return a.port.Close()
}

func (a *SerialActuator) Version() string {
	return "serial-frame-v1"
}
