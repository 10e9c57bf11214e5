package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const DefaultSerialBaud = 115200

func serialMode(baud int) *serial.Mode {
	if baud <= 0 {
		baud = DefaultSerialBaud
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
}

func openSerial(port string, baud int) (Conn, error) {
	p, err := serial.Open(port, serialMode(baud))
	if err != nil {
		return nil, errors.Wrapf(err, "open serial link %s", port)
	}
	return NewStreamConn(p), nil
}

// ListSerialPorts returns the serial ports present on this machine.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	return ports, nil
}

// SerialDialer opens a serial radio bridge on the controller side.
type SerialDialer struct {
	Port string
	Baud int
}

func (d SerialDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return openSerial(d.Port, d.Baud)
}

// SerialListener waits for the hub's serial radio to become available.
type SerialListener struct {
	Port  string
	Baud  int
	Retry time.Duration
}

// Accept opens the port, retrying until it succeeds or ctx ends.
func (l SerialListener) Accept(ctx context.Context) (Conn, error) {
	retry := l.Retry
	if retry <= 0 {
		retry = DefaultConnectBackoff
	}
	for {
		conn, err := openSerial(l.Port, l.Baud)
		if err == nil {
			return conn, nil
		}
		if err := sleep(ctx, retry); err != nil {
			return nil, err
		}
	}
}

// Advertise is a no-op: a serial radio is paired out of band.
func (l SerialListener) Advertise() error {
	return nil
}

func (l SerialListener) Close() error {
	return nil
}
