// Package transport carries command messages between the controller and the hub.
//
// Every Conn preserves message boundaries: one Send is one Receive on the other end.
// Byte-stream links (serial, TCP) get boundaries from COBS framing.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultConnectAttempts = 3
	DefaultConnectBackoff  = 1 * time.Second
)

// ErrClosed is returned by operations on a closed connection or listener.
var ErrClosed = errors.New("transport closed")

type Conn interface {
	Send(msg []byte) error
	// Receive blocks for the next message. Framing failures match protocol.ErrBadFrame and
	// leave the connection usable; any other error means the peer is gone.
	Receive(ctx context.Context) ([]byte, error)
	IsConnected() bool
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	// Advertise refreshes whatever makes the listener discoverable.
	Advertise() error
	Close() error
}

// WriteError wraps a failed Send.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write message: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ConnectError is returned once every connect attempt has failed.
type ConnectError struct {
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// DialWithRetry dials up to attempts times, waiting backoff between failures.
func DialWithRetry(ctx context.Context, d Dialer, attempts int, backoff time.Duration, onError func(attempt int, err error)) (Conn, error) {
	if attempts <= 0 {
		attempts = DefaultConnectAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := d.Dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if onError != nil {
			onError(attempt, err)
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, &ConnectError{Attempts: attempts, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
