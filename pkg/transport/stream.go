package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"rclink/pkg/protocol"
)

const defaultBufSize = 4 * 1024

// MaxFrameSize bounds an encoded frame. Longer runs without a delimiter are line noise.
const MaxFrameSize = 16

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// StreamConn frames messages with COBS over any byte stream.
type StreamConn struct {
	rw     io.ReadWriteCloser
	reader *bufio.Reader

	// skipping is set after an oversized frame until the next delimiter. Receive only.
	skipping bool

	wmu       sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewStreamConn(rw io.ReadWriteCloser) *StreamConn {
	return &StreamConn{
		rw:     rw,
		reader: bufio.NewReaderSize(rw, defaultBufSize),
	}
}

func (c *StreamConn) Send(msg []byte) error {
	if c.closed.Load() {
		return &WriteError{Err: ErrClosed}
	}
	frame := append(protocol.CobsEncode(msg), protocol.FrameDelimiter)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.rw.Write(frame); err != nil {
		if peerGone(err) {
			c.markClosed()
		}
		return &WriteError{Err: err}
	}
	return nil
}

// peerGone reports write errors that mean the other end has closed the link.
func peerGone(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// Receive reads the next frame. Cancelling ctx interrupts the read only on streams with
// read deadlines (TCP); other streams are interrupted by Close.
func (c *StreamConn) Receive(ctx context.Context) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if d, ok := c.rw.(readDeadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetReadDeadline(time.Now())
		})
		defer func() {
			if !stop() {
				_ = d.SetReadDeadline(time.Time{})
			}
		}()
	}

	for {
		frame, err := c.readFrame()
		if errors.Is(err, protocol.ErrBadFrame) {
			return nil, err
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.markClosed()
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if len(frame) == 0 {
			continue
		}
		return protocol.CobsDecode(frame)
	}
}

// readFrame returns the bytes before the next delimiter. A frame longer than
// MaxFrameSize fails with ErrBadFrame and the rest of it is dropped.
func (c *StreamConn) readFrame() ([]byte, error) {
	var frame []byte
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		if c.skipping {
			c.skipping = b != protocol.FrameDelimiter
			continue
		}
		if b == protocol.FrameDelimiter {
			return frame, nil
		}
		if len(frame) == MaxFrameSize {
			c.skipping = true
			return nil, fmt.Errorf("frame exceeds %d bytes: %w", MaxFrameSize, protocol.ErrBadFrame)
		}
		frame = append(frame, b)
	}
}

func (c *StreamConn) IsConnected() bool {
	return !c.closed.Load()
}

func (c *StreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.rw.Close()
	})
	return err
}

func (c *StreamConn) markClosed() {
	c.closed.Store(true)
}
