package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

const pipeBuffer = 64

// PipeConn is one end of an in-memory, message-preserving connection.
type PipeConn struct {
	in       chan []byte
	out      chan []byte
	done     chan struct{}
	peerDone chan struct{}
	once     sync.Once
}

// NewPipe returns two connected ends.
func NewPipe() (*PipeConn, *PipeConn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	aDone := make(chan struct{})
	bDone := make(chan struct{})
	a := &PipeConn{in: ba, out: ab, done: aDone, peerDone: bDone}
	b := &PipeConn{in: ab, out: ba, done: bDone, peerDone: aDone}
	return a, b
}

func (p *PipeConn) Send(msg []byte) error {
	select {
	case <-p.done:
		return &WriteError{Err: ErrClosed}
	case <-p.peerDone:
		return &WriteError{Err: io.ErrClosedPipe}
	default:
	}
	buf := append([]byte(nil), msg...)
	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return &WriteError{Err: ErrClosed}
	case <-p.peerDone:
		return &WriteError{Err: io.ErrClosedPipe}
	}
}

// Receive returns queued messages even after the peer closed, then io.EOF.
func (p *PipeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, ErrClosed
	case <-p.peerDone:
		select {
		case msg := <-p.in:
			return msg, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PipeConn) IsConnected() bool {
	select {
	case <-p.done:
		return false
	case <-p.peerDone:
		return false
	default:
		return true
	}
}

func (p *PipeConn) Close() error {
	p.once.Do(func() {
		close(p.done)
	})
	return nil
}

// PipeListener hands out in-memory connections to PipeDialers.
type PipeListener struct {
	conns          chan *PipeConn
	done           chan struct{}
	once           sync.Once
	advertisements atomic.Int64
}

func NewPipeListener() *PipeListener {
	return &PipeListener{
		conns: make(chan *PipeConn, 1),
		done:  make(chan struct{}),
	}
}

func (l *PipeListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *PipeListener) Advertise() error {
	l.advertisements.Add(1)
	return nil
}

// Advertisements reports how many times Advertise was called.
func (l *PipeListener) Advertisements() int {
	return int(l.advertisements.Load())
}

func (l *PipeListener) Close() error {
	l.once.Do(func() {
		close(l.done)
	})
	return nil
}

// Dialer returns a Dialer connected to this listener.
func (l *PipeListener) Dialer() Dialer {
	return pipeDialer{l: l}
}

type pipeDialer struct {
	l *PipeListener
}

func (d pipeDialer) Dial(ctx context.Context) (Conn, error) {
	select {
	case <-d.l.done:
		return nil, fmt.Errorf("dial pipe: %w", ErrClosed)
	default:
	}
	local, remote := NewPipe()
	select {
	case d.l.conns <- remote:
		return local, nil
	case <-d.l.done:
		return nil, fmt.Errorf("dial pipe: %w", ErrClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
