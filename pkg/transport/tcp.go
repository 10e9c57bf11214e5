package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

type TCPDialer struct {
	addr        string
	dialTimeout time.Duration
	keepAlive   time.Duration
}

type TCPOption func(*TCPDialer)

func WithDialTimeout(d time.Duration) TCPOption {
	return func(t *TCPDialer) {
		if d > 0 {
			t.dialTimeout = d
		}
	}
}

func WithKeepAlive(d time.Duration) TCPOption {
	return func(t *TCPDialer) {
		if d != 0 {
			t.keepAlive = d
		}
	}
}

func NewTCPDialer(addr string, opts ...TCPOption) *TCPDialer {
	d := &TCPDialer{
		addr:        addr,
		dialTimeout: 5 * time.Second,
		keepAlive:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *TCPDialer) Dial(ctx context.Context) (Conn, error) {
	nd := net.Dialer{Timeout: d.dialTimeout, KeepAlive: d.keepAlive}
	conn, err := nd.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", d.addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return NewStreamConn(conn), nil
}

// TCPListener accepts one controller at a time on a TCP port.
type TCPListener struct {
	ln *net.TCPListener
}

func ListenTCP(addr string) (*TCPListener, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve tcp %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *TCPListener) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.SetDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			_ = l.ln.SetDeadline(time.Time{})
		}
	}()

	conn, err := l.ln.AcceptTCP()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("accept tcp: %w", err)
	}
	_ = conn.SetNoDelay(true)
	return NewStreamConn(conn), nil
}

// Advertise is a no-op: a listening socket is always discoverable.
func (l *TCPListener) Advertise() error {
	return nil
}

func (l *TCPListener) Close() error {
	return l.ln.Close()
}
