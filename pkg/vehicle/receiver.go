// Package vehicle runs the hub side of the link: it accepts one controller at a time,
// applies its commands to the motors and stops them when the link goes quiet.
package vehicle

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"rclink/pkg/link"
	"rclink/pkg/protocol"
	"rclink/pkg/transport"
)

const (
	DefaultTickInterval      = 20 * time.Millisecond
	DefaultAdvertiseInterval = 1 * time.Second
)

type Receiver struct {
	Listener transport.Listener
	Session  *link.Session
	Clock    link.Clock
	Logger   *log.Logger

	// TickInterval is how often liveness is checked while connected.
	TickInterval time.Duration
	// AdvertiseInterval is how often the advertisement is refreshed while waiting.
	AdvertiseInterval time.Duration

	// StopButton fires when the hub's own stop button is pressed. Nil disables it.
	StopButton <-chan struct{}
}

// received is one transport read, stamped when it came off the wire.
type received struct {
	at  time.Time
	msg []byte
	err error
}

// Run serves controllers until ctx ends or the listener fails.
func (r *Receiver) Run(ctx context.Context) error {
	r.defaults()
	if err := r.Session.Start(r.Clock.Now()); err != nil {
		return err
	}
	for {
		conn, err := r.accept(ctx)
		if err != nil {
			_ = r.Session.Shutdown(r.Clock.Now(), "listener stopped")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = r.Session.PeerConnected(r.Clock.Now())

		r.serve(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			_ = r.Session.Shutdown(r.Clock.Now(), "cancelled")
			return ctx.Err()
		}
		_ = r.Session.CleanupComplete(r.Clock.Now())
	}
}

func (r *Receiver) defaults() {
	if r.Clock == nil {
		r.Clock = link.SystemClock{}
	}
	if r.Logger == nil {
		r.Logger = log.New(io.Discard, "", 0)
	}
	if r.TickInterval <= 0 {
		r.TickInterval = DefaultTickInterval
	}
	if r.AdvertiseInterval <= 0 {
		r.AdvertiseInterval = DefaultAdvertiseInterval
	}
}

// accept waits for a controller, refreshing the advertisement meanwhile.
func (r *Receiver) accept(ctx context.Context) (transport.Conn, error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan received, 1)
	conns := make(chan transport.Conn, 1)
	go func() {
		conn, err := r.Listener.Accept(actx)
		if err != nil {
			result <- received{err: err}
			return
		}
		conns <- conn
	}()

	ticker := r.Clock.NewTicker(r.AdvertiseInterval)
	defer ticker.Stop()
	for {
		select {
		case conn := <-conns:
			return conn, nil
		case res := <-result:
			return nil, res.err
		case now := <-ticker.C():
			_ = r.Session.RefreshAdvertisement(now)
		case <-r.StopButton:
			r.Session.EmergencyStop(r.Clock.Now())
		}
	}
}

// serve runs one connection until it drops, goes quiet or ctx ends.
func (r *Receiver) serve(ctx context.Context, conn transport.Conn) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan received, 16)
	go func() {
		for {
			msg, err := conn.Receive(rctx)
			select {
			case msgs <- received{at: r.Clock.Now(), msg: msg, err: err}:
			case <-rctx.Done():
				return
			}
			if err != nil && !errors.Is(err, protocol.ErrBadFrame) {
				return
			}
		}
	}()

	ticker := r.Clock.NewTicker(r.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-msgs:
			if r.handle(ctx, m) {
				return
			}
		case now := <-ticker.C():
			if r.tick(ctx, now, msgs) {
				return
			}
		case <-r.StopButton:
			r.Session.EmergencyStop(r.Clock.Now())
		}
	}
}

// tick applies every message already received before checking liveness,
// so traffic that beat the deadline is never judged late.
func (r *Receiver) tick(ctx context.Context, now time.Time, msgs <-chan received) bool {
	for len(msgs) > 0 {
		if r.handle(ctx, <-msgs) {
			return true
		}
	}
	return r.Session.Tick(now)
}

// handle processes one read and reports whether the connection is over.
func (r *Receiver) handle(ctx context.Context, m received) bool {
	if m.err != nil {
		if errors.Is(m.err, protocol.ErrBadFrame) {
			r.Session.Discard(m.at, m.err)
			return false
		}
		if ctx.Err() != nil {
			return true
		}
		r.Logger.Printf("receive: %v", m.err)
		_ = r.Session.PeerDisconnected(m.at)
		return true
	}
	_, _ = r.Session.HandleMessage(m.at, m.msg)
	return false
}
