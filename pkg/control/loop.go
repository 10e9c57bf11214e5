package control

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"rclink/pkg/input"
	"rclink/pkg/link"
	"rclink/pkg/protocol"
	"rclink/pkg/transport"
)

var (
	// ErrOperatorStop ends the loop after the stop button sent the stop command.
	ErrOperatorStop = errors.New("operator stop")
	// ErrLinkLost ends the loop when the transport dropped or the liveness window passed.
	ErrLinkLost = errors.New("link lost")
)

// Loop is the fixed-rate transmit loop for one connection.
type Loop struct {
	source     input.Source
	normalizer input.Normalizer
	sched      *Scheduler
	session    *link.Session
	clock      link.Clock
	logger     *log.Logger
}

func NewLoop(source input.Source, normalizer input.Normalizer, cfg Config, session *link.Session, clock link.Clock, logger *log.Logger) *Loop {
	if clock == nil {
		clock = link.SystemClock{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Loop{
		source:     source,
		normalizer: normalizer,
		sched:      NewScheduler(cfg),
		session:    session,
		clock:      clock,
		logger:     logger,
	}
}

// Run sends commands over conn once per period until the operator stops, the link is
// lost or ctx ends. Cancellation sends one best-effort stop command.
func (l *Loop) Run(ctx context.Context, conn transport.Conn) error {
	l.sched.Reset()
	ticker := l.clock.NewTicker(l.sched.Config().Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if conn.IsConnected() {
				l.send(conn, protocol.Stop, l.clock.Now())
			}
			return ctx.Err()
		case now := <-ticker.C():
			if err := l.step(conn, now); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) step(conn transport.Conn, now time.Time) error {
	if !conn.IsConnected() {
		_ = l.session.PeerDisconnected(now)
		return ErrLinkLost
	}

	st, err := l.source.Poll()
	if err != nil {
		l.logger.Printf("poll %s: %v", l.source.Name(), err)
		st = input.State{}
	}
	sample := l.normalizer.Normalize(st, now)

	cmd, decision := l.sched.Decide(sample, now)
	if decision != Skip {
		l.send(conn, cmd, now)
	}
	if decision == SendStop {
		l.logger.Printf("emergency stop requested")
		return ErrOperatorStop
	}

	if l.session.Tick(now) {
		return ErrLinkLost
	}
	return nil
}

func (l *Loop) send(conn transport.Conn, cmd protocol.MotorCommand, now time.Time) {
	if err := conn.Send(cmd.Bytes()); err != nil {
		l.session.WriteFailed(now, err)
		return
	}
	l.sched.Sent(cmd, now)
	_ = l.session.CommandSent(now, cmd)
}
