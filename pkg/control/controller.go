package control

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"rclink/pkg/link"
	"rclink/pkg/transport"
)

// Controller owns the controller-side session across reconnects.
type Controller struct {
	Loop    *Loop
	Session *link.Session
	Dialer  transport.Dialer

	ConnectAttempts int
	ConnectBackoff  time.Duration
	Logger          *log.Logger
}

// Run connects, transmits and reconnects after link loss. It returns nil after an
// operator stop, the context error after cancellation, or a *transport.ConnectError.
func (c *Controller) Run(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	attempts := c.ConnectAttempts
	if attempts <= 0 {
		attempts = transport.DefaultConnectAttempts
	}
	backoff := c.ConnectBackoff
	if backoff <= 0 {
		backoff = transport.DefaultConnectBackoff
	}
	clock := c.Loop.clock

	if err := c.Session.Start(clock.Now()); err != nil {
		return err
	}
	for {
		conn, err := transport.DialWithRetry(ctx, c.Dialer, attempts, backoff, func(attempt int, err error) {
			logger.Printf("connect attempt %d/%d failed: %v", attempt, attempts, err)
		})
		if err != nil {
			_ = c.Session.Shutdown(clock.Now(), "connect failed")
			return err
		}
		_ = c.Session.PeerConnected(clock.Now())

		err = c.Loop.Run(ctx, conn)
		_ = conn.Close()

		switch {
		case errors.Is(err, ErrLinkLost):
			_ = c.Session.CleanupComplete(clock.Now())
			logger.Printf("link lost, reconnecting")
		case errors.Is(err, ErrOperatorStop):
			_ = c.Session.Shutdown(clock.Now(), "operator stop")
			return nil
		default:
			_ = c.Session.Shutdown(clock.Now(), "cancelled")
			return err
		}
	}
}
