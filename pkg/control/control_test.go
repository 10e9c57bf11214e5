package control

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rclink/pkg/input"
	"rclink/pkg/link"
	"rclink/pkg/link/linktest"
	"rclink/pkg/protocol"
	"rclink/pkg/transport"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// scripted returns whatever state was set last.
type scripted struct {
	mu sync.Mutex
	st input.State
}

func (s *scripted) set(st input.State) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Close() error { return nil }
func (s *scripted) Poll() (input.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st, nil
}

// stick builds a state for input.MockLayout: drive, steer, boost in [0,1].
func stick(drive, steer, boost float64, stop bool) input.State {
	st := input.State{Axes: []float64{drive, steer, boost}}
	if stop {
		st.Buttons = 1
	}
	return st
}

func sample(drive, steer, boost float64) input.ControlSample {
	return input.ControlSample{Drive: drive, Steer: steer, Boost: boost}
}

func TestSchedulerRateLimit(t *testing.T) {
	s := NewScheduler(Config{Period: 50 * time.Millisecond, MinInterval: 200 * time.Millisecond, ChangeThreshold: 5})

	cmd, d := s.Decide(sample(0.5, 0, 0), t0)
	if d != Send {
		t.Fatalf("first command must be sent, got %s", d)
	}
	s.Sent(cmd, t0)

	if _, d := s.Decide(sample(0.5, 0, 0), t0.Add(50*time.Millisecond)); d != Skip {
		t.Fatalf("unchanged command inside interval sent: %s", d)
	}
	if _, d := s.Decide(sample(0.52, 0, 0), t0.Add(100*time.Millisecond)); d != Skip {
		t.Fatalf("small change inside interval sent: %s", d)
	}
	if _, d := s.Decide(sample(0.9, 0, 0), t0.Add(100*time.Millisecond)); d != Send {
		t.Fatalf("large change must be sent early, got %s", d)
	}
	if _, d := s.Decide(sample(0.5, 0, 0), t0.Add(200*time.Millisecond)); d != Send {
		t.Fatalf("command after interval must be sent, got %s", d)
	}
}

func TestSchedulerThresholdDisabled(t *testing.T) {
	s := NewScheduler(Config{MinInterval: time.Second, ChangeThreshold: 0})
	cmd, _ := s.Decide(sample(0, 0, 0), t0)
	s.Sent(cmd, t0)
	if _, d := s.Decide(sample(1, 1, 1), t0.Add(100*time.Millisecond)); d != Skip {
		t.Fatalf("threshold 0 must not send early, got %s", d)
	}
}

func TestSchedulerEmergencyStopBypassesRateLimit(t *testing.T) {
	s := NewScheduler(Config{MinInterval: time.Hour})
	cmd, _ := s.Decide(sample(1, 0, 1), t0)
	s.Sent(cmd, t0)

	stop := sample(1, 1, 1)
	stop.EmergencyStop = true
	got, d := s.Decide(stop, t0.Add(time.Millisecond))
	if d != SendStop || got != protocol.Stop {
		t.Fatalf("expected stop, got %v %s", got, d)
	}
}

func newHarness(t *testing.T) (*Loop, *scripted, *link.Session, *linktest.ManualClock) {
	t.Helper()
	clock := linktest.NewManualClock(t0)
	src := &scripted{}
	session := link.NewSession(link.SideController)
	_ = session.Start(t0)
	_ = session.PeerConnected(t0)
	loop := NewLoop(src, input.NewNormalizer(input.MockLayout()), DefaultConfig(), session, clock, nil)
	return loop, src, session, clock
}

func TestEmergencyStopOnNextTick(t *testing.T) {
	loop, src, _, clock := newHarness(t)
	ctrl, hub := transport.NewPipe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src.set(stick(0.8, 0, 0, false))
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, ctrl) }()
	if !clock.WaitForTickers(1, 2*time.Second) {
		t.Fatalf("loop never started its ticker")
	}

	clock.Advance(DefaultPeriod)
	got, err := hub.Receive(ctx)
	if err != nil || !bytes.Equal(got, []byte{24, 0, 0}) {
		t.Fatalf("unexpected first command % x %v", got, err)
	}

	src.set(stick(0.8, 0.5, 1, true))
	clock.Advance(DefaultPeriod)
	got, err = hub.Receive(ctx)
	if err != nil || !bytes.Equal(got, []byte{0, 0, 0}) {
		t.Fatalf("expected stop on the next tick, got % x %v", got, err)
	}
	if err := <-done; !errors.Is(err, ErrOperatorStop) {
		t.Fatalf("expected operator stop, got %v", err)
	}
}

func TestCancelSendsStop(t *testing.T) {
	loop, src, _, clock := newHarness(t)
	ctrl, hub := transport.NewPipe()
	src.set(stick(1, 0, 1, false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, ctrl) }()
	if !clock.WaitForTickers(1, 2*time.Second) {
		t.Fatalf("loop never started its ticker")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
	defer rcancel()
	got, err := hub.Receive(rctx)
	if err != nil || !bytes.Equal(got, []byte{0, 0, 0}) {
		t.Fatalf("expected best-effort stop, got % x %v", got, err)
	}
}

func TestStepDetectsDroppedTransport(t *testing.T) {
	loop, src, session, _ := newHarness(t)
	ctrl, hub := transport.NewPipe()
	src.set(stick(0, 0, 0, false))
	_ = hub.Close()

	if err := loop.step(ctrl, t0.Add(DefaultPeriod)); !errors.Is(err, ErrLinkLost) {
		t.Fatalf("expected link lost, got %v", err)
	}
	if session.State() != link.Disconnecting {
		t.Fatalf("unexpected state %s", session.State())
	}
}

// failingConn accepts nothing but claims to be connected.
type failingConn struct{}

func (failingConn) Send([]byte) error { return &transport.WriteError{Err: errors.New("radio busy")} }
func (failingConn) Receive(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (failingConn) IsConnected() bool { return true }
func (failingConn) Close() error      { return nil }

func TestWriteFailuresEndInLivenessTimeout(t *testing.T) {
	events := &linktest.Events{}
	clock := linktest.NewManualClock(t0)
	src := &scripted{}
	session := link.NewSession(link.SideController, link.WithObserver(events.Observe))
	_ = session.Start(t0)
	_ = session.PeerConnected(t0)
	loop := NewLoop(src, input.NewNormalizer(input.MockLayout()), DefaultConfig(), session, clock, nil)

	now := t0
	for i := 0; i < 40; i++ {
		now = now.Add(DefaultPeriod)
		if err := loop.step(failingConn{}, now); err != nil {
			t.Fatalf("tick %d ended early: %v", i, err)
		}
	}
	if session.State() != link.Connected {
		t.Fatalf("single failures must not disconnect, state %s", session.State())
	}
	if len(events.Kinds(link.EventWriteError)) != 40 {
		t.Fatalf("expected a write error event per tick, got %d", len(events.Kinds(link.EventWriteError)))
	}
	if err := loop.step(failingConn{}, now.Add(DefaultPeriod)); !errors.Is(err, ErrLinkLost) {
		t.Fatalf("expected liveness timeout, got %v", err)
	}
}

func TestControllerReconnectsAfterLinkLoss(t *testing.T) {
	clock := linktest.NewManualClock(t0)
	src := &scripted{}
	src.set(stick(0.5, 0, 0, false))
	session := link.NewSession(link.SideController)
	ln := transport.NewPipeListener()
	c := &Controller{
		Loop:           NewLoop(src, input.NewNormalizer(input.MockLayout()), DefaultConfig(), session, clock, nil),
		Session:        session,
		Dialer:         ln.Dialer(),
		ConnectBackoff: time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	first, err := ln.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	_ = first.Close()
	if !clock.WaitForTickers(1, 2*time.Second) {
		t.Fatalf("loop never started")
	}
	clock.Advance(DefaultPeriod)

	second, err := ln.Accept(ctx)
	if err != nil {
		t.Fatalf("controller did not reconnect: %v", err)
	}
	if !clock.WaitForTickers(2, 2*time.Second) {
		t.Fatalf("second loop never started")
	}
	src.set(stick(0, 0, 0, true))
	clock.Advance(DefaultPeriod)

	got, err := second.Receive(ctx)
	if err != nil || !bytes.Equal(got, []byte{0, 0, 0}) {
		t.Fatalf("expected stop on the new link, got % x %v", got, err)
	}
	if err := <-done; err != nil {
		t.Fatalf("operator stop must end cleanly, got %v", err)
	}
	if session.State() != link.Shutdown {
		t.Fatalf("unexpected state %s", session.State())
	}
}

func TestControllerConnectFailure(t *testing.T) {
	ln := transport.NewPipeListener()
	_ = ln.Close()
	session := link.NewSession(link.SideController)
	c := &Controller{
		Loop:           NewLoop(&scripted{}, input.NewNormalizer(input.MockLayout()), DefaultConfig(), session, linktest.NewManualClock(t0), nil),
		Session:        session,
		Dialer:         ln.Dialer(),
		ConnectBackoff: time.Millisecond,
	}
	err := c.Run(context.Background())
	var cerr *transport.ConnectError
	if !errors.As(err, &cerr) || cerr.Attempts != transport.DefaultConnectAttempts {
		t.Fatalf("expected connect error, got %v", err)
	}
	if session.State() != link.Shutdown {
		t.Fatalf("unexpected state %s", session.State())
	}
}
