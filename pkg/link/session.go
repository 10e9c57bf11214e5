package link

import (
	"io"
	"log"
	"time"

	"rclink/pkg/motor"
	"rclink/pkg/protocol"
)

// Session is one side's connection state machine. It is owned by a single loop:
// every method must be called from that loop, so it carries no locks.
type Session struct {
	side        Side
	state       State
	lastRx      time.Time
	lastCommand protocol.MotorCommand
	timeout     time.Duration

	motors     motor.Actuator
	indicator  Indicator
	advertiser Advertiser
	observer   Observer
	logger     *log.Logger
}

type Option func(*Session)

// WithTimeout sets the liveness window.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithActuator attaches the motors stopped on every safety transition.
func WithActuator(a motor.Actuator) Option {
	return func(s *Session) {
		s.motors = a
	}
}

func WithIndicator(ind Indicator) Option {
	return func(s *Session) {
		s.indicator = ind
	}
}

func WithAdvertiser(a Advertiser) Option {
	return func(s *Session) {
		s.advertiser = a
	}
}

func WithObserver(fn Observer) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSession(side Side, opts ...Option) *Session {
	s := &Session{
		side:    side,
		state:   Idle,
		timeout: DefaultTimeout,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Side() Side                         { return s.side }
func (s *Session) State() State                       { return s.state }
func (s *Session) LastRx() time.Time                  { return s.lastRx }
func (s *Session) LastCommand() protocol.MotorCommand { return s.lastCommand }
func (s *Session) Timeout() time.Duration             { return s.timeout }

// Start leaves Idle and begins advertising (hub) or the first connect attempt (controller).
func (s *Session) Start(now time.Time) error {
	if s.state != Idle {
		return &TransitionError{Event: "start", From: s.state}
	}
	s.transition(now, Advertising, "start")
	s.advertise(now)
	return nil
}

// RefreshAdvertisement re-issues the advertisement so stale payloads are replaced.
func (s *Session) RefreshAdvertisement(now time.Time) error {
	if s.state != Advertising {
		return &TransitionError{Event: "advertise", From: s.state}
	}
	s.advertise(now)
	return nil
}

// PeerConnected enters Connected and restarts the liveness window.
func (s *Session) PeerConnected(now time.Time) error {
	if s.state != Advertising {
		return &TransitionError{Event: "peer connected", From: s.state}
	}
	s.lastRx = now
	s.lastCommand = protocol.Stop
	s.transition(now, Connected, "peer connected")
	if s.indicator != nil {
		s.indicator.Connected()
	}
	return nil
}

// HandleMessage decodes one received message and applies it to the motors.
// Malformed messages are discarded without touching the motors or the liveness window.
func (s *Session) HandleMessage(now time.Time, msg []byte) (protocol.MotorCommand, error) {
	if s.state != Connected {
		return protocol.MotorCommand{}, ErrNotConnected
	}
	cmd, err := protocol.Decode(msg)
	if err != nil {
		s.Discard(now, err)
		return protocol.MotorCommand{}, err
	}

	s.lastRx = now
	s.lastCommand = cmd
	if s.motors != nil {
		if err := s.motors.Apply(cmd.Drive, cmd.Steer); err != nil {
			if s.indicator != nil {
				s.indicator.Fault()
			}
			s.logger.Printf("[%s] motor apply failed: %v", s.side, err)
			s.emit(Event{Time: now, Kind: EventMotorError, Command: &cmd, Reason: err.Error()})
			return cmd, nil
		}
	}
	s.emit(Event{Time: now, Kind: EventCommand, Command: &cmd})
	return cmd, nil
}

// Discard records a message dropped before decoding, such as a broken stream frame.
func (s *Session) Discard(now time.Time, reason error) {
	s.logger.Printf("[%s] discarding malformed message: %v", s.side, reason)
	s.emit(Event{Time: now, Kind: EventMalformed, Reason: reason.Error()})
}

// CommandSent records a successful controller-side send; it keeps the link alive.
func (s *Session) CommandSent(now time.Time, cmd protocol.MotorCommand) error {
	if s.state != Connected {
		return ErrNotConnected
	}
	s.lastRx = now
	s.lastCommand = cmd
	s.emit(Event{Time: now, Kind: EventCommand, Command: &cmd})
	return nil
}

// WriteFailed records a failed send. The session stays up; only the liveness check
// decides whether repeated failures end it.
func (s *Session) WriteFailed(now time.Time, err error) {
	s.logger.Printf("[%s] write failed: %v", s.side, err)
	s.emit(Event{Time: now, Kind: EventWriteError, Reason: err.Error()})
}

// EmergencyStop stops the motors on a local request, such as the hub's button.
// The session keeps its state; the next valid command drives the motors again.
func (s *Session) EmergencyStop(now time.Time) {
	s.stopMotors()
	s.lastCommand = protocol.Stop
	if ind, ok := s.indicator.(EmergencyIndicator); ok {
		ind.EmergencyStop()
	}
	s.logger.Printf("[%s] emergency stop", s.side)
	s.emit(Event{Time: now, Kind: EventEmergency, Reason: "stop button"})
}

// PeerDisconnected handles an explicit disconnect from the transport.
func (s *Session) PeerDisconnected(now time.Time) error {
	if s.state != Connected {
		return &TransitionError{Event: "peer disconnected", From: s.state}
	}
	s.disconnect(now, "peer disconnected")
	return nil
}

// Tick runs the liveness check and reports whether it ended the connection.
// The window is exceeded strictly after timeout has elapsed since the last valid traffic.
func (s *Session) Tick(now time.Time) bool {
	if s.state != Connected {
		return false
	}
	if now.Sub(s.lastRx) <= s.timeout {
		return false
	}
	s.disconnect(now, ErrLivenessTimeout.Error())
	return true
}

// CleanupComplete returns to Advertising once the old connection is torn down.
func (s *Session) CleanupComplete(now time.Time) error {
	if s.state != Disconnecting {
		return &TransitionError{Event: "cleanup complete", From: s.state}
	}
	s.transition(now, Advertising, "cleanup complete")
	s.advertise(now)
	return nil
}

// Shutdown ends the session from any state. Motors stop first if a peer was connected.
func (s *Session) Shutdown(now time.Time, reason string) error {
	if s.state == Shutdown {
		return &TransitionError{Event: "shutdown", From: s.state}
	}
	if s.state == Connected {
		s.stopMotors()
	}
	s.transition(now, Shutdown, reason)
	return nil
}

// disconnect stops the motors before anything else happens.
func (s *Session) disconnect(now time.Time, reason string) {
	s.stopMotors()
	s.lastCommand = protocol.Stop
	s.transition(now, Disconnecting, reason)
	if s.indicator != nil {
		s.indicator.Disconnected()
	}
}

func (s *Session) stopMotors() {
	if s.motors == nil {
		return
	}
	if err := s.motors.StopAll(); err != nil {
		s.logger.Printf("[%s] motor stop failed: %v", s.side, err)
	}
}

func (s *Session) advertise(now time.Time) {
	if s.advertiser != nil {
		if err := s.advertiser.Advertise(); err != nil {
			s.logger.Printf("[%s] advertise failed: %v", s.side, err)
		}
	}
	s.emit(Event{Time: now, Kind: EventAdvertise})
}

func (s *Session) transition(now time.Time, to State, reason string) {
	from := s.state
	s.state = to
	s.logger.Printf("[%s] %s -> %s (%s)", s.side, from, to, reason)
	s.emit(Event{Time: now, Kind: EventTransition, From: from, To: to, Reason: reason})
}

func (s *Session) emit(ev Event) {
	if s.observer == nil {
		return
	}
	ev.Side = s.side
	if ev.Kind != EventTransition {
		ev.From, ev.To = s.state, s.state
	}
	s.observer(ev)
}
