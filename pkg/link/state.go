package link

import (
	"errors"
	"fmt"
	"time"

	"rclink/pkg/protocol"
)

// DefaultTimeout is how long a connected session may go without a valid command.
const DefaultTimeout = 2000 * time.Millisecond

// Side names which end of the link a session runs on.
type Side string

const (
	SideController Side = "controller"
	SideHub        Side = "hub"
)

// State is a link session state.
type State int

const (
	Idle State = iota
	Advertising
	Connected
	Disconnecting
	// Shutdown is terminal, reached only by an operator stop.
	Shutdown
)

var stateNames = [...]string{
	Idle:          "idle",
	Advertising:   "advertising",
	Connected:     "connected",
	Disconnecting: "disconnecting",
	Shutdown:      "shutdown",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown link state %q", b)
}

var (
	// ErrLivenessTimeout is the reason recorded when no valid traffic arrived in time.
	ErrLivenessTimeout = errors.New("liveness timeout")
	// ErrInvalidTransition reports an event that the current state does not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotConnected reports traffic handled outside the Connected state.
	ErrNotConnected = errors.New("session not connected")
)

// TransitionError names the rejected event and the state that rejected it.
type TransitionError struct {
	Event string
	From  State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s in state %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// EventKind classifies link events.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventAdvertise  EventKind = "advertise"
	EventCommand    EventKind = "command"
	EventMalformed  EventKind = "malformed"
	EventWriteError EventKind = "write_error"
	EventMotorError EventKind = "motor_error"
	EventEmergency  EventKind = "emergency_stop"
)

// Event is published for every transition and notable action of a session.
type Event struct {
	Time    time.Time              `json:"ts"`
	Side    Side                   `json:"side"`
	Kind    EventKind              `json:"kind"`
	From    State                  `json:"from"`
	To      State                  `json:"to"`
	Command *protocol.MotorCommand `json:"command,omitempty"`
	Reason  string                 `json:"reason,omitempty"`
}

// Observer receives session events. It runs on the session's loop and must not block.
type Observer func(Event)

// Indicator signals link status to people near the vehicle (light, chime, display).
type Indicator interface {
	Connected()
	Disconnected()
	Fault()
}

// EmergencyIndicator is implemented by indicators with a distinct emergency stop signal.
type EmergencyIndicator interface {
	EmergencyStop()
}

// Advertiser makes the local end discoverable, or starts a connect attempt on the controller side.
type Advertiser interface {
	Advertise() error
}
