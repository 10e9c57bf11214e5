// Package control runs the controller side: it samples the operator's input at a fixed
// rate and sends motor commands to the hub.
package control

import (
	"time"

	"rclink/pkg/input"
	"rclink/pkg/protocol"
)

const (
	DefaultPeriod          = 50 * time.Millisecond
	DefaultMinInterval     = 50 * time.Millisecond
	DefaultChangeThreshold = 5

	// ticks arrive a little early or late; an interval this close to MinInterval counts as elapsed.
	intervalSlack = 2 * time.Millisecond
)

type Config struct {
	Period      time.Duration
	MinInterval time.Duration
	// ChangeThreshold sends early when a command moves more than this many power units. 0 disables.
	ChangeThreshold int
}

func DefaultConfig() Config {
	return Config{
		Period:          DefaultPeriod,
		MinInterval:     DefaultMinInterval,
		ChangeThreshold: DefaultChangeThreshold,
	}
}

func (c Config) normalize() Config {
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	if c.ChangeThreshold < 0 {
		c.ChangeThreshold = 0
	}
	return c
}

type Decision int

const (
	Skip Decision = iota
	Send
	// SendStop sends the stop command and ends the loop.
	SendStop
)

func (d Decision) String() string {
	switch d {
	case Send:
		return "send"
	case SendStop:
		return "send-stop"
	default:
		return "skip"
	}
}

// Scheduler decides per tick whether a command goes on the wire.
type Scheduler struct {
	cfg        Config
	lastSent   protocol.MotorCommand
	lastSentAt time.Time
	sent       bool
}

func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg.normalize()}
}

func (s *Scheduler) Config() Config {
	return s.cfg
}

// Decide encodes sample and reports whether to send it. An emergency stop is never
// rate limited.
func (s *Scheduler) Decide(sample input.ControlSample, now time.Time) (protocol.MotorCommand, Decision) {
	if sample.EmergencyStop {
		return protocol.Stop, SendStop
	}
	cmd := protocol.Encode(sample.Drive, sample.Steer, sample.Boost)
	if !s.sent {
		return cmd, Send
	}
	if now.Sub(s.lastSentAt)+intervalSlack >= s.cfg.MinInterval {
		return cmd, Send
	}
	if s.cfg.ChangeThreshold > 0 && protocol.Delta(cmd, s.lastSent) > s.cfg.ChangeThreshold {
		return cmd, Send
	}
	return cmd, Skip
}

// Sent records a command that reached the transport.
func (s *Scheduler) Sent(cmd protocol.MotorCommand, now time.Time) {
	s.lastSent = cmd
	s.lastSentAt = now
	s.sent = true
}

// Reset forgets the last send so the next tick always sends.
func (s *Scheduler) Reset() {
	s.sent = false
	s.lastSent = protocol.MotorCommand{}
	s.lastSentAt = time.Time{}
}
