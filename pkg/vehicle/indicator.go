package vehicle

import (
	"io"
	"log"
)

const (
	ConnectToneHz    = 440
	DisconnectToneHz = 220
	ToneMillis       = 100

	EmergencyToneHz     = 880
	EmergencyToneMillis = 300
)

type Light string

const (
	LightGreen Light = "green" // ready, waiting for a controller
	LightBlue  Light = "blue"  // controller connected
	LightRed   Light = "red"   // motor fault or emergency stop
)

// Signals is the status hardware on the vehicle.
type Signals interface {
	Beep(hz, millis int)
	SetLight(Light)
}

// StatusIndicator maps link status onto beeps and the status light.
type StatusIndicator struct {
	signals Signals
}

func NewStatusIndicator(s Signals) *StatusIndicator {
	s.SetLight(LightGreen)
	return &StatusIndicator{signals: s}
}

func (i *StatusIndicator) Connected() {
	i.signals.SetLight(LightBlue)
	i.signals.Beep(ConnectToneHz, ToneMillis)
}

func (i *StatusIndicator) Disconnected() {
	i.signals.SetLight(LightGreen)
	i.signals.Beep(DisconnectToneHz, ToneMillis)
}

func (i *StatusIndicator) Fault() {
	i.signals.SetLight(LightRed)
}

// EmergencyStop shows red until the next link status change.
func (i *StatusIndicator) EmergencyStop() {
	i.signals.SetLight(LightRed)
	i.signals.Beep(EmergencyToneHz, EmergencyToneMillis)
}

// LogSignals prints signals for hubs without a speaker or light.
type LogSignals struct {
	Logger *log.Logger
}

func (s LogSignals) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return s.Logger
}

func (s LogSignals) Beep(hz, millis int) {
	s.logger().Printf("beep %d Hz %d ms", hz, millis)
}

func (s LogSignals) SetLight(l Light) {
	s.logger().Printf("light %s", l)
}
