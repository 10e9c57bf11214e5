package input

import (
	"math"
	"time"
)

const (
	mockDriveFreqHz = 0.11
	mockSteerFreqHz = 0.23
	mockBoostFreqHz = 0.05

	mockSteerPhaseRad = math.Pi / 3.0
)

// MockLayout matches the axis order MockSource produces.
func MockLayout() Layout {
	return Layout{
		Name:         "mock",
		DriveAxis:    0,
		SteerAxis:    1,
		TriggerAxis:  2,
		TriggerRange: TriggerUnit,
		StopButton:   0,
	}
}

// MockSource produces smooth synthetic stick motion for simulation runs.
// If StopAfter is positive, the stop button reads pressed once that much time has passed.
type MockSource struct {
	Now       func() time.Time
	StopAfter time.Duration
	start     time.Time
}

func NewMockSource(now func() time.Time) *MockSource {
	if now == nil {
		now = time.Now
	}
	return &MockSource{Now: now, start: now()}
}

func (m *MockSource) Name() string {
	return "mock"
}

func (m *MockSource) Poll() (State, error) {
	elapsed := m.Now().Sub(m.start)
	t := elapsed.Seconds()
	st := State{
		Axes: []float64{
			math.Sin(2.0 * math.Pi * mockDriveFreqHz * t),
			math.Sin(2.0*math.Pi*mockSteerFreqHz*t + mockSteerPhaseRad),
			0.5 + 0.5*math.Sin(2.0*math.Pi*mockBoostFreqHz*t),
		},
	}
	if m.StopAfter > 0 && elapsed >= m.StopAfter {
		st.Buttons |= 1
	}
	return st, nil
}

func (m *MockSource) Close() error {
	return nil
}
