package input

import (
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultKeyHold is how long a key press keeps its axis deflected.
// Terminals report repeats but no key-up, so axes fall back to center on their own.
const DefaultKeyHold = 250 * time.Millisecond

// KeyboardLayout matches the axis order KeyboardSource produces.
func KeyboardLayout() Layout {
	return Layout{
		Name:         "keyboard",
		DriveAxis:    0,
		SteerAxis:    1,
		TriggerAxis:  2,
		TriggerRange: TriggerUnit,
		StopButton:   0,
	}
}

type keyState struct {
	mu      sync.Mutex
	now     func() time.Time
	hold    time.Duration
	drive   float64
	steer   float64
	driveAt time.Time
	steerAt time.Time
	boost   bool
	stop    bool
}

func newKeyState(now func() time.Time, hold time.Duration) *keyState {
	if now == nil {
		now = time.Now
	}
	if hold <= 0 {
		hold = DefaultKeyHold
	}
	return &keyState{now: now, hold: hold}
}

// press applies a key and reports whether it requested a stop.
func (k *keyState) press(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	switch key {
	case "up", "w":
		k.drive, k.driveAt = 1, now
	case "down", "s":
		k.drive, k.driveAt = -1, now
	case "left", "a":
		k.steer, k.steerAt = -1, now
	case "right", "d":
		k.steer, k.steerAt = 1, now
	case "b":
		k.boost = !k.boost
	case "x", "esc", "q", "ctrl+c":
		k.stop = true
	}
	return k.stop
}

func (k *keyState) snapshot() State {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	drive, steer := k.drive, k.steer
	if now.Sub(k.driveAt) > k.hold {
		drive = 0
	}
	if now.Sub(k.steerAt) > k.hold {
		steer = 0
	}
	st := State{Axes: []float64{drive, steer, 0}}
	if k.boost {
		st.Axes[2] = 1
	}
	if k.stop {
		st.Buttons |= 1
	}
	return st
}

type keyboardModel struct {
	keys *keyState
}

func (m keyboardModel) Init() tea.Cmd {
	return nil
}

func (m keyboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.keys.press(key.String()) {
		return m, tea.Quit
	}
	return m, nil
}

func (m keyboardModel) View() string {
	st := m.keys.snapshot()
	return fmt.Sprintf("drive %+.0f  steer %+.0f  boost %-3v  (w/a/s/d or arrows, b boost, x stop)\n",
		st.Axis(0), st.Axis(1), st.Axis(2) > 0)
}

// KeyboardSource drives the vehicle from terminal key presses.
type KeyboardSource struct {
	keys *keyState
	prog *tea.Program
	done chan struct{}
	err  error
}

// NewKeyboardSource starts reading keys from in and renders a one-line status to out.
func NewKeyboardSource(in io.Reader, out io.Writer) *KeyboardSource {
	k := &KeyboardSource{
		keys: newKeyState(time.Now, DefaultKeyHold),
		done: make(chan struct{}),
	}
	k.prog = tea.NewProgram(keyboardModel{keys: k.keys}, tea.WithInput(in), tea.WithOutput(out))
	go func() {
		defer close(k.done)
		if _, err := k.prog.Run(); err != nil {
			k.err = err
		}
	}()
	return k
}

func (k *KeyboardSource) Name() string {
	return "keyboard"
}

// Poll returns the current virtual stick state. Once the terminal program
// has exited the stop button stays pressed.
func (k *KeyboardSource) Poll() (State, error) {
	st := k.keys.snapshot()
	select {
	case <-k.done:
		st.Buttons |= 1
	default:
	}
	return st, nil
}

func (k *KeyboardSource) Close() error {
	k.prog.Quit()
	<-k.done
	return k.err
}
