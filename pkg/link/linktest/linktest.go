// Package linktest provides fakes for driving link sessions in tests.
package linktest

import (
	"sync"
	"time"

	"rclink/pkg/link"
)

// ManualClock is a link.Clock that only moves when Advance is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) NewTicker(d time.Duration) link.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		clock:  c,
		period: d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward and fires every ticker that came due.
// Like time.Ticker, a tick carries the current time and ticks are dropped when the
// reader falls behind.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(c.now) {
			select {
			case t.ch <- c.now:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
}

// WaitForTickers blocks until at least n tickers were created or the timeout passes.
func (c *ManualClock) WaitForTickers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.tickers)
		c.mu.Unlock()
		if got >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

type manualTicker struct {
	clock   *ManualClock
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

// Call is one recorded actuator call.
type Call struct {
	Stop  bool
	Drive int8
	Steer int8
}

// Actuator records every call and can be told to fail Apply.
type Actuator struct {
	mu       sync.Mutex
	calls    []Call
	ApplyErr error
}

func (a *Actuator) Apply(drive, steer int8) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Drive: drive, Steer: steer})
	return a.ApplyErr
}

func (a *Actuator) StopAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Stop: true})
	return nil
}

func (a *Actuator) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

func (a *Actuator) Stops() int {
	n := 0
	for _, c := range a.Calls() {
		if c.Stop {
			n++
		}
	}
	return n
}

// Last returns the most recent call, if any.
func (a *Actuator) Last() (Call, bool) {
	calls := a.Calls()
	if len(calls) == 0 {
		return Call{}, false
	}
	return calls[len(calls)-1], true
}

// Indicator counts status signals.
type Indicator struct {
	mu                            sync.Mutex
	connected, disconnected, fault int
	emergency                      int
}

func (i *Indicator) Connected()    { i.mu.Lock(); i.connected++; i.mu.Unlock() }
func (i *Indicator) Disconnected() { i.mu.Lock(); i.disconnected++; i.mu.Unlock() }
func (i *Indicator) Fault()        { i.mu.Lock(); i.fault++; i.mu.Unlock() }

func (i *Indicator) EmergencyStop() { i.mu.Lock(); i.emergency++; i.mu.Unlock() }

func (i *Indicator) EmergencyStops() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.emergency
}

func (i *Indicator) Counts() (connected, disconnected, fault int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.connected, i.disconnected, i.fault
}

// Events collects observer events.
type Events struct {
	mu     sync.Mutex
	events []link.Event
}

func (e *Events) Observe(ev link.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *Events) All() []link.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]link.Event(nil), e.events...)
}

// Kinds returns the events of kind k.
func (e *Events) Kinds(k link.EventKind) []link.Event {
	var out []link.Event
	for _, ev := range e.All() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}
